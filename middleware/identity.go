package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/yourusername/accessflow/core"
)

// ErrExtractionFailed is returned when no identity can be derived from a request
var ErrExtractionFailed = errors.New("failed to extract identity from request")

// IdentityFunc extracts the caller identity from an HTTP request.
type IdentityFunc func(*http.Request) (core.Identity, error)

// RemoteIP returns an IdentityFunc that uses the host part of r.RemoteAddr.
func RemoteIP() IdentityFunc {
	return func(r *http.Request) (core.Identity, error) {
		return remoteHost(r)
	}
}

// ForwardedFor returns an IdentityFunc that trusts proxy headers.
// It checks X-Forwarded-For (first entry) and X-Real-IP before falling back
// to RemoteAddr. Only use it behind a proxy that sets these headers.
func ForwardedFor() IdentityFunc {
	return func(r *http.Request) (core.Identity, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return core.Identity(ip), nil
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return core.Identity(xri), nil
		}

		return remoteHost(r)
	}
}

// Header returns an IdentityFunc that uses the value of the named header.
func Header(name string) IdentityFunc {
	return func(r *http.Request) (core.Identity, error) {
		value := r.Header.Get(name)
		if value == "" {
			return "", fmt.Errorf("%w: header %s not found or empty", ErrExtractionFailed, name)
		}
		return core.Identity(value), nil
	}
}

// First returns an IdentityFunc that tries each extractor in order and
// uses the first identity found.
//
// Example:
//
//	identify := First(
//	    Header("X-API-Key"),
//	    RemoteIP(), // Fallback
//	)
func First(extractors ...IdentityFunc) IdentityFunc {
	if len(extractors) == 0 {
		return func(r *http.Request) (core.Identity, error) {
			return "", fmt.Errorf("%w: no extractors provided", ErrExtractionFailed)
		}
	}

	return func(r *http.Request) (core.Identity, error) {
		var errs []error
		for _, extract := range extractors {
			id, err := extract(r)
			if err == nil && id != "" {
				return id, nil
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return "", fmt.Errorf("%w: all extractors failed: %w", ErrExtractionFailed, errors.Join(errs...))
		}
		return "", fmt.Errorf("%w: all extractors returned empty identity", ErrExtractionFailed)
	}
}

// ParseIdentityConfig creates an IdentityFunc from a configuration string.
// Supported formats:
// - "ip" -> RemoteIP()
// - "forwarded" -> ForwardedFor()
// - "header:X-API-Key" -> Header("X-API-Key")
func ParseIdentityConfig(config string) (IdentityFunc, error) {
	kind, arg, hasArg := strings.Cut(config, ":")

	switch kind {
	case "", "ip":
		return RemoteIP(), nil
	case "forwarded":
		return ForwardedFor(), nil
	case "header":
		if !hasArg || arg == "" {
			return nil, fmt.Errorf("%w: header identity requires format 'header:HeaderName'", core.ErrInvalidConfig)
		}
		return Header(arg), nil
	default:
		return nil, fmt.Errorf("%w: unknown identity source: %s", core.ErrInvalidConfig, kind)
	}
}

func remoteHost(r *http.Request) (core.Identity, error) {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port in some edge cases
		ip = r.RemoteAddr
	}
	if ip == "" {
		return "", fmt.Errorf("%w: empty remote address", ErrExtractionFailed)
	}
	return core.Identity(ip), nil
}
