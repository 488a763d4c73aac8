package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/limiter"
)

// ErrorHandler handles a request whose identity could not be determined.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Interceptor provides HTTP middleware for admission control
type Interceptor struct {
	evaluator    limiter.Evaluator
	identify     IdentityFunc
	errorHandler ErrorHandler
	logger       *slog.Logger
}

// Config for creating an interceptor
type Config struct {
	Identify     IdentityFunc // Optional: defaults to RemoteIP()
	ErrorHandler ErrorHandler // Optional: defaults to a 500 response
	Logger       *slog.Logger // Optional: defaults to discarding
}

// NewInterceptor creates a new admission control middleware
func NewInterceptor(evaluator limiter.Evaluator, config Config) *Interceptor {
	if config.Identify == nil {
		config.Identify = RemoteIP()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = defaultErrorHandler
	}

	return &Interceptor{
		evaluator:    evaluator,
		identify:     config.Identify,
		errorHandler: config.ErrorHandler,
		logger:       config.Logger,
	}
}

// Middleware wraps an http.Handler with admission control
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := i.identify(r)
		if err != nil {
			i.logger.Warn("identity extraction failed",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Any("error", err),
			)
			i.errorHandler(w, r, err)
			return
		}

		switch i.evaluator.Evaluate(id) {
		case core.Allow:
			next.ServeHTTP(w, r)
		case core.DenyBlocked:
			WriteBlocked(w)
		default:
			WriteRateLimited(w)
		}
	})
}

// ErrorResponse is the JSON body of a rejected request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteBlocked writes the 403 response for a blocked identity.
func WriteBlocked(w http.ResponseWriter) {
	writeJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   "forbidden",
		Message: "IP blocked",
	})
}

// WriteRateLimited writes the 429 response for the request that hit the limit.
func WriteRateLimited(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:   "rate_limit_exceeded",
		Message: "Too many requests",
	})
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Internal Server Error",
	})
}

func writeJSON(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
