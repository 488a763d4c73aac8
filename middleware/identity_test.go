package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/yourusername/accessflow/core"
)

func TestRemoteIP(t *testing.T) {
	extract := RemoteIP()

	tests := []struct {
		name       string
		remoteAddr string
		want       core.Identity
		wantErr    bool
	}{
		{name: "IPv4 with port", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "IPv4 without port", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{name: "IPv6 with port", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "empty", remoteAddr: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr

			got, err := extract(req)
			if tt.wantErr {
				if !errors.Is(err, ErrExtractionFailed) {
					t.Errorf("error = %v, want %v", err, ErrExtractionFailed)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestForwardedFor(t *testing.T) {
	extract := ForwardedFor()

	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		want          core.Identity
	}{
		{name: "single forwarded", remoteAddr: "10.0.0.1:1", xForwardedFor: "203.0.113.5", want: "203.0.113.5"},
		{name: "forwarded chain", remoteAddr: "10.0.0.1:1", xForwardedFor: " 203.0.113.5 , 10.0.0.2", want: "203.0.113.5"},
		{name: "real ip", remoteAddr: "10.0.0.1:1", xRealIP: "198.51.100.9", want: "198.51.100.9"},
		{name: "forwarded wins over real ip", remoteAddr: "10.0.0.1:1", xForwardedFor: "203.0.113.5", xRealIP: "198.51.100.9", want: "203.0.113.5"},
		{name: "empty forwarded falls back", remoteAddr: "10.0.0.1:1", xForwardedFor: " ,10.0.0.2", want: "10.0.0.1"},
		{name: "no headers", remoteAddr: "10.0.0.1:1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got, err := extract(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHeader(t *testing.T) {
	extract := Header("X-API-Key")

	req := httptest.NewRequest("GET", "/test", nil)
	if _, err := extract(req); !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("missing header: error = %v, want %v", err, ErrExtractionFailed)
	}

	req.Header.Set("X-API-Key", "key-123")
	got, err := extract(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "key-123" {
		t.Errorf("got %s, want key-123", got)
	}
}

func TestFirst(t *testing.T) {
	extract := First(Header("X-API-Key"), RemoteIP())

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.0.2.1:999"

	got, err := extract(req)
	if err != nil || got != "192.0.2.1" {
		t.Errorf("fallback: got %s, %v; want 192.0.2.1", got, err)
	}

	req.Header.Set("X-API-Key", "abc")
	got, err = extract(req)
	if err != nil || got != "abc" {
		t.Errorf("primary: got %s, %v; want abc", got, err)
	}

	req.RemoteAddr = ""
	req.Header.Del("X-API-Key")
	if _, err := extract(req); !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("all failing: error = %v, want %v", err, ErrExtractionFailed)
	}

	if _, err := First()(req); !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("no extractors: error = %v, want %v", err, ErrExtractionFailed)
	}
}

func TestParseIdentityConfig(t *testing.T) {
	tests := []struct {
		config  string
		header  string
		remote  string
		want    core.Identity
		wantErr bool
	}{
		{config: "ip", remote: "192.0.2.1:80", want: "192.0.2.1"},
		{config: "", remote: "192.0.2.1:80", want: "192.0.2.1"},
		{config: "forwarded", header: "203.0.113.1", remote: "192.0.2.1:80", want: "203.0.113.1"},
		{config: "header:X-Forwarded-For", header: "203.0.113.1", want: "203.0.113.1"},
		{config: "header", wantErr: true},
		{config: "header:", wantErr: true},
		{config: "cookie:session", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.config, func(t *testing.T) {
			extract, err := ParseIdentityConfig(tt.config)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidConfig) {
					t.Errorf("error = %v, want %v", err, core.ErrInvalidConfig)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.header != "" {
				req.Header.Set("X-Forwarded-For", tt.header)
			}
			got, err := extract(req)
			if err != nil || got != tt.want {
				t.Errorf("got %s, %v; want %s", got, err, tt.want)
			}
		})
	}
}
