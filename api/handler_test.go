package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/accessflow/clock"
	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/limiter"
	"github.com/yourusername/accessflow/metrics"
)

func newTestController(t *testing.T, config core.Config, opts ...limiter.Option) *limiter.Controller {
	t.Helper()
	opts = append([]limiter.Option{limiter.WithClock(clock.NewFake(time.Unix(0, 0)))}, opts...)
	c, err := limiter.New(config, opts...)
	if err != nil {
		t.Fatalf("limiter.New() failed: %v", err)
	}
	return c
}

func postEvaluate(handler *Handler, identity core.Identity) *httptest.ResponseRecorder {
	body, _ := json.Marshal(EvaluateRequest{Identity: identity})
	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	handler.Evaluate(w, req)
	return w
}

func TestEvaluate_AllowsRequests(t *testing.T) {
	handler := NewHandler(newTestController(t, core.Config{MaxRequests: 10, Interval: time.Second}))

	w := postEvaluate(handler, "test-user")

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp EvaluateResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if !resp.Allowed || resp.Verdict != "allow" {
		t.Errorf("response = %+v, want allowed", resp)
	}
	if resp.Identity != "test-user" {
		t.Errorf("Identity = %s, want test-user", resp.Identity)
	}
}

func TestEvaluate_RateLimitThenBlock(t *testing.T) {
	handler := NewHandler(newTestController(t, core.Config{MaxRequests: 5, Interval: time.Second}))

	for i := 0; i < 5; i++ {
		postEvaluate(handler, "test-user")
	}

	tests := []struct {
		status  int
		verdict string
	}{
		{status: http.StatusTooManyRequests, verdict: "deny_rate_limited"},
		{status: http.StatusForbidden, verdict: "deny_blocked"},
		{status: http.StatusForbidden, verdict: "deny_blocked"},
	}

	for i, tt := range tests {
		w := postEvaluate(handler, "test-user")
		if w.Code != tt.status {
			t.Errorf("request %d: Status = %d, want %d", i+6, w.Code, tt.status)
		}

		var resp EvaluateResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Allowed || resp.Verdict != tt.verdict {
			t.Errorf("request %d: response = %+v, want %s", i+6, resp, tt.verdict)
		}
	}
}

func TestEvaluate_RequiresIdentity(t *testing.T) {
	handler := NewHandler(newTestController(t, core.Config{MaxRequests: 10, Interval: time.Second}))

	w := postEvaluate(handler, "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error != "missing_identity" {
		t.Errorf("Error = %s, want missing_identity", resp.Error)
	}
}

func TestEvaluate_RejectsBadInput(t *testing.T) {
	handler := NewHandler(newTestController(t, core.Config{MaxRequests: 10, Interval: time.Second}))

	req := httptest.NewRequest(http.MethodGet, "/evaluate", nil)
	w := httptest.NewRecorder()
	handler.Evaluate(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}

	req = httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("{not json"))
	w = httptest.NewRecorder()
	handler.Evaluate(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEvaluate_RejectsOversizedInput(t *testing.T) {
	c := newTestController(t, core.Config{MaxRequests: 10, Interval: time.Second})
	handler := NewHandler(c)

	long := core.Identity(strings.Repeat("a", MaxIdentityLength+1))
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{
			name:      "identity too long",
			body:      `{"identity":"` + string(long) + `"}`,
			wantError: "identity_too_long",
		},
		{
			name:      "body over limit",
			body:      `{"identity":"` + strings.Repeat("b", maxBodyBytes) + `"}`,
			wantError: "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.Evaluate(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var resp ErrorResponse
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Error != tt.wantError {
				t.Errorf("Error = %s, want %s", resp.Error, tt.wantError)
			}
		})
	}

	if got := c.Stats().Tracked; got != 0 {
		t.Errorf("Tracked = %d, want 0", got)
	}

	w := postEvaluate(handler, core.Identity(strings.Repeat("c", MaxIdentityLength)))
	if w.Code != http.StatusOK {
		t.Errorf("identity at limit: Status = %d, want 200", w.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := metrics.NewMetrics()
	controller := newTestController(t, core.Config{MaxRequests: 1, Interval: time.Second}, limiter.WithRecorder(m))
	handler := NewHandler(controller)

	postEvaluate(handler, "A")
	postEvaluate(handler, "A")
	postEvaluate(handler, "A")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	NewMetricsHandler(m, controller).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp MetricsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Snapshot == nil || resp.TotalRequests != 3 || resp.AllowedRequests != 1 ||
		resp.RateLimitedRequests != 1 || resp.BlockedRequests != 1 {
		t.Errorf("snapshot = %+v", resp.Snapshot)
	}
	if resp.Table == nil || resp.Table.Blocked != 1 || resp.Table.Tracked != 1 {
		t.Errorf("table = %+v, want 1 tracked, 1 blocked", resp.Table)
	}

	req = httptest.NewRequest(http.MethodPost, "/metrics", nil)
	w = httptest.NewRecorder()
	NewMetricsHandler(m, nil).ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
