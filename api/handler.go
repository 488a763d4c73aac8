// Package api exposes the admission controller as a JSON service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/limiter"
)

const (
	// maxBodyBytes caps the POST /evaluate body
	maxBodyBytes = 4 << 10

	// MaxIdentityLength is the longest identity /evaluate accepts, in bytes
	MaxIdentityLength = 256
)

// Handler handles admission check requests
type Handler struct {
	evaluator limiter.Evaluator
}

// NewHandler creates a new API handler
func NewHandler(evaluator limiter.Evaluator) *Handler {
	return &Handler{evaluator: evaluator}
}

// EvaluateRequest represents the incoming admission check
type EvaluateRequest struct {
	Identity core.Identity `json:"identity"` // Required: caller identity, usually an IP
}

// EvaluateResponse represents the admission decision
type EvaluateResponse struct {
	Identity core.Identity `json:"identity"`
	Verdict  string        `json:"verdict"` // allow, deny_rate_limited or deny_blocked
	Allowed  bool          `json:"allowed"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Evaluate handles POST /evaluate requests
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req EvaluateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.Identity == "" {
		h.sendError(w, http.StatusBadRequest, "missing_identity", "identity is required")
		return
	}
	if len(req.Identity) > MaxIdentityLength {
		h.sendError(w, http.StatusBadRequest, "identity_too_long", "identity exceeds 256 bytes")
		return
	}

	verdict := h.evaluator.Evaluate(req.Identity)

	statusCode := http.StatusOK
	switch verdict {
	case core.DenyRateLimited:
		statusCode = http.StatusTooManyRequests
	case core.DenyBlocked:
		statusCode = http.StatusForbidden
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(EvaluateResponse{
		Identity: req.Identity,
		Verdict:  verdict.String(),
		Allowed:  verdict.Allowed(),
	})
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
