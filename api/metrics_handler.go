package api

import (
	"encoding/json"
	"net/http"

	"github.com/yourusername/accessflow/limiter"
	"github.com/yourusername/accessflow/metrics"
)

// MetricsProvider defines the interface for getting metrics
type MetricsProvider interface {
	GetSnapshot() *metrics.Snapshot
}

// StatsProvider reports the controller's table summary.
type StatsProvider interface {
	Stats() limiter.Stats
}

// MetricsResponse is the body of GET /metrics.
type MetricsResponse struct {
	*metrics.Snapshot
	Table *limiter.Stats `json:"table,omitempty"`
}

// MetricsHandler handles GET /metrics requests
type MetricsHandler struct {
	provider MetricsProvider
	stats    StatsProvider
}

// NewMetricsHandler creates a new metrics handler. stats may be nil.
func NewMetricsHandler(provider MetricsProvider, stats StatsProvider) *MetricsHandler {
	return &MetricsHandler{provider: provider, stats: stats}
}

// ServeHTTP handles the metrics endpoint
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := MetricsResponse{Snapshot: h.provider.GetSnapshot()}
	if h.stats != nil {
		s := h.stats.Stats()
		resp.Table = &s
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
