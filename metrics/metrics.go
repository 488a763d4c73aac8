// Package metrics keeps in-process verdict counters for the admission controller.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/accessflow/core"
)

// topIdentities bounds the per-identity list in a Snapshot.
const topIdentities = 10

// Metrics tracks admission statistics
type Metrics struct {
	totalRequests       atomic.Int64
	allowedRequests     atomic.Int64
	rateLimitedRequests atomic.Int64
	blockedRequests     atomic.Int64

	// Per-identity stats
	mu            sync.RWMutex
	identityStats map[core.Identity]*IdentityStats
	startTime     time.Time
	now           func() time.Time
}

// IdentityStats tracks statistics for a single identity
type IdentityStats struct {
	Identity            core.Identity `json:"identity"`
	TotalRequests       int64         `json:"total_requests"`
	AllowedRequests     int64         `json:"allowed_requests"`
	RateLimitedRequests int64         `json:"rate_limited_requests"`
	BlockedRequests     int64         `json:"blocked_requests"`
	FirstRequestAt      time.Time     `json:"first_request_at"`
	LastRequestAt       time.Time     `json:"last_request_at"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		identityStats: make(map[core.Identity]*IdentityStats),
		startTime:     time.Now(),
		now:           time.Now,
	}
}

// RecordVerdict records one admission decision. It satisfies limiter.Recorder.
func (m *Metrics) RecordVerdict(id core.Identity, verdict core.Verdict) {
	m.totalRequests.Add(1)
	switch verdict {
	case core.Allow:
		m.allowedRequests.Add(1)
	case core.DenyRateLimited:
		m.rateLimitedRequests.Add(1)
	case core.DenyBlocked:
		m.blockedRequests.Add(1)
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.identityStats[id]
	if !exists {
		stats = &IdentityStats{
			Identity:       id,
			FirstRequestAt: now,
		}
		m.identityStats[id] = stats
	}

	stats.TotalRequests++
	switch verdict {
	case core.Allow:
		stats.AllowedRequests++
	case core.DenyRateLimited:
		stats.RateLimitedRequests++
	case core.DenyBlocked:
		stats.BlockedRequests++
	}
	stats.LastRequestAt = now
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	top := make([]*IdentityStats, 0, len(m.identityStats))
	for _, stats := range m.identityStats {
		copied := *stats
		top = append(top, &copied)
	}
	unique := int64(len(m.identityStats))
	m.mu.RUnlock()

	sort.Slice(top, func(i, j int) bool {
		if top[i].TotalRequests != top[j].TotalRequests {
			return top[i].TotalRequests > top[j].TotalRequests
		}
		return top[i].Identity < top[j].Identity
	})
	if len(top) > topIdentities {
		top = top[:topIdentities]
	}

	return &Snapshot{
		TotalRequests:       m.totalRequests.Load(),
		AllowedRequests:     m.allowedRequests.Load(),
		RateLimitedRequests: m.rateLimitedRequests.Load(),
		BlockedRequests:     m.blockedRequests.Load(),
		UniqueIdentities:    unique,
		TopIdentities:       top,
		UptimeSeconds:       int64(m.now().Sub(m.startTime).Seconds()),
		StartTime:           m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalRequests       int64            `json:"total_requests"`
	AllowedRequests     int64            `json:"allowed_requests"`
	RateLimitedRequests int64            `json:"rate_limited_requests"`
	BlockedRequests     int64            `json:"blocked_requests"`
	UniqueIdentities    int64            `json:"unique_identities"`
	TopIdentities       []*IdentityStats `json:"top_identities"`
	UptimeSeconds       int64            `json:"uptime_seconds"`
	StartTime           time.Time        `json:"start_time"`
}
