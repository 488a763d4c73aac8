// Package limiter implements the per-identity admission controller.
package limiter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/yourusername/accessflow/clock"
	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/store"
)

// Evaluator is the call surface the request interceptors depend on.
type Evaluator interface {
	Evaluate(id core.Identity) core.Verdict
}

// BlockListener is notified once per identity when it becomes blocked.
type BlockListener interface {
	IdentityBlocked(ctx context.Context, id core.Identity, at time.Time) error
}

// Recorder receives every verdict, e.g. for metrics.
type Recorder interface {
	RecordVerdict(id core.Identity, verdict core.Verdict)
}

// notifyTimeout bounds a single BlockListener call.
const notifyTimeout = 5 * time.Second

// Controller decides, per identity, whether a request is admitted.
//
// Each admitted request schedules one decay callback after the configured
// interval. Evaluate and the decay callbacks for one identity are serialized
// by the table's per-identity lock; different identities never share a lock.
type Controller struct {
	maxRequests int
	interval    time.Duration
	decay       core.DecayPolicy
	exempt      map[core.Identity]struct{}

	table    store.Table
	clock    clock.Clock
	logger   *slog.Logger
	listener BlockListener
	recorder Recorder
}

var _ Evaluator = (*Controller)(nil)

// New validates config and builds a Controller. Invalid configuration fails
// here with an error wrapping core.ErrInvalidConfig.
func New(config core.Config, opts ...Option) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		maxRequests: config.MaxRequests,
		interval:    config.Interval,
		decay:       config.EffectiveDecay(),
		exempt:      make(map[core.Identity]struct{}, len(config.Exempt)),
		clock:       clock.Real{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, id := range config.Exempt {
		c.exempt[id] = struct{}{}
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if c.table == nil {
		table, err := store.NewMemoryTable(store.DefaultShards, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create default table: %w", err)
		}
		c.table = table
	}

	return c, nil
}

// Evaluate returns the verdict for one request from id.
//
// Exempt identities are answered without touching the table; they are never
// counted, so they can never be blocked either.
func (c *Controller) Evaluate(id core.Identity) core.Verdict {
	if _, ok := c.exempt[id]; ok {
		c.record(id, core.Allow)
		return core.Allow
	}

	var verdict core.Verdict
	c.table.Update(id, func(counter *core.Counter) {
		var observed int
		verdict, observed = counter.Admit(c.maxRequests)
		if verdict == core.Allow {
			c.clock.AfterFunc(c.interval, func() { c.fireDecay(id, observed) })
		}
	})

	if verdict == core.DenyRateLimited {
		c.blocked(id)
	}
	c.record(id, verdict)
	return verdict
}

// fireDecay runs one scheduled decay under the identity's lock.
func (c *Controller) fireDecay(id core.Identity, observed int) {
	c.table.Update(id, func(counter *core.Counter) {
		counter.Decay(c.decay, observed)
	})
}

func (c *Controller) blocked(id core.Identity) {
	at := c.clock.Now()
	c.logger.Warn("identity blocked",
		slog.String("identity", string(id)),
		slog.Int("max_requests", c.maxRequests),
		slog.Duration("interval", c.interval),
	)

	if c.listener == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := c.listener.IdentityBlocked(ctx, id, at); err != nil {
			c.logger.Error("block listener failed",
				slog.String("identity", string(id)),
				slog.Any("error", err),
			)
		}
	}()
}

func (c *Controller) record(id core.Identity, verdict core.Verdict) {
	if c.recorder != nil {
		c.recorder.RecordVerdict(id, verdict)
	}
}

// IsExempt reports whether id bypasses limiting.
func (c *Controller) IsExempt(id core.Identity) bool {
	_, ok := c.exempt[id]
	return ok
}

// Counter returns a snapshot of id's counter, if tracked.
func (c *Controller) Counter(id core.Identity) (core.Counter, bool) {
	return c.table.Lookup(id)
}

// Stats summarizes the controller's table.
type Stats struct {
	Tracked     int              `json:"tracked"`
	Blocked     int              `json:"blocked"`
	Exempt      int              `json:"exempt"`
	MaxRequests int              `json:"max_requests"`
	Interval    time.Duration    `json:"interval"`
	Decay       core.DecayPolicy `json:"decay"`
}

// Stats returns a point-in-time summary.
func (c *Controller) Stats() Stats {
	return Stats{
		Tracked:     c.table.Len(),
		Blocked:     c.table.BlockedLen(),
		Exempt:      len(c.exempt),
		MaxRequests: c.maxRequests,
		Interval:    c.interval,
		Decay:       c.decay,
	}
}
