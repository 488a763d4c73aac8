package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourusername/accessflow/clock"
	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/store"
)

func newTestController(t *testing.T, config core.Config, opts ...Option) (*Controller, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c, err := New(config, append([]Option{WithClock(fake)}, opts...)...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c, fake
}

func TestController_BlocksAfterMaxRequests(t *testing.T) {
	c, fake := newTestController(t, core.Config{MaxRequests: 3, Interval: time.Second})

	for i := 0; i < 3; i++ {
		if v := c.Evaluate("A"); v != core.Allow {
			t.Fatalf("call %d: verdict = %v, want allow", i+1, v)
		}
	}

	fake.Advance(999 * time.Millisecond)
	if v := c.Evaluate("A"); v != core.DenyRateLimited {
		t.Fatalf("call 4: verdict = %v, want deny_rate_limited", v)
	}

	for i := 5; i <= 8; i++ {
		if v := c.Evaluate("A"); v != core.DenyBlocked {
			t.Errorf("call %d: verdict = %v, want deny_blocked", i, v)
		}
	}

	// Permanent regardless of elapsed time
	fake.Advance(24 * time.Hour)
	if v := c.Evaluate("A"); v != core.DenyBlocked {
		t.Errorf("after a day: verdict = %v, want deny_blocked", v)
	}

	counter, ok := c.Counter("A")
	if !ok || !counter.Blocked {
		t.Errorf("counter = %+v, want blocked", counter)
	}
	if counter.PendingDecays != 0 {
		t.Errorf("PendingDecays = %d, want 0 after all callbacks fired", counter.PendingDecays)
	}
}

func TestController_ExemptNeverCounted(t *testing.T) {
	table, _ := store.NewMemoryTable(4, 0)
	c, fake := newTestController(t, core.Config{
		MaxRequests: 1,
		Interval:    time.Second,
		Exempt:      []core.Identity{"B"},
	}, WithTable(table))

	for i := 0; i < 1000; i++ {
		if v := c.Evaluate("B"); v != core.Allow {
			t.Fatalf("call %d: verdict = %v, want allow", i+1, v)
		}
	}

	if table.Len() != 0 {
		t.Errorf("table Len() = %d, want 0 (exempt identities are not tracked)", table.Len())
	}
	if table.BlockedLen() != 0 {
		t.Errorf("BlockedLen() = %d, want 0", table.BlockedLen())
	}
	if fake.Pending() != 0 {
		t.Errorf("pending decays = %d, want 0", fake.Pending())
	}
	if !c.IsExempt("B") || c.IsExempt("C") {
		t.Error("IsExempt() mismatch")
	}
}

func TestController_DecayReadmits(t *testing.T) {
	c, fake := newTestController(t, core.Config{MaxRequests: 1, Interval: 50 * time.Millisecond})

	if v := c.Evaluate("A"); v != core.Allow {
		t.Fatalf("call 1: verdict = %v, want allow", v)
	}

	fake.Advance(60 * time.Millisecond)

	if v := c.Evaluate("A"); v != core.Allow {
		t.Fatalf("call 2 after window: verdict = %v, want allow", v)
	}
}

func TestController_DecayPolicies(t *testing.T) {
	// Two requests inside one window, then both callbacks fire in arrival order.
	tests := []struct {
		name  string
		decay core.DecayPolicy
		want  int
	}{
		{name: "decrement", decay: core.DecayDecrement, want: 0},
		{name: "default is decrement", decay: "", want: 0},
		{name: "reset keeps last written value", decay: core.DecayReset, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestController(t, core.Config{MaxRequests: 5, Interval: time.Second, Decay: tt.decay})

			c.Evaluate("A")
			fake.Advance(100 * time.Millisecond)
			c.Evaluate("A")

			fake.Advance(2 * time.Second)

			counter, _ := c.Counter("A")
			if counter.Count != tt.want {
				t.Errorf("Count = %d, want %d", counter.Count, tt.want)
			}
		})
	}
}

func TestController_DecayNeverNegativeNorIncreasing(t *testing.T) {
	tests := []struct {
		name  string
		decay core.DecayPolicy
	}{
		{"decrement", core.DecayDecrement},
		{"reset", core.DecayReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newTestController(t, core.Config{MaxRequests: 10, Interval: time.Second, Decay: tt.decay})

			peak := 0
			for step := 0; step < 50; step++ {
				if step%3 != 0 {
					c.Evaluate("A")
				}
				before, _ := c.Counter("A")
				if before.Count > peak {
					peak = before.Count
				}

				fake.Advance(400 * time.Millisecond)

				after, _ := c.Counter("A")
				if after.Count < 0 {
					t.Fatalf("step %d: Count = %d, negative", step, after.Count)
				}
				if after.Count > before.Count {
					t.Fatalf("step %d: decay raised Count from %d to %d", step, before.Count, after.Count)
				}
			}
			if peak > 10 {
				t.Errorf("peak Count = %d, above MaxRequests", peak)
			}
		})
	}
}

func TestController_IdentitiesAreIndependent(t *testing.T) {
	c, _ := newTestController(t, core.Config{MaxRequests: 2, Interval: time.Minute})

	c.Evaluate("A")
	c.Evaluate("A")
	if v := c.Evaluate("A"); v != core.DenyRateLimited {
		t.Fatalf("A: verdict = %v, want deny_rate_limited", v)
	}

	for i := 0; i < 2; i++ {
		if v := c.Evaluate("B"); v != core.Allow {
			t.Errorf("B call %d: verdict = %v, want allow", i+1, v)
		}
	}

	// No normalization: a textually different identity is a new caller
	if v := c.Evaluate("A "); v != core.Allow {
		t.Errorf("'A ' verdict = %v, want allow", v)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config core.Config
		opts   []Option
	}{
		{name: "zero max requests", config: core.Config{MaxRequests: 0, Interval: time.Second}},
		{name: "negative interval", config: core.Config{MaxRequests: 1, Interval: -time.Second}},
		{name: "empty exempt identity", config: core.Config{MaxRequests: 1, Interval: time.Second, Exempt: []core.Identity{""}}},
		{name: "nil clock", config: core.Config{MaxRequests: 1, Interval: time.Second}, opts: []Option{WithClock(nil)}},
		{name: "nil table", config: core.Config{MaxRequests: 1, Interval: time.Second}, opts: []Option{WithTable(nil)}},
		{name: "nil logger", config: core.Config{MaxRequests: 1, Interval: time.Second}, opts: []Option{WithLogger(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config, tt.opts...)
			if !errors.Is(err, core.ErrInvalidConfig) {
				t.Errorf("New() error = %v, want %v", err, core.ErrInvalidConfig)
			}
			if c != nil {
				t.Error("New() returned a controller alongside an error")
			}
		})
	}
}

type listenerFunc func(ctx context.Context, id core.Identity, at time.Time) error

func (f listenerFunc) IdentityBlocked(ctx context.Context, id core.Identity, at time.Time) error {
	return f(ctx, id, at)
}

func TestController_NotifiesBlockListenerOnce(t *testing.T) {
	events := make(chan core.Identity, 10)
	listener := listenerFunc(func(_ context.Context, id core.Identity, _ time.Time) error {
		events <- id
		return errors.New("listener failure is only logged")
	})

	c, _ := newTestController(t, core.Config{MaxRequests: 1, Interval: time.Second}, WithBlockListener(listener))

	c.Evaluate("A")
	c.Evaluate("A") // blocks
	c.Evaluate("A")
	c.Evaluate("A")

	select {
	case id := <-events:
		if id != "A" {
			t.Errorf("listener got %q, want A", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not notified")
	}

	select {
	case id := <-events:
		t.Errorf("listener notified twice (second: %q)", id)
	case <-time.After(50 * time.Millisecond):
	}
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[core.Verdict]int
}

func (r *countingRecorder) RecordVerdict(_ core.Identity, v core.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[v]++
}

func TestController_RecordsVerdicts(t *testing.T) {
	rec := &countingRecorder{counts: make(map[core.Verdict]int)}
	c, _ := newTestController(t, core.Config{
		MaxRequests: 1,
		Interval:    time.Second,
		Exempt:      []core.Identity{"E"},
	}, WithRecorder(rec))

	c.Evaluate("E")
	c.Evaluate("A")
	c.Evaluate("A")
	c.Evaluate("A")

	if rec.counts[core.Allow] != 2 || rec.counts[core.DenyRateLimited] != 1 || rec.counts[core.DenyBlocked] != 1 {
		t.Errorf("recorded = %v", rec.counts)
	}
}

func TestController_ConcurrentSameIdentity(t *testing.T) {
	const maxRequests = 50
	c, _ := newTestController(t, core.Config{MaxRequests: maxRequests, Interval: time.Hour})

	var allowed, rateLimited, blocked atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				switch c.Evaluate("hot") {
				case core.Allow:
					allowed.Add(1)
				case core.DenyRateLimited:
					rateLimited.Add(1)
				case core.DenyBlocked:
					blocked.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != maxRequests {
		t.Errorf("allowed = %d, want exactly %d", allowed.Load(), maxRequests)
	}
	if rateLimited.Load() != 1 {
		t.Errorf("rate limited = %d, want exactly 1", rateLimited.Load())
	}
	if total := allowed.Load() + rateLimited.Load() + blocked.Load(); total != 400 {
		t.Errorf("total = %d, want 400", total)
	}
	if s := c.Stats(); s.Blocked != 1 {
		t.Errorf("Stats().Blocked = %d, want 1", s.Blocked)
	}
}

func TestController_RealClockDecay(t *testing.T) {
	c, err := New(core.Config{MaxRequests: 1, Interval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if v := c.Evaluate("A"); v != core.Allow {
		t.Fatalf("call 1: verdict = %v, want allow", v)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		counter, _ := c.Counter("A")
		if counter.Count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("decay did not fire")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if v := c.Evaluate("A"); v != core.Allow {
		t.Errorf("call 2: verdict = %v, want allow", v)
	}
}

func TestController_Stats(t *testing.T) {
	c, _ := newTestController(t, core.Config{
		MaxRequests: 2,
		Interval:    time.Second,
		Exempt:      []core.Identity{"x", "y"},
		Decay:       core.DecayReset,
	})

	for i := 0; i < 5; i++ {
		c.Evaluate(core.Identity(fmt.Sprintf("10.0.0.%d", i)))
	}

	s := c.Stats()
	if s.Tracked != 5 || s.Blocked != 0 || s.Exempt != 2 || s.MaxRequests != 2 || s.Decay != core.DecayReset {
		t.Errorf("Stats() = %+v", s)
	}
}
