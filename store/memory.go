package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/yourusername/accessflow/core"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

// MemoryTable implements Table with a sharded in-memory map.
// A shard lock guards lookup and insertion only; each identity carries its
// own mutex for counter updates.
type MemoryTable struct {
	shards  []*shard
	mask    uint64
	idleTTL time.Duration
	now     func() time.Time
	blocked atomic.Int64
}

// Ensure MemoryTable implements Table interface
var _ Table = (*MemoryTable)(nil)

type shard struct {
	mu      sync.Mutex
	entries map[core.Identity]*entry
}

// entry wraps a counter with metadata for idle eviction.
type entry struct {
	mu       sync.Mutex
	counter  core.Counter
	lastSeen time.Time
	evicted  bool
}

// NewMemoryTable creates a table with the given shard count (a power of two,
// 0 selects DefaultShards). Counters idle for longer than idleTTL are removed
// by Sweep; 0 disables eviction.
func NewMemoryTable(shards int, idleTTL time.Duration) (*MemoryTable, error) {
	if shards == 0 {
		shards = DefaultShards
	}
	if shards < 0 || shards&(shards-1) != 0 {
		return nil, fmt.Errorf("%w: shard count must be a power of two (got %d)", core.ErrInvalidConfig, shards)
	}
	if idleTTL < 0 {
		return nil, fmt.Errorf("%w: idle ttl cannot be negative", core.ErrInvalidConfig)
	}

	t := &MemoryTable{
		shards:  make([]*shard, shards),
		mask:    uint64(shards - 1),
		idleTTL: idleTTL,
		now:     time.Now,
	}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[core.Identity]*entry)}
	}
	return t, nil
}

// SetNow replaces the time source used for idle tracking.
func (t *MemoryTable) SetNow(now func() time.Time) {
	t.now = now
}

func (t *MemoryTable) shardFor(id core.Identity) *shard {
	return t.shards[xxhash.Sum64String(string(id))&t.mask]
}

// Update runs fn on the identity's counter under the identity's lock.
func (t *MemoryTable) Update(id core.Identity, fn func(c *core.Counter)) {
	s := t.shardFor(id)

	for {
		s.mu.Lock()
		e, ok := s.entries[id]
		if !ok {
			e = &entry{}
			s.entries[id] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.evicted {
			// Lost a race with Sweep; the next lookup creates a fresh entry
			e.mu.Unlock()
			continue
		}

		wasBlocked := e.counter.Blocked
		fn(&e.counter)
		e.lastSeen = t.now()
		if !wasBlocked && e.counter.Blocked {
			t.blocked.Add(1)
		}
		e.mu.Unlock()
		return
	}
}

// Lookup returns a snapshot of the identity's counter.
func (t *MemoryTable) Lookup(id core.Identity) (core.Counter, bool) {
	s := t.shardFor(id)

	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return core.Counter{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return core.Counter{}, false
	}
	return e.counter, true
}

// Len returns the total number of tracked identities.
func (t *MemoryTable) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// BlockedLen returns the number of blocked identities.
func (t *MemoryTable) BlockedLen() int {
	return int(t.blocked.Load())
}

// Sweep removes counters that are idle and have not been touched within the
// idle TTL. Blocked identities are kept. Returns the number removed.
func (t *MemoryTable) Sweep() int {
	if t.idleTTL == 0 {
		return 0 // Eviction disabled
	}

	cutoff := t.now().Add(-t.idleTTL)
	removed := 0

	for _, s := range t.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			// Lock order is shard then entry; Update never holds an entry
			// lock while taking a shard lock.
			e.mu.Lock()
			if e.counter.Idle() && e.lastSeen.Before(cutoff) {
				e.evicted = true
				delete(s.entries, id)
				removed++
			}
			e.mu.Unlock()
		}
		s.mu.Unlock()
	}

	return removed
}

// StartBackgroundSweep starts a goroutine that calls Sweep every interval.
// Call the returned function to stop it.
func (t *MemoryTable) StartBackgroundSweep(interval time.Duration, onSweep func(removed int)) func() {
	if t.idleTTL == 0 || interval <= 0 {
		// Return no-op function if eviction is disabled
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				removed := t.Sweep()
				if onSweep != nil {
					onSweep(removed)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
