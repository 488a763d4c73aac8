package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven Clock for tests. Callbacks fire synchronously
// inside Advance, earliest deadline first, ties in scheduling order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

var _ Clock = (*Fake)(nil)

type fakeTimer struct {
	clock *Fake
	at    time.Time
	seq   uint64
	fn    func()
	done  bool
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run once the fake time reaches now+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		clock: f,
		at:    f.now.Add(d),
		seq:   f.seq,
		fn:    fn,
	}
	f.seq++
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every callback that falls due.
// Callbacks run without the clock's lock held, so they may schedule more.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		idx := -1
		for i, t := range f.timers {
			if t.at.After(target) {
				continue
			}
			if idx < 0 || t.at.Before(f.timers[idx].at) ||
				(t.at.Equal(f.timers[idx].at) && t.seq < f.timers[idx].seq) {
				idx = i
			}
		}
		if idx < 0 {
			f.now = target
			f.mu.Unlock()
			return
		}

		t := f.timers[idx]
		f.timers = append(f.timers[:idx], f.timers[idx+1:]...)
		t.done = true
		if t.at.After(f.now) {
			f.now = t.at
		}
		f.mu.Unlock()

		t.fn()
	}
}

// Pending returns the number of callbacks that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (t *fakeTimer) Stop() bool {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	for i, other := range f.timers {
		if other == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			break
		}
	}
	return true
}
