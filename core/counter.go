package core

// Counter is the per-identity admission state.
// It carries no lock of its own; callers serialize access per identity.
type Counter struct {
	// Count is the number of admitted requests in the current window.
	Count int

	// PendingDecays is the number of scheduled decay callbacks not yet fired.
	PendingDecays int

	// Blocked is set once the identity exceeds the limit and never cleared.
	Blocked bool
}

// Admit applies one request against the counter.
//
// On Allow it returns the count observed before the increment, which the
// caller hands back to Decay when the scheduled callback fires.
func (c *Counter) Admit(maxRequests int) (Verdict, int) {
	if c.Blocked {
		return DenyBlocked, 0
	}

	if c.Count >= maxRequests {
		c.Blocked = true
		return DenyRateLimited, 0
	}

	observed := c.Count
	c.Count++
	c.PendingDecays++
	return Allow, observed
}

// Decay applies one fired decay callback. observed is the value returned by
// the Admit call that scheduled it. Blocked counters only retire the pending
// callback.
func (c *Counter) Decay(policy DecayPolicy, observed int) {
	if c.PendingDecays > 0 {
		c.PendingDecays--
	}
	if c.Blocked {
		return
	}

	switch policy {
	case DecayReset:
		if observed < 0 {
			observed = 0
		}
		c.Count = observed
	default:
		if c.Count > 0 {
			c.Count--
		}
	}
}

// Idle reports whether the counter holds no state worth keeping.
func (c *Counter) Idle() bool {
	return c.Count == 0 && c.PendingDecays == 0 && !c.Blocked
}
