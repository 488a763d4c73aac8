package core

import (
	"fmt"
	"time"
)

// Identity attributes a request to a caller, typically its network address.
// Identities are compared verbatim; no normalization is applied.
type Identity string

// Verdict is the outcome of an admission decision.
type Verdict int

const (
	// Allow admits the request.
	Allow Verdict = iota
	// DenyRateLimited rejects the request that pushed the identity over the limit.
	DenyRateLimited
	// DenyBlocked rejects a request from a permanently blocked identity.
	DenyBlocked
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case DenyRateLimited:
		return "deny_rate_limited"
	case DenyBlocked:
		return "deny_blocked"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Allowed reports whether the request should be forwarded.
func (v Verdict) Allowed() bool {
	return v == Allow
}

// DecayPolicy selects how a fired decay callback changes a counter.
type DecayPolicy string

const (
	// DecayDecrement subtracts one from the counter, floored at zero.
	// Fire order does not matter.
	DecayDecrement DecayPolicy = "decrement"

	// DecayReset writes back the count observed just before the increment
	// that scheduled the callback. The last callback to fire wins.
	DecayReset DecayPolicy = "reset"
)

// Config holds the admission parameters. It is immutable once a controller
// has been built from it.
type Config struct {
	// MaxRequests is the number of admitted requests per window before an
	// identity is blocked.
	MaxRequests int `yaml:"max_requests"`

	// Interval is the decay window length.
	Interval time.Duration `yaml:"interval"`

	// Exempt identities bypass counting and are never blocked.
	Exempt []Identity `yaml:"exempt,omitempty"`

	// Decay selects the decay policy. Empty means DecayDecrement.
	Decay DecayPolicy `yaml:"decay,omitempty"`
}

// Validate checks the configuration and returns an error wrapping
// ErrInvalidConfig on the first problem found.
func (c *Config) Validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: %w (got %d)", ErrInvalidConfig, ErrNonPositiveMaxRequests, c.MaxRequests)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: %w (got %s)", ErrInvalidConfig, ErrNonPositiveInterval, c.Interval)
	}
	for i, id := range c.Exempt {
		if id == "" {
			return fmt.Errorf("%w: %w at index %d", ErrInvalidConfig, ErrEmptyIdentity, i)
		}
	}
	switch c.Decay {
	case "", DecayDecrement, DecayReset:
	default:
		return fmt.Errorf("%w: unknown decay policy %q", ErrInvalidConfig, c.Decay)
	}
	return nil
}

// EffectiveDecay returns the decay policy in force.
func (c *Config) EffectiveDecay() DecayPolicy {
	if c.Decay == "" {
		return DecayDecrement
	}
	return c.Decay
}
