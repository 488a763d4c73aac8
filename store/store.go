package store

import "github.com/yourusername/accessflow/core"

// Table defines the admission table: per-identity counters with
// per-identity serialization.
type Table interface {
	// Update runs fn on the identity's counter, creating a zero counter if
	// none exists. fn runs with the identity's lock held and must not block;
	// calls for other identities proceed independently.
	Update(id core.Identity, fn func(c *core.Counter))

	// Lookup returns a copy of the identity's counter.
	Lookup(id core.Identity) (core.Counter, bool)

	// Len returns the number of tracked identities.
	Len() int

	// BlockedLen returns the number of blocked identities.
	BlockedLen() int
}
