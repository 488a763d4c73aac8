// Package accessflow re-exports the facade's main entry points so callers
// can import the module root.
package accessflow

import (
	"github.com/yourusername/accessflow/core"
	facade "github.com/yourusername/accessflow/pkg/accessflow"
)

// Re-export main types for convenience
type (
	AccessFlow = facade.AccessFlow
	Config     = facade.Config
	Option     = facade.Option
	Identity   = core.Identity
	Verdict    = core.Verdict
)

// Verdicts
const (
	Allow           = core.Allow
	DenyRateLimited = core.DenyRateLimited
	DenyBlocked     = core.DenyBlocked
)

// New creates a new AccessFlow
var New = facade.New

// Options
var (
	WithConfig        = facade.WithConfig
	WithConfigFile    = facade.WithConfigFile
	WithDefaults      = facade.WithDefaults
	WithLogger        = facade.WithLogger
	WithIdentity      = facade.WithIdentity
	WithErrorHandler  = facade.WithErrorHandler
	WithBlockListener = facade.WithBlockListener
)

// Errors
var (
	ErrInvalidConfig    = facade.ErrInvalidConfig
	ErrNotConfigured    = facade.ErrNotConfigured
	ErrExtractionFailed = facade.ErrExtractionFailed
)
