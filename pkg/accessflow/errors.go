package accessflow

import (
	"errors"

	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/middleware"
)

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = core.ErrInvalidConfig

	// ErrNotConfigured is returned when accessing a collaborator whose
	// config section is absent
	ErrNotConfigured = errors.New("collaborator not configured")

	// ErrExtractionFailed is returned when no identity can be derived from a request
	ErrExtractionFailed = middleware.ErrExtractionFailed
)
