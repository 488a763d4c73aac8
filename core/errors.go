package core

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNonPositiveMaxRequests is returned when max requests is zero or negative
	ErrNonPositiveMaxRequests = errors.New("max requests must be positive")

	// ErrNonPositiveInterval is returned when the decay interval is zero or negative
	ErrNonPositiveInterval = errors.New("interval must be positive")

	// ErrEmptyIdentity is returned when an exempt identity is empty
	ErrEmptyIdentity = errors.New("identity cannot be empty")
)
