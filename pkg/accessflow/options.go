package accessflow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yourusername/accessflow/clock"
	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/limiter"
	"github.com/yourusername/accessflow/middleware"
	"github.com/yourusername/accessflow/store"
)

// Option is a functional option for configuring an AccessFlow.
type Option func(*settings) error

type settings struct {
	config   *Config
	clock    clock.Clock
	logger   *slog.Logger
	table    store.Table
	listener limiter.BlockListener
	recorder limiter.Recorder
	identify middleware.IdentityFunc
	onError  middleware.ErrorHandler
}

// WithConfig sets the configuration.
func WithConfig(config *Config) Option {
	return func(s *settings) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(s *settings) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithDefaults sets simple admission parameters.
// This is a convenience option for basic use cases.
func WithDefaults(maxRequests int, interval time.Duration, exempt ...core.Identity) Option {
	return func(s *settings) error {
		config := NewConfig()
		config.RateLimiter.MaxRequests = maxRequests
		config.RateLimiter.Interval = interval
		config.RateLimiter.Exempt = exempt
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithClock sets the time source used for decay scheduling.
func WithClock(clk clock.Clock) Option {
	return func(s *settings) error {
		if clk == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		s.clock = clk
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		s.logger = logger
		return nil
	}
}

// WithTable sets a custom admission table. The table settings from the
// config (shards, idle_ttl) are ignored.
func WithTable(table store.Table) Option {
	return func(s *settings) error {
		if table == nil {
			return fmt.Errorf("%w: table cannot be nil", ErrInvalidConfig)
		}
		s.table = table
		return nil
	}
}

// WithBlockListener sets the listener notified when an identity is blocked.
// It takes precedence over the redis config section.
func WithBlockListener(listener limiter.BlockListener) Option {
	return func(s *settings) error {
		if listener == nil {
			return fmt.Errorf("%w: block listener cannot be nil", ErrInvalidConfig)
		}
		s.listener = listener
		return nil
	}
}

// WithRecorder adds a verdict recorder alongside the built-in metrics.
func WithRecorder(recorder limiter.Recorder) Option {
	return func(s *settings) error {
		if recorder == nil {
			return fmt.Errorf("%w: recorder cannot be nil", ErrInvalidConfig)
		}
		s.recorder = recorder
		return nil
	}
}

// WithIdentity sets a custom identity extractor for the middleware,
// overriding the config's identity setting.
func WithIdentity(identify middleware.IdentityFunc) Option {
	return func(s *settings) error {
		if identify == nil {
			return fmt.Errorf("%w: identity extractor cannot be nil", ErrInvalidConfig)
		}
		s.identify = identify
		return nil
	}
}

// WithErrorHandler sets the handler for requests whose identity cannot be
// extracted.
func WithErrorHandler(handler middleware.ErrorHandler) Option {
	return func(s *settings) error {
		if handler == nil {
			return fmt.Errorf("%w: error handler cannot be nil", ErrInvalidConfig)
		}
		s.onError = handler
		return nil
	}
}
