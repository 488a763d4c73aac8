package limiter

import (
	"fmt"
	"log/slog"

	"github.com/yourusername/accessflow/clock"
	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/store"
)

// Option is a functional option for configuring a Controller.
type Option func(*Controller) error

// WithTable sets the admission table.
// If not provided, an in-memory table with default shards and no eviction is used.
func WithTable(table store.Table) Option {
	return func(c *Controller) error {
		if table == nil {
			return fmt.Errorf("%w: table cannot be nil", core.ErrInvalidConfig)
		}
		c.table = table
		return nil
	}
}

// WithClock sets the clock used to schedule decay.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) error {
		if clk == nil {
			return fmt.Errorf("%w: clock cannot be nil", core.ErrInvalidConfig)
		}
		c.clock = clk
		return nil
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", core.ErrInvalidConfig)
		}
		c.logger = logger
		return nil
	}
}

// WithBlockListener sets a listener notified when an identity becomes blocked.
func WithBlockListener(listener BlockListener) Option {
	return func(c *Controller) error {
		c.listener = listener
		return nil
	}
}

// WithRecorder sets a recorder that receives every verdict.
func WithRecorder(recorder Recorder) Option {
	return func(c *Controller) error {
		c.recorder = recorder
		return nil
	}
}
