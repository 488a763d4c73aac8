package accessflow

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/yourusername/accessflow/clock"
	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/limiter"
	"github.com/yourusername/accessflow/metrics"
	"github.com/yourusername/accessflow/middleware"
	"github.com/yourusername/accessflow/password"
	"github.com/yourusername/accessflow/seal"
	"github.com/yourusername/accessflow/store"
	"github.com/yourusername/accessflow/token"
)

// AccessFlow bundles the admission controller with its HTTP interceptor,
// metrics and the optional token, password and sealing collaborators.
type AccessFlow struct {
	config      *Config
	logger      *slog.Logger
	controller  *limiter.Controller
	table       *store.MemoryTable // nil when a custom table was supplied
	interceptor *middleware.Interceptor
	metrics     *metrics.Metrics

	tokens   *token.Signer
	hasher   *password.Hasher
	sealer   *seal.Sealer
	blockLog *store.RedisBlockLog
}

// New creates an AccessFlow with the given options.
// If no config option is provided, NewConfig's defaults are used.
//
// Example:
//
//	af, err := New(
//	    WithDefaults(100, time.Minute, "127.0.0.1"),
//	    WithLogger(logger),
//	)
func New(opts ...Option) (_ *AccessFlow, err error) {
	s := &settings{
		config: NewConfig(),
		clock:  clock.Real{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	af := &AccessFlow{
		config:  s.config,
		logger:  s.logger,
		metrics: metrics.NewMetrics(),
	}
	defer func() {
		if err != nil {
			af.Close()
		}
	}()

	if err := af.buildCollaborators(); err != nil {
		return nil, err
	}

	limiterOpts := []limiter.Option{
		limiter.WithClock(s.clock),
		limiter.WithLogger(s.logger),
		limiter.WithRecorder(af.recorder(s.recorder)),
	}

	table := s.table
	if table == nil {
		memory, err := store.NewMemoryTable(s.config.RateLimiter.Shards, s.config.RateLimiter.IdleTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
		memory.SetNow(s.clock.Now)
		af.table = memory
		table = memory
	}
	limiterOpts = append(limiterOpts, limiter.WithTable(table))

	switch {
	case s.listener != nil:
		limiterOpts = append(limiterOpts, limiter.WithBlockListener(s.listener))
	case af.blockLog != nil:
		limiterOpts = append(limiterOpts, limiter.WithBlockListener(af.blockLog))
	}

	controller, err := limiter.New(s.config.RateLimiter.Config, limiterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter: %w", err)
	}
	af.controller = controller

	identify := s.identify
	if identify == nil {
		identify, err = middleware.ParseIdentityConfig(s.config.Identity)
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity config: %w", err)
		}
	}
	af.interceptor = middleware.NewInterceptor(controller, middleware.Config{
		Identify:     identify,
		ErrorHandler: s.onError,
		Logger:       s.logger,
	})

	return af, nil
}

func (af *AccessFlow) buildCollaborators() error {
	var err error
	if c := af.config.Token; c != nil {
		if af.tokens, err = token.New(*c); err != nil {
			return fmt.Errorf("%w: token: %w", ErrInvalidConfig, err)
		}
	}
	if c := af.config.Hash; c != nil {
		if af.hasher, err = password.New(*c); err != nil {
			return fmt.Errorf("%w: hash: %w", ErrInvalidConfig, err)
		}
	}
	if c := af.config.Encrypt; c != nil {
		if af.sealer, err = c.sealer(); err != nil {
			return err
		}
	}
	if c := af.config.Redis; c != nil {
		if af.blockLog, err = store.NewRedisBlockLog(*c); err != nil {
			return err
		}
	}
	return nil
}

func (af *AccessFlow) recorder(extra limiter.Recorder) limiter.Recorder {
	if extra == nil {
		return af.metrics
	}
	return recorders{af.metrics, extra}
}

type recorders []limiter.Recorder

func (rs recorders) RecordVerdict(id core.Identity, verdict core.Verdict) {
	for _, r := range rs {
		r.RecordVerdict(id, verdict)
	}
}

// Evaluate returns the admission verdict for one request from id.
func (af *AccessFlow) Evaluate(id core.Identity) core.Verdict {
	return af.controller.Evaluate(id)
}

// Middleware wraps next with admission control.
func (af *AccessFlow) Middleware(next http.Handler) http.Handler {
	return af.interceptor.Middleware(next)
}

// Limiter returns the underlying admission controller.
func (af *AccessFlow) Limiter() *limiter.Controller {
	return af.controller
}

// Metrics returns the verdict metrics.
func (af *AccessFlow) Metrics() *metrics.Metrics {
	return af.metrics
}

// Config returns the effective configuration.
func (af *AccessFlow) Config() *Config {
	return af.config
}

// Tokens returns the JWT signer, or ErrNotConfigured without a token section.
func (af *AccessFlow) Tokens() (*token.Signer, error) {
	if af.tokens == nil {
		return nil, fmt.Errorf("%w: token", ErrNotConfigured)
	}
	return af.tokens, nil
}

// Hasher returns the password hasher, or ErrNotConfigured without a hash section.
func (af *AccessFlow) Hasher() (*password.Hasher, error) {
	if af.hasher == nil {
		return nil, fmt.Errorf("%w: hash", ErrNotConfigured)
	}
	return af.hasher, nil
}

// Sealer returns the payload sealer, or ErrNotConfigured without an encrypt section.
func (af *AccessFlow) Sealer() (*seal.Sealer, error) {
	if af.sealer == nil {
		return nil, fmt.Errorf("%w: encrypt", ErrNotConfigured)
	}
	return af.sealer, nil
}

// BlockLog returns the Redis block log, or ErrNotConfigured without a redis section.
func (af *AccessFlow) BlockLog() (*store.RedisBlockLog, error) {
	if af.blockLog == nil {
		return nil, fmt.Errorf("%w: redis", ErrNotConfigured)
	}
	return af.blockLog, nil
}

// StartBackgroundSweep starts evicting idle counters when idle_ttl is set.
// Returns a function to stop the sweep goroutine.
func (af *AccessFlow) StartBackgroundSweep() func() {
	if af.table == nil {
		return func() {}
	}
	return af.table.StartBackgroundSweep(af.config.RateLimiter.SweepInterval, func(removed int) {
		if removed > 0 {
			af.logger.Debug("swept idle counters", slog.Int("removed", removed))
		}
	})
}

// Close releases the Redis connection, if any.
func (af *AccessFlow) Close() error {
	var errs []error
	if af.blockLog != nil {
		errs = append(errs, af.blockLog.Close())
	}
	return errors.Join(errs...)
}
