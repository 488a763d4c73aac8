package accessflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/accessflow/core"
	"github.com/yourusername/accessflow/middleware"
	"github.com/yourusername/accessflow/password"
	"github.com/yourusername/accessflow/seal"
	"github.com/yourusername/accessflow/store"
	"github.com/yourusername/accessflow/token"
)

// DefaultSweepInterval is how often idle counters are swept when idle_ttl is set.
const DefaultSweepInterval = time.Minute

// Config holds the full facade configuration.
// Only RateLimiter is required; the other sections enable their collaborator
// when present.
type Config struct {
	// RateLimiter configures admission control
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`

	// Identity specifies how the middleware identifies callers
	// Examples: "ip", "forwarded", "header:X-API-Key"
	Identity string `yaml:"identity,omitempty"`

	Token   *token.Config      `yaml:"token,omitempty"`
	Hash    *password.Config   `yaml:"hash,omitempty"`
	Encrypt *EncryptConfig     `yaml:"encrypt,omitempty"`
	Redis   *store.RedisConfig `yaml:"redis,omitempty"`
}

// RateLimiterConfig is core.Config plus the in-memory table settings.
type RateLimiterConfig struct {
	core.Config `yaml:",inline"`

	// Shards is the table shard count, a power of two (0 selects the default)
	Shards int `yaml:"shards,omitempty"`

	// IdleTTL removes idle, unblocked counters not seen for this long
	// 0 disables eviction
	IdleTTL time.Duration `yaml:"idle_ttl,omitempty"`

	// SweepInterval is how often the background sweep runs
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
}

// EncryptConfig configures payload sealing.
type EncryptConfig struct {
	// SecretKey is a base64url ML-KEM-768 secret key
	SecretKey string `yaml:"secret_key"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		RateLimiter: RateLimiterConfig{
			Config: core.Config{
				MaxRequests: 100,
				Interval:    time.Minute,
				Decay:       core.DecayDecrement,
			},
			SweepInterval: DefaultSweepInterval,
		},
		Identity: "ip",
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %w", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, applies defaults and validates it.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidConfig, err)
	}

	// Apply defaults if not set
	if config.Identity == "" {
		config.Identity = "ip"
	}
	if config.RateLimiter.Decay == "" {
		config.RateLimiter.Decay = core.DecayDecrement
	}
	if config.RateLimiter.SweepInterval == 0 {
		config.RateLimiter.SweepInterval = DefaultSweepInterval
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
// Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.RateLimiter.Validate(); err != nil {
		return err
	}

	if _, err := middleware.ParseIdentityConfig(c.Identity); err != nil {
		return err
	}

	if c.Token != nil {
		if _, err := token.New(*c.Token); err != nil {
			return fmt.Errorf("%w: token: %w", ErrInvalidConfig, err)
		}
	}
	if c.Hash != nil {
		if _, err := password.New(*c.Hash); err != nil {
			return fmt.Errorf("%w: hash: %w", ErrInvalidConfig, err)
		}
	}
	if c.Encrypt != nil {
		if _, err := c.Encrypt.sealer(); err != nil {
			return err
		}
	}
	if c.Redis != nil && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis: addr is required", ErrInvalidConfig)
	}

	return nil
}

// Validate checks the limiter and table settings.
func (r *RateLimiterConfig) Validate() error {
	if err := r.Config.Validate(); err != nil {
		return err
	}
	if r.Shards < 0 || r.Shards&(r.Shards-1) != 0 {
		return fmt.Errorf("%w: shards must be a power of two (got %d)", ErrInvalidConfig, r.Shards)
	}
	if r.IdleTTL < 0 {
		return fmt.Errorf("%w: idle_ttl cannot be negative", ErrInvalidConfig)
	}
	if r.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep_interval cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func (e *EncryptConfig) sealer() (*seal.Sealer, error) {
	key, err := seal.FromBase64URL(e.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: secret_key is not base64url: %w", ErrInvalidConfig, err)
	}
	s, err := seal.NewSealer(key)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt: %w", ErrInvalidConfig, err)
	}
	return s, nil
}
