// Package password hashes passwords with a server-side pepper and bcrypt.
//
// The password is first reduced with HMAC-SHA-256 keyed by the pepper, which
// also keeps inputs under bcrypt's 72 byte limit.
package password

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when Config.Cost is zero.
const DefaultCost = 12

var (
	// ErrMismatch is returned by Compare when the password does not match.
	ErrMismatch = errors.New("password does not match")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("invalid hash config")
)

// Config holds the hasher settings.
type Config struct {
	Secret string `yaml:"secret"`
	Cost   int    `yaml:"cost,omitempty"`
}

// Hasher produces and checks peppered bcrypt hashes.
type Hasher struct {
	pepper []byte
	cost   int
}

// New builds a Hasher from config.
func New(config Config) (*Hasher, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	if config.Cost == 0 {
		config.Cost = DefaultCost
	}
	if config.Cost < bcrypt.MinCost || config.Cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: cost must be between %d and %d (got %d)",
			ErrInvalidConfig, bcrypt.MinCost, bcrypt.MaxCost, config.Cost)
	}
	return &Hasher{pepper: []byte(config.Secret), cost: config.Cost}, nil
}

// Hash returns the bcrypt hash of the peppered password.
func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(h.peppered(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare reports whether password matches hash. A wrong password returns
// ErrMismatch; a malformed hash returns a different error.
func (h *Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), h.peppered(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to compare password: %w", err)
	}
	return nil
}

// NeedsRehash reports whether hash was produced at a different cost than
// the hasher's current one.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != h.cost
}

func (h *Hasher) peppered(password string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	sum := mac.Sum(nil)

	// base64 so bcrypt never sees a NUL byte
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(sum)))
	base64.RawStdEncoding.Encode(out, sum)
	return out
}
