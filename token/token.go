// Package token signs and verifies HMAC JWTs, optionally sealing the payload.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidToken is returned for any token that fails to parse or verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("invalid token config")
)

const (
	// DefaultExpiresIn is used when Config.ExpiresIn is zero.
	DefaultExpiresIn = time.Hour

	// DefaultAlgorithm is used when Config.Algorithm is empty.
	DefaultAlgorithm = "HS256"

	payloadKeyInfo = "accessflow:token:payload:v1"
	payloadKeySize = 32
)

// Config holds the signer settings.
type Config struct {
	Secret         string        `yaml:"secret"`
	Algorithm      string        `yaml:"algorithm,omitempty"`
	ExpiresIn      time.Duration `yaml:"expires_in,omitempty"`
	Issuer         string        `yaml:"issuer,omitempty"`
	EncryptPayload bool          `yaml:"encrypt_payload,omitempty"`
}

// Claims is the claim set carried by tokens issued by a Signer.
// Exactly one of Payload and Sealed is set on the wire; Verify always
// returns the opened Payload.
type Claims struct {
	jwt.RegisteredClaims
	Payload map[string]any `json:"payload,omitempty"`
	Sealed  string         `json:"sealed,omitempty"`
}

// Signer issues and verifies tokens.
type Signer struct {
	method    jwt.SigningMethod
	secret    []byte
	expiresIn time.Duration
	issuer    string
	aead      cipher.AEAD // nil unless payloads are sealed
	now       func() time.Time
}

// New builds a Signer from config.
func New(config Config) (*Signer, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	if config.Algorithm == "" {
		config.Algorithm = DefaultAlgorithm
	}
	if config.ExpiresIn == 0 {
		config.ExpiresIn = DefaultExpiresIn
	}
	if config.ExpiresIn < 0 {
		return nil, fmt.Errorf("%w: expires_in must be positive (got %v)", ErrInvalidConfig, config.ExpiresIn)
	}

	var method jwt.SigningMethod
	switch config.Algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, config.Algorithm)
	}

	s := &Signer{
		method:    method,
		secret:    []byte(config.Secret),
		expiresIn: config.ExpiresIn,
		issuer:    config.Issuer,
		now:       time.Now,
	}

	if config.EncryptPayload {
		aead, err := payloadCipher(s.secret)
		if err != nil {
			return nil, err
		}
		s.aead = aead
	}

	return s, nil
}

// Sign issues a token for subject carrying payload (which may be nil).
func (s *Signer) Sign(subject string, payload map[string]any) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
		},
	}

	if s.aead != nil && payload != nil {
		sealed, err := s.seal(payload)
		if err != nil {
			return "", err
		}
		claims.Sealed = sealed
	} else {
		claims.Payload = payload
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm, expiry and issuer of tokenString
// and returns its claims with the payload opened.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{s.method.Alg()}))

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}

	if claims.Sealed != "" {
		if s.aead == nil {
			return nil, fmt.Errorf("%w: sealed payload but payload encryption is disabled", ErrInvalidToken)
		}
		payload, err := s.open(claims.Sealed)
		if err != nil {
			return nil, err
		}
		claims.Payload = payload
		claims.Sealed = ""
	}

	return claims, nil
}

func payloadCipher(secret []byte) (cipher.AEAD, error) {
	key := make([]byte, payloadKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(payloadKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive payload key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// seal returns base64url(nonce || ciphertext || tag).
func (s *Signer) seal(payload map[string]any) (string, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(s.aead.Seal(nonce, nonce, plaintext, nil)), nil
}

func (s *Signer) open(sealed string) (map[string]any, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: sealed payload encoding: %w", ErrInvalidToken, err)
	}
	if len(data) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed payload too short", ErrInvalidToken)
	}

	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: sealed payload decryption failed", ErrInvalidToken)
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: sealed payload: %w", ErrInvalidToken, err)
	}
	return payload, nil
}
