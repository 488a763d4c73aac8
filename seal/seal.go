// Package seal encrypts payloads to an ML-KEM-768 public key.
//
// A sealed envelope is laid out as
//
//	version (1 byte) || KEM ciphertext || AES-GCM nonce || AES-GCM ciphertext+tag
//
// The AES-256 key is derived from the KEM shared secret with HKDF-SHA-512,
// salted with SHA-256 of the KEM ciphertext.
package seal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"golang.org/x/crypto/hkdf"
)

const (
	// Version is the envelope format version.
	Version byte = 1

	hkdfContext  = "accessflow:seal:v1"
	aesKeySize   = 32
	aesNonceSize = 12
	aesTagSize   = 16
)

var (
	// ErrInvalidKey is returned for keys of the wrong size or encoding.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidEnvelope is returned for truncated or unknown envelopes.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrDecryptionFailed is returned when authentication fails.
	ErrDecryptionFailed = errors.New("decryption failed")
)

var scheme kem.Scheme = mlkem768.Scheme()

// Keypair is a raw ML-KEM-768 keypair.
type Keypair struct {
	PublicKey []byte
	SecretKey []byte
}

// GenerateKeypair creates a new ML-KEM-768 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}

	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &Keypair{PublicKey: pubBytes, SecretKey: privBytes}, nil
}

// Seal encrypts plaintext to publicKey.
func Seal(publicKey, plaintext []byte) ([]byte, error) {
	if len(publicKey) != scheme.PublicKeySize() {
		return nil, fmt.Errorf("%w: public key is %d bytes, want %d", ErrInvalidKey, len(publicKey), scheme.PublicKeySize())
	}
	pub, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	ctKem, sharedSecret, err := scheme.Encapsulate(pub)
	if err != nil {
		return nil, fmt.Errorf("encapsulate: %w", err)
	}

	gcm, err := newGCM(sharedSecret, ctKem)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	header := make([]byte, 0, 1+len(ctKem)+aesNonceSize)
	header = append(header, Version)
	header = append(header, ctKem...)
	header = append(header, nonce...)

	// The version and KEM ciphertext are authenticated as associated data.
	return gcm.Seal(header, nonce, plaintext, header[:1+len(ctKem)]), nil
}

// Open decrypts an envelope produced by Seal with the matching secret key.
func Open(secretKey, envelope []byte) ([]byte, error) {
	if len(secretKey) != scheme.PrivateKeySize() {
		return nil, fmt.Errorf("%w: secret key is %d bytes, want %d", ErrInvalidKey, len(secretKey), scheme.PrivateKeySize())
	}

	ctSize := scheme.CiphertextSize()
	if len(envelope) < 1+ctSize+aesNonceSize+aesTagSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrInvalidEnvelope, len(envelope))
	}
	if envelope[0] != Version {
		return nil, fmt.Errorf("%w: unknown version %d", ErrInvalidEnvelope, envelope[0])
	}

	priv, err := scheme.UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	ctKem := envelope[1 : 1+ctSize]
	nonce := envelope[1+ctSize : 1+ctSize+aesNonceSize]
	ciphertext := envelope[1+ctSize+aesNonceSize:]

	sharedSecret, err := scheme.Decapsulate(priv, ctKem)
	if err != nil {
		return nil, fmt.Errorf("decapsulate: %w", err)
	}

	gcm, err := newGCM(sharedSecret, ctKem)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, envelope[:1+ctSize])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// PublicKeyFromSecret extracts the public key embedded in an ML-KEM-768
// secret key.
func PublicKeyFromSecret(secretKey []byte) ([]byte, error) {
	priv, err := scheme.UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return priv.Public().MarshalBinary()
}

func newGCM(sharedSecret, ctKem []byte) (cipher.AEAD, error) {
	salt := sha256.Sum256(ctKem)
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdf.New(sha512.New, sharedSecret, salt[:], []byte(hkdfContext)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ToBase64URL encodes bytes to URL-safe base64 without padding.
func ToBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// FromBase64URL decodes URL-safe base64 without padding.
func FromBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// Sealer holds one keypair and seals to its own public key.
type Sealer struct {
	publicKey []byte
	secretKey []byte
}

// NewSealer builds a Sealer from a raw ML-KEM-768 secret key.
func NewSealer(secretKey []byte) (*Sealer, error) {
	if len(secretKey) != scheme.PrivateKeySize() {
		return nil, fmt.Errorf("%w: secret key is %d bytes, want %d", ErrInvalidKey, len(secretKey), scheme.PrivateKeySize())
	}
	pub, err := PublicKeyFromSecret(secretKey)
	if err != nil {
		return nil, err
	}
	return &Sealer{publicKey: pub, secretKey: bytes.Clone(secretKey)}, nil
}

// PublicKey returns the public half, for handing to peers.
func (s *Sealer) PublicKey() []byte {
	return bytes.Clone(s.publicKey)
}

// Seal encrypts plaintext to the sealer's public key.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	return Seal(s.publicKey, plaintext)
}

// Open decrypts an envelope sealed to this sealer.
func (s *Sealer) Open(envelope []byte) ([]byte, error) {
	return Open(s.secretKey, envelope)
}
