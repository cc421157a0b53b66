// Package identity provides Ed25519 signing identities: keypair generation,
// event signing and fail-closed verification, and the sender-to-public-key
// lookup the verification layer consumes.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidPublicKey indicates a malformed or wrong-size public key.
	ErrInvalidPublicKey = errors.New("invalid Ed25519 public key")

	// ErrInvalidSeed indicates a malformed or wrong-size private key seed.
	ErrInvalidSeed = errors.New("invalid Ed25519 seed")
)

// KeyPair is an Ed25519 signing identity. The private key never leaves this
// package except through SeedBase64 for keystore persistence.
type KeyPair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// Generate creates a fresh random keypair.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &KeyPair{private: priv, public: pub}, nil
}

// FromSeedBase64 reconstructs a keypair from a base64-encoded 32-byte seed.
func FromSeedBase64(seedB64 string) (*KeyPair, error) {
	seed, err := base64.StdEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", ErrInvalidSeed)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSeed, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{private: priv, public: priv.Public().(ed25519.PublicKey)}, nil
}

// Public returns the public key.
func (kp *KeyPair) Public() ed25519.PublicKey {
	return kp.public
}

// PublicBase64 returns the public key as a standard base64 string, the form
// it travels in room metadata.
func (kp *KeyPair) PublicBase64() string {
	return base64.StdEncoding.EncodeToString(kp.public)
}

// SeedBase64 returns the private seed as base64 for keystore persistence.
func (kp *KeyPair) SeedBase64() string {
	return base64.StdEncoding.EncodeToString(kp.private.Seed())
}

// ParsePublicKey decodes a base64 public key, validating its size.
func ParsePublicKey(pubB64 string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", ErrInvalidPublicKey)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}
