package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoKeyPair indicates the keystore holds no keypair for the user.
var ErrNoKeyPair = errors.New("no keypair in keystore")

// Keystore persists keypairs as 0600 JSON files under a directory, one file
// per user identity.
type Keystore struct {
	dir string
}

// NewKeystore returns a keystore rooted at dir. The directory is created on
// first save.
func NewKeystore(dir string) *Keystore {
	return &Keystore{dir: dir}
}

type storedKey struct {
	UserID     string `json:"user_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	CreatedAt  string `json:"created_at"`
}

func (ks *Keystore) path(userID string) string {
	return filepath.Join(ks.dir, "keypair_"+sanitizeID(userID)+".json")
}

// Save writes the user's keypair to disk with owner-only permissions.
func (ks *Keystore) Save(userID string, kp *KeyPair) error {
	if err := os.MkdirAll(ks.dir, 0o700); err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	data, err := json.MarshalIndent(storedKey{
		UserID:     userID,
		PublicKey:  kp.PublicBase64(),
		PrivateKey: kp.SeedBase64(),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	if err := os.WriteFile(ks.path(userID), data, 0o600); err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	return nil
}

// Load reads the user's keypair. Returns ErrNoKeyPair when absent.
func (ks *Keystore) Load(userID string) (*KeyPair, error) {
	data, err := os.ReadFile(ks.path(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoKeyPair, userID)
		}
		return nil, fmt.Errorf("keystore: %w", err)
	}
	var sk storedKey
	if err := json.Unmarshal(data, &sk); err != nil {
		return nil, fmt.Errorf("keystore: corrupt entry for %s: %w", userID, err)
	}
	kp, err := FromSeedBase64(sk.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: entry for %s: %w", userID, err)
	}
	return kp, nil
}

// GetOrCreate loads the user's keypair, generating and saving a fresh one
// if none exists yet.
func (ks *Keystore) GetOrCreate(userID string) (*KeyPair, error) {
	kp, err := ks.Load(userID)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, ErrNoKeyPair) {
		return nil, err
	}
	kp, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := ks.Save(userID, kp); err != nil {
		return nil, err
	}
	return kp, nil
}

// sanitizeID reduces a user ID to a filesystem- and fragment-name-safe
// token: the local part of an email, stripped to alphanumerics and hyphens.
func sanitizeID(userID string) string {
	if at := strings.IndexByte(userID, '@'); at >= 0 {
		userID = userID[:at]
	}
	var b strings.Builder
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

// SanitizeID exposes the ID sanitizer for writer-session naming.
func SanitizeID(userID string) string {
	return sanitizeID(userID)
}
