package identity

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystoreSaveLoad(t *testing.T) {
	ks := NewKeystore(t.TempDir())

	kp, err := Generate()
	require.NoError(t, err)
	require.NoError(t, ks.Save("alice@example.com", kp))

	loaded, err := ks.Load("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, kp.PublicBase64(), loaded.PublicBase64())
}

func TestKeystoreLoadMissing(t *testing.T) {
	ks := NewKeystore(t.TempDir())

	_, err := ks.Load("nobody@example.com")
	assert.ErrorIs(t, err, ErrNoKeyPair)
}

func TestKeystoreGetOrCreate(t *testing.T) {
	ks := NewKeystore(t.TempDir())

	first, err := ks.GetOrCreate("alice@example.com")
	require.NoError(t, err)

	second, err := ks.GetOrCreate("alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.PublicBase64(), second.PublicBase64(),
		"second call must load, not regenerate")
}

func TestKeystoreFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}

	dir := t.TempDir()
	ks := NewKeystore(dir)
	kp, err := Generate()
	require.NoError(t, err)
	require.NoError(t, ks.Save("alice@example.com", kp))

	info, err := os.Stat(filepath.Join(dir, "keypair_alice.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSanitizeID(t *testing.T) {
	assert.Equal(t, "alice", SanitizeID("alice@example.com"))
	assert.Equal(t, "bob-2", SanitizeID("bob-2"))
	assert.Equal(t, "weird", SanitizeID("we!i_r%d"))
	assert.Equal(t, "anon", SanitizeID("@@@"))
}
