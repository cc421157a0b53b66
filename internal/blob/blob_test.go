package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the Store contract tests against any implementation.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "rooms/r/logs/2025-09-14/messages_1_2_w.jsonl", []byte("line\n")))

		data, err := s.Get(ctx, "rooms/r/logs/2025-09-14/messages_1_2_w.jsonl")
		require.NoError(t, err)
		assert.Equal(t, []byte("line\n"), data)
	})

	t.Run("put refuses overwrite", func(t *testing.T) {
		err := s.Put(ctx, "rooms/r/logs/2025-09-14/messages_1_2_w.jsonl", []byte("other\n"))
		assert.ErrorIs(t, err, ErrExists)

		// Original bytes survive the refused overwrite.
		data, err := s.Get(ctx, "rooms/r/logs/2025-09-14/messages_1_2_w.jsonl")
		require.NoError(t, err)
		assert.Equal(t, []byte("line\n"), data)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := s.Get(ctx, "rooms/r/logs/none.jsonl")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list by prefix sorted", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "rooms/r/logs/2025-09-15/messages_9_9_w.jsonl", []byte("x\n")))
		require.NoError(t, s.Put(ctx, "rooms/r/logs/2025-09-13/messages_0_0_w.jsonl", []byte("x\n")))
		require.NoError(t, s.Put(ctx, "rooms/other/logs/2025-09-14/messages_1_1_w.jsonl", []byte("x\n")))

		names, err := s.List(ctx, "rooms/r/logs/")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"rooms/r/logs/2025-09-13/messages_0_0_w.jsonl",
			"rooms/r/logs/2025-09-14/messages_1_2_w.jsonl",
			"rooms/r/logs/2025-09-15/messages_9_9_w.jsonl",
		}, names)
	})

	t.Run("list missing prefix is empty", func(t *testing.T) {
		names, err := s.List(ctx, "rooms/ghost/logs/")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestMemStore(t *testing.T) {
	storeContract(t, NewMemStore())
}

func TestFSStore(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	storeContract(t, s)
}

func TestOpenURI(t *testing.T) {
	s, err := OpenURI("mem://")
	require.NoError(t, err)
	_, ok := s.(*MemStore)
	assert.True(t, ok)

	dir := t.TempDir()
	s, err = OpenURI("file://" + dir)
	require.NoError(t, err)
	_, ok = s.(*FSStore)
	assert.True(t, ok)

	s, err = OpenURI(dir)
	require.NoError(t, err)
	_, ok = s.(*FSStore)
	assert.True(t, ok, "bare path opens the filesystem backend")

	_, err = OpenURI("s3://bucket/prefix")
	assert.Error(t, err, "cloud schemes are rejected explicitly")

	_, err = OpenURI("carrier-pigeon://loft")
	assert.Error(t, err)

	_, err = OpenURI("sqlite://")
	assert.Error(t, err, "sqlite URI without a path")
}
