package cli

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"keygen", "room", "send", "edit", "redact", "react", "timeline", "state", "watch"} {
		assert.Contains(t, names, want)
	}
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "keygen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestCommandsRequireRoom(t *testing.T) {
	cfg := writeConfig(t, "alice", t.TempDir())
	for _, args := range [][]string{
		{"--config", cfg, "send", "hi"},
		{"--config", cfg, "timeline"},
		{"--config", cfg, "state"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	}
}

func TestOpenMissingRoomFails(t *testing.T) {
	cfg := writeConfig(t, "alice", t.TempDir())
	_, err := execute(t, "--config", cfg, "--room", "nowhere", "timeline")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
