package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatterSuccessJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Success(map[string]string{"event_id": "abc"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestFormatterErrorText(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}
	require.NoError(t, f.Error(ErrCodeNoRoom, "room not found", nil))
	assert.Contains(t, buf.String(), "Error [no_room]: room not found")
}

func TestFormatterVerboseLogGoesToErrWriter(t *testing.T) {
	var out, errW bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errW, Verbose: true}
	f.VerboseLog("fetched %d fragments", 3)
	assert.Empty(t, out.String())
	assert.Contains(t, errW.String(), "fetched 3 fragments")

	f.Verbose = false
	errW.Reset()
	f.VerboseLog("quiet")
	assert.Empty(t, errW.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", nil)))

	wrapped := WrapExitError(ExitCommandError, ErrCodeStore, errors.New("io timeout"))
	assert.Contains(t, wrapped.Error(), "io timeout")
	assert.Equal(t, "io timeout", errors.Unwrap(wrapped).Error())
}
