package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/driftlog/driftlog/internal/client"
	"github.com/driftlog/driftlog/internal/config"
	"github.com/driftlog/driftlog/internal/room"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	return cfg, nil
}

// newLogger writes human-readable diagnostics to stderr so stdout stays
// clean for command output.
func newLogger(cfg *config.Config, opts *RootOptions) zerolog.Logger {
	level := cfg.Level()
	if opts.Verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func requireRoom(opts *RootOptions) (string, error) {
	if opts.Room == "" {
		return "", WrapExitError(ExitCommandError, ErrCodeGeneric,
			fmt.Errorf("no room: pass --room"))
	}
	return opts.Room, nil
}

// openSession loads config and connects to the room named by --room.
func openSession(cmd *cobra.Command, opts *RootOptions) (*client.Session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	roomID, err := requireRoom(opts)
	if err != nil {
		return nil, err
	}
	s, err := client.Open(cmd.Context(), cfg, roomID, newLogger(cfg, opts))
	if err != nil {
		if errors.Is(err, room.ErrNoRoom) {
			return nil, WrapExitError(ExitCommandError, ErrCodeNoRoom, err)
		}
		return nil, WrapExitError(ExitCommandError, ErrCodeStore, err)
	}
	return s, nil
}
