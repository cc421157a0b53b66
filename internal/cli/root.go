package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string // empty selects the default location
	Room       string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the driftlog CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "driftlog",
		Short: "driftlog - serverless chat over shared blob storage",
		Long: `Driftlog reads and writes a chat room that lives entirely in a shared
blob store: signed, append-only event fragments, merged and verified on
every read. No server holds the truth; the bytes do.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: user config dir)")
	cmd.PersistentFlags().StringVarP(&opts.Room, "room", "r", "", "room ID")

	cmd.AddCommand(NewKeygenCommand(opts))
	cmd.AddCommand(NewRoomCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewRedactCommand(opts))
	cmd.AddCommand(NewReactCommand(opts))
	cmd.AddCommand(NewTimelineCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
