package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlog/driftlog/internal/resolve"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "watch",
		Short:         "Follow the room, printing messages as they arrive",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			// Only messages past this index are new on the next callback.
			printed := 0
			w := cmd.OutOrStdout()
			err = s.Watch(cmd.Context(), func(snap resolve.Snapshot) {
				for _, msg := range snap.Messages[min(printed, len(snap.Messages)):] {
					writeWatchLine(w, msg)
				}
				printed = len(snap.Messages)
			})
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	}
}

func writeWatchLine(w io.Writer, msg resolve.MessageView) {
	ts := time.UnixMilli(msg.TimestampMS).UTC().Format(timeLayout)
	if msg.Redacted {
		fmt.Fprintf(w, "%s <%s> [redacted]\n", ts, msg.SenderID)
		return
	}
	fmt.Fprintf(w, "%s <%s> %s\n", ts, msg.SenderID, msg.Body)
}
