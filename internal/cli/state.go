package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlog/driftlog/internal/chain"
	"github.com/driftlog/driftlog/internal/merge"
	"github.com/driftlog/driftlog/internal/resolve"
)

type stateOutput struct {
	State  resolve.Snapshot `json:"state"`
	Report *merge.Report    `json:"report,omitempty"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "state",
		Short:         "Print resolved room state: members, messages, reactions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			snap, report, err := s.State(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}

			out := stateOutput{State: snap, Report: report}
			if err := formatter.JSON(out, func(w io.Writer) { writeStateText(w, snap, report) }); err != nil {
				return err
			}
			return reportFailure(*report)
		},
	}
}

func writeStateText(w io.Writer, snap resolve.Snapshot, report *merge.Report) {
	fmt.Fprintf(w, "room: %s\n", snap.RoomID)

	ids := make([]string, 0, len(snap.Members))
	for id := range snap.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := snap.Members[id]
		name := ""
		if m.DisplayName != "" {
			name = fmt.Sprintf(" (%s)", m.DisplayName)
		}
		fmt.Fprintf(w, "member: %s%s %s\n", id, name, m.Membership)
	}

	for _, msg := range snap.Messages {
		ts := time.UnixMilli(msg.TimestampMS).UTC().Format(timeLayout)
		switch {
		case msg.Redacted:
			fmt.Fprintf(w, "%s <%s> [redacted]\n", ts, msg.SenderID)
		default:
			mark := ""
			if msg.Status != chain.StatusVerified {
				mark = fmt.Sprintf(" [%s]", msg.Status)
			}
			if msg.Edited {
				mark += " (edited)"
			}
			fmt.Fprintf(w, "%s <%s>%s %s\n", ts, msg.SenderID, mark, msg.Body)
			for _, r := range msg.Reactions {
				fmt.Fprintf(w, "    %s %s\n", r.Symbol, strings.Join(r.Senders, ", "))
			}
		}
	}

	for _, a := range snap.Anomalies {
		fmt.Fprintf(w, "! %s: %s -> %s\n", a.Kind, a.EventID, a.TargetID)
	}
	if report != nil {
		writeReportText(w, *report)
	}
}
