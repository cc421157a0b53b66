package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlog/driftlog/internal/chain"
	"github.com/driftlog/driftlog/internal/event"
	"github.com/driftlog/driftlog/internal/merge"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

type timelineEntry struct {
	ID          string       `json:"id"`
	SenderID    string       `json:"sender_id"`
	TimestampMS int64        `json:"timestamp_ms"`
	Type        event.Type   `json:"type"`
	Status      chain.Status `json:"status"`
	Body        string       `json:"body,omitempty"`
}

type timelineOutput struct {
	Room    string          `json:"room"`
	Entries []timelineEntry `json:"entries"`
	Report  merge.Report    `json:"report"`
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "timeline",
		Short:         "Print the merged, verified event timeline",
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

			res, err := s.Timeline(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}

			out := timelineOutput{Room: rootOpts.Room, Report: res.Report}
			for _, entry := range res.Timeline {
				te := timelineEntry{
					ID:          entry.Event.ID,
					SenderID:    entry.Event.SenderID,
					TimestampMS: entry.Event.TimestampMS,
					Type:        entry.Event.Type,
					Status:      entry.Status,
				}
				if msg, ok := entry.Event.Content.(event.MessageContent); ok {
					te.Body = msg.Body
				}
				out.Entries = append(out.Entries, te)
			}

			if err := formatter.JSON(out, func(w io.Writer) { writeTimelineText(w, out) }); err != nil {
				return err
			}
			return reportFailure(res.Report)
		},
	}
}

func writeTimelineText(w io.Writer, out timelineOutput) {
	for _, e := range out.Entries {
		ts := time.UnixMilli(e.TimestampMS).UTC().Format(timeLayout)
		mark := ""
		if e.Status != chain.StatusVerified {
			mark = fmt.Sprintf(" [%s]", e.Status)
		}
		if e.Type == event.TypeMessage {
			fmt.Fprintf(w, "%s <%s>%s %s\n", ts, e.SenderID, mark, e.Body)
		} else {
			fmt.Fprintf(w, "%s -- %s %s%s\n", ts, e.SenderID, e.Type, mark)
		}
	}
	writeReportText(w, out.Report)
}

func writeReportText(w io.Writer, r merge.Report) {
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "! skipped fragment %s: %s\n", s.Name, s.Reason)
	}
	for _, d := range r.Dropped {
		fmt.Fprintf(w, "! dropped event %s from %s: %s\n", d.EventID, d.Fragment, d.Reason)
	}
	for _, b := range r.ChainBreaks {
		fmt.Fprintf(w, "! chain break: %s at %s\n", b.SenderID, b.EventID)
	}
	if n := len(r.BadSignatures); n > 0 {
		fmt.Fprintf(w, "! %d event(s) with bad signatures\n", n)
	}
}

// reportFailure maps verification trouble onto the failure exit code once
// the report itself has been printed.
func reportFailure(r merge.Report) error {
	if len(r.BadSignatures) == 0 && len(r.ChainBreaks) == 0 {
		return nil
	}
	return &ExitError{Code: ExitFailure, Message: "timeline contains unverified events"}
}
