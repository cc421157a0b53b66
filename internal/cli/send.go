package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:           "send <message>",
		Short:         "Post a message to the room",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.Send(cmd.Context(), args[0], parent)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			if err := s.Flush(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			data := map[string]string{"event_id": e.ID}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintln(w, e.ID)
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "event ID to thread this message under")
	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "edit <event-id> <new-message>",
		Short:         "Replace the body of one of your earlier messages",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.Edit(cmd.Context(), args[0], args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			if err := s.Flush(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			data := map[string]string{"event_id": e.ID, "edits": args[0]}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintln(w, e.ID)
			})
		},
	}
}

// NewRedactCommand creates the redact command.
func NewRedactCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:           "redact <event-id>",
		Short:         "Retract one of your earlier events",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.Redact(cmd.Context(), args[0], reason)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			if err := s.Flush(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			data := map[string]string{"event_id": e.ID, "redacts": args[0]}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintln(w, e.ID)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason to record with the redaction")
	return cmd
}

// NewReactCommand creates the react command.
func NewReactCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "react <event-id> <symbol>",
		Short:         "Attach a reaction to a message",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.React(cmd.Context(), args[0], args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			if err := s.Flush(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			data := map[string]string{"event_id": e.ID, "reacts_to": args[0]}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintln(w, e.ID)
			})
		},
	}
}
