package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/driftlog/driftlog/internal/client"
)

// NewRoomCommand creates the room command group.
func NewRoomCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Create and join rooms",
	}
	cmd.AddCommand(newRoomInitCommand(rootOpts))
	cmd.AddCommand(newRoomJoinCommand(rootOpts))
	cmd.AddCommand(newRoomLeaveCommand(rootOpts))
	return cmd
}

func newRoomInitCommand(rootOpts *RootOptions) *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:           "init",
		Short:         "Create a room and register yourself as its first member",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			roomID, err := requireRoom(rootOpts)
			if err != nil {
				return err
			}
			if name == "" {
				name = roomID
			}
			if err := client.InitRoom(cmd.Context(), cfg, roomID, name, description, newLogger(cfg, rootOpts)); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			data := map[string]string{"room": roomID, "name": name}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintf(w, "room %s created\n", roomID)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name for the room")
	cmd.Flags().StringVar(&description, "description", "", "room description")
	return cmd
}

func newRoomJoinCommand(rootOpts *RootOptions) *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:           "join",
		Short:         "Join a room: register your key and announce membership",
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

			e, err := s.Join(cmd.Context(), displayName)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			if err := s.Flush(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			data := map[string]string{"room": rootOpts.Room, "event_id": e.ID}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintf(w, "joined %s\n", rootOpts.Room)
			})
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name shown to other members")
	return cmd
}

func newRoomLeaveCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:           "leave",
		Short:         "Announce departure from a room",
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

			e, err := s.Leave(cmd.Context(), reason)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			if err := s.Flush(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeStore, err)
			}
			data := map[string]string{"room": rootOpts.Room, "event_id": e.ID}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintf(w, "left %s\n", rootOpts.Room)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason to record with the departure")
	return cmd
}
