package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/driftlog/driftlog/internal/identity"
)

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create or show this user's signing key",
		Long: `Ensure the configured user has an Ed25519 key pair in the keystore and
print the public half. Run this before creating or joining a room; the
public key is what other members use to verify your events.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			dir, err := cfg.Keystore()
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeKeys, err)
			}
			kp, err := identity.NewKeystore(dir).GetOrCreate(cfg.UserID)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeKeys, err)
			}

			data := map[string]string{
				"user_id":    cfg.UserID,
				"public_key": kp.PublicBase64(),
				"keystore":   dir,
			}
			return formatter.JSON(data, func(w io.Writer) {
				fmt.Fprintf(w, "user:       %s\n", cfg.UserID)
				fmt.Fprintf(w, "public key: %s\n", kp.PublicBase64())
				fmt.Fprintf(w, "keystore:   %s\n", dir)
			})
		},
	}
}
