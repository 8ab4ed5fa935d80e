package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/calbot/internal/credentials"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key for CREDENTIAL_ENCRYPTION_KEY",
		Long: `Prints a random AES-256 key, base64 encoded. Set it as
CREDENTIAL_ENCRYPTION_KEY to encrypt stored OAuth tokens at rest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := credentials.GenerateEncryptionKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), credentials.EncryptionKeyToBase64(key))
			return nil
		},
	}
}
