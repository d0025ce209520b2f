package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailrow/config"
	"github.com/dhcgn/mailrow/credential"
)

// NewKeyringCommand stores the IMAP password in the OS keyring so it does not
// have to live in a flag, file or environment variable.
func NewKeyringCommand() *cobra.Command {
	keyringCmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the IMAP password stored in the OS keyring",
	}

	keyringCmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Read a password from stdin and store it for --imap-user at --imap-host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := cmd.Flags().GetString("imap-host")
			if err != nil {
				return err
			}
			user, err := cmd.Flags().GetString("imap-user")
			if err != nil {
				return err
			}
			if host == "" || user == "" {
				return fmt.Errorf("--imap-host and --imap-user are required")
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return fmt.Errorf("password is empty")
			}

			dir, err := config.CredentialDir()
			if err != nil {
				return err
			}
			store, err := credential.Open(dir)
			if err != nil {
				return err
			}
			if err := store.SetPassword(host, user, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored password for %s\n", credential.Key(host, user))
			return nil
		},
	})

	return keyringCmd
}
