package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailrow/config"
	"github.com/dhcgn/mailrow/listing"
)

// NewMailboxesCommand lists the mailboxes of the account so the right
// --mailbox value can be picked. Names are case sensitive.
func NewMailboxesCommand(logger func(config.Config) (*slog.Logger, func() error, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "mailboxes",
		Short: "List the mailboxes available on the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}
			log, cleanup, err := logger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			client, err := Connect(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer client.Close()

			lines, err := client.ListMailboxes(cmd.Context())
			if err != nil {
				return fmt.Errorf("list mailboxes: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Your mailboxes:")
			for _, line := range lines {
				mb, err := listing.Parse(line)
				if err != nil {
					log.Warn("skipping mailbox listing line", "err", err)
					continue
				}
				fmt.Fprintln(out, mb.Name)
			}
			return nil
		},
	}
}
