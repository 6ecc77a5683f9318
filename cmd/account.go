package cmd

import (
	"crypto/rand"
	"fmt"

	"github.com/simonvc/custody/internal/ledger"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Work with account IDs",
}

var accountIDCmd = &cobra.Command{
	Use:   "id <name>",
	Short: "Derive the account ID for a name",
	Long:  "Derive a stable account ID from a name (SHA-256). Use it with --account or CUSTODY_ACCOUNT.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(ledger.AccountIDFromName(args[0]))
		return nil
	},
}

var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a random account ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		var id ledger.AccountID
		if _, err := rand.Read(id[:]); err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var accountWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the configured caller account",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cfg.AccountID()
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	accountCmd.AddCommand(accountIDCmd)
	accountCmd.AddCommand(accountNewCmd)
	accountCmd.AddCommand(accountWhoamiCmd)
	rootCmd.AddCommand(accountCmd)
}
