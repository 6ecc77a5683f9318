package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	depositDisplay  bool
	withdrawDisplay bool
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Deposit value into the caller's account",
	Long:  "Deposit value into the caller's account. The amount is in minor units unless --display is set.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		ev, err := c.Deposit(ctx, args[0], depositDisplay)
		if err != nil {
			return err
		}

		fmt.Printf("Deposited %s to %s (event %s)\n", ev.Display, ev.Account.Short(), ev.ID)
		return nil
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw [amount]",
	Short: "Withdraw value from the caller's account",
	Long:  "Withdraw value from the caller's account. Without an amount the whole balance is withdrawn.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		var amount *string
		if len(args) == 1 {
			amount = &args[0]
		}

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		ev, err := c.Withdraw(ctx, amount, withdrawDisplay)
		if err != nil {
			return err
		}

		fmt.Printf("Withdrew %s to %s (event %s)\n", ev.Display, ev.Account.Short(), ev.ID)
		return nil
	},
}

func init() {
	depositCmd.Flags().BoolVar(&depositDisplay, "display", false, "Amount is in display units (e.g. 10.50)")
	withdrawCmd.Flags().BoolVar(&withdrawDisplay, "display", false, "Amount is in display units (e.g. 10.50)")
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(withdrawCmd)
}
