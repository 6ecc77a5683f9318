package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/simonvc/custody/internal/client"
	"github.com/spf13/cobra"
)

func newClient() (*client.Client, error) {
	id, err := cfg.AccountID()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.Server.URL, id), nil
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the caller's balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		bal, err := c.Balance(cmd.Context())
		if client.IsNotFound(err) {
			fmt.Printf("Account %s has never deposited.\n", c.Account().Short())
			return err
		}
		if err != nil {
			return err
		}

		fmt.Printf("Account: %s\n", bal.Account)
		fmt.Printf("Balance: %s (%s minor units)\n", bal.Display, bal.Balance)
		return nil
	},
}

var (
	eventsLimit  int
	eventsFollow bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the caller's deposit and withdrawal events",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		events, err := c.Events(cmd.Context(), eventsLimit)
		if err != nil {
			return err
		}

		if len(events) == 0 && !eventsFollow {
			fmt.Println("No events found.")
			return nil
		}

		fmt.Printf("%-20s %-10s %-24s %s\n", "TIME", "KIND", "AMOUNT", "ID")
		fmt.Printf("%-20s %-10s %-24s %s\n", "----", "----", "------", "--")
		for i := len(events) - 1; i >= 0; i-- {
			printEvent(events[i])
		}

		if !eventsFollow {
			return nil
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return c.StreamEvents(ctx, printEvent)
	},
}

func printEvent(ev client.Event) {
	fmt.Printf("%-20s %-10s %-24s %s\n",
		ev.CreatedAt.Local().Format(time.DateTime), ev.Kind, ev.Display, ev.ID)
}

func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}

func init() {
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Maximum number of events")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Keep streaming new events")
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(eventsCmd)
}
