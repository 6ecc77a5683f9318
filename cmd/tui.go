package cmd

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/simonvc/custody/internal/client"
	"github.com/simonvc/custody/internal/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	Long: "Launch the interactive terminal UI. Without --server it runs an embedded\n" +
		"server against --db on a loopback port.",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cfg.AccountID()
		if err != nil {
			return err
		}

		serverURL := cfg.Server.URL
		if !cmd.Flags().Changed("server") {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			url, stop, err := startEmbedded(ctx)
			if err != nil {
				return err
			}
			defer stop()
			serverURL = url
		}

		app := tui.NewApp(client.New(serverURL, id))
		p := tea.NewProgram(app, tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
