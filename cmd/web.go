package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/simonvc/custody/internal/web"
	"github.com/spf13/cobra"
)

var (
	webPort int
	webHost string
	webDir  string
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Launch the TUI in a browser terminal",
	Long: "Serve a browser terminal that runs 'custody tui' in a pty. Each browser\n" +
		"session gets its own sandbox ledger and account under --sessions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(webDir, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}

		listenAddr := net.JoinHostPort(webHost, fmt.Sprintf("%d", webPort))
		fmt.Printf("custody web UI: http://%s\n", listenAddr)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		webSrv := web.NewServer(listenAddr, webDir, logger.Named("web"))
		return webSrv.Run(ctx)
	},
}

func init() {
	webCmd.Flags().IntVar(&webPort, "port", 8833, "HTTP port for web terminal")
	webCmd.Flags().StringVar(&webHost, "host", "localhost", "HTTP host for web terminal")
	webCmd.Flags().StringVar(&webDir, "sessions", "web-sessions", "Directory for per-session ledgers")
	rootCmd.AddCommand(webCmd)
}
