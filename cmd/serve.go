package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/simonvc/custody/internal/config"
	"github.com/simonvc/custody/internal/host"
	"github.com/simonvc/custody/internal/payout"
	"github.com/simonvc/custody/internal/server"
	"github.com/simonvc/custody/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAddr       string
	servePayoutMode string
	servePayoutURL  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("payout") {
			cfg.Payout.Mode = servePayoutMode
		}
		if cmd.Flags().Changed("payout-url") {
			cfg.Payout.URL = servePayoutURL
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := store.Open(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		srv, err := buildServer(st, cfg, cfg.Server.Addr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Run(ctx)
	},
}

// buildServer wires payout, metrics and the host behind an API server.
func buildServer(st *store.Store, c config.Config, addr string) (*server.Server, error) {
	var transfer host.Transferer
	switch c.Payout.Mode {
	case payout.ModeWebhook:
		transfer = payout.NewWebhook(c.Payout.URL, c.Payout.Timeout, c.Unit, logger.Named("payout"))
	case payout.ModeLoopback:
		transfer = payout.NewLoopback(c.Unit, logger.Named("payout"))
	default:
		return nil, fmt.Errorf("unknown payout mode %q", c.Payout.Mode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := host.New(st, transfer,
		host.WithLogger(logger.Named("host")),
		host.WithMetrics(host.NewMetrics(reg)),
	)

	logger.Info("custody configured",
		zap.String("db", c.DB.Path),
		zap.String("payout", c.Payout.Mode),
		zap.String("unit", c.Unit.Symbol),
		zap.Int32("decimals", c.Unit.Decimals),
	)

	return server.New(h, server.Config{
		Addr:     addr,
		Unit:     c.Unit,
		RPS:      c.RateLimit.RPS,
		Burst:    c.RateLimit.Burst,
		Gatherer: reg,
		Logger:   logger.Named("http"),
	}), nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8888", "Listen address")
	serveCmd.Flags().StringVar(&servePayoutMode, "payout", payout.ModeLoopback, "Payout mode (loopback, webhook)")
	serveCmd.Flags().StringVar(&servePayoutURL, "payout-url", "", "Webhook URL for payouts")
	rootCmd.AddCommand(serveCmd)
}
