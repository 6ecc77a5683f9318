package cmd

import (
	"github.com/simonvc/custody/internal/config"
	"github.com/simonvc/custody/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig   string
	flagServer   string
	flagDB       string
	flagAccount  string
	flagLogLevel string
)

// Resolved in PersistentPreRunE: defaults, config file, environment, flags.
var (
	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "custody",
	Short: "Custodial balance ledger",
	Long: "A custodial ledger that holds deposited value per account and pays it back out on withdrawal.\n" +
		"Each operation runs as one all-or-nothing transaction backed by SQLite.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("server") {
			loaded.Server.URL = flagServer
		}
		if flags.Changed("db") {
			loaded.DB.Path = flagDB
		}
		if flags.Changed("account") {
			loaded.Account = flagAccount
		}
		if flags.Changed("log-level") {
			loaded.Log.Level = flagLogLevel
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		l, _, err := logging.New(logging.Config{
			Environment: logging.Environment(cfg.Log.Env),
			Level:       cfg.Log.Level,
		})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file")
	pf.StringVar(&flagServer, "server", "http://localhost:8888", "Server address")
	pf.StringVar(&flagDB, "db", "custody.db", "SQLite database path")
	pf.StringVar(&flagAccount, "account", "", "Caller account ID (hex); see 'custody account id'")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}
