// Package config loads custody settings from defaults, an optional YAML
// file and CUSTODY_* environment variables. Command-line flags are applied
// on top by cmd.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/simonvc/custody/internal/ledger"
	"github.com/simonvc/custody/internal/payout"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Log       LogConfig
	Payout    PayoutConfig
	RateLimit RateLimitConfig
	Unit      ledger.Unit
	// Account is the default caller for client commands, in hex.
	Account string
}

type ServerConfig struct {
	Addr string
	URL  string
}

type DBConfig struct {
	Path string
}

type LogConfig struct {
	Level string
	Env   string
}

type PayoutConfig struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8888", URL: "http://localhost:8888"},
		DB:     DBConfig{Path: "custody.db"},
		Log:    LogConfig{Level: "info", Env: "production"},
		Payout: PayoutConfig{Mode: payout.ModeLoopback, Timeout: 10 * time.Second},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Unit: ledger.DefaultUnit,
	}
}

// fileConfig mirrors Config with pointers so an absent key keeps its default.
type fileConfig struct {
	Server struct {
		Addr *string `yaml:"addr"`
		URL  *string `yaml:"url"`
	} `yaml:"server"`
	DB struct {
		Path *string `yaml:"path"`
	} `yaml:"db"`
	Log struct {
		Level *string `yaml:"level"`
		Env   *string `yaml:"env"`
	} `yaml:"log"`
	Payout struct {
		Mode    *string        `yaml:"mode"`
		URL     *string        `yaml:"url"`
		Timeout *time.Duration `yaml:"timeout"`
	} `yaml:"payout"`
	RateLimit struct {
		RPS   *float64 `yaml:"rps"`
		Burst *int     `yaml:"burst"`
	} `yaml:"ratelimit"`
	Unit struct {
		Symbol   *string `yaml:"symbol"`
		Decimals *int32  `yaml:"decimals"`
	} `yaml:"unit"`
	Account *string `yaml:"account"`
}

// Load reads path (skipped when empty) over the defaults and then applies
// environment overrides. A named file that is missing is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		merge(&cfg, parsed)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(dst *Config, src fileConfig) {
	setString(&dst.Server.Addr, src.Server.Addr)
	setString(&dst.Server.URL, src.Server.URL)
	setString(&dst.DB.Path, src.DB.Path)
	setString(&dst.Log.Level, src.Log.Level)
	setString(&dst.Log.Env, src.Log.Env)
	setString(&dst.Payout.Mode, src.Payout.Mode)
	setString(&dst.Payout.URL, src.Payout.URL)
	if src.Payout.Timeout != nil {
		dst.Payout.Timeout = *src.Payout.Timeout
	}
	if src.RateLimit.RPS != nil {
		dst.RateLimit.RPS = *src.RateLimit.RPS
	}
	if src.RateLimit.Burst != nil {
		dst.RateLimit.Burst = *src.RateLimit.Burst
	}
	setString(&dst.Unit.Symbol, src.Unit.Symbol)
	if src.Unit.Decimals != nil {
		dst.Unit.Decimals = *src.Unit.Decimals
	}
	setString(&dst.Account, src.Account)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CUSTODY_SERVER_ADDR", &cfg.Server.Addr)
	str("CUSTODY_SERVER_URL", &cfg.Server.URL)
	str("CUSTODY_DB_PATH", &cfg.DB.Path)
	str("CUSTODY_LOG_LEVEL", &cfg.Log.Level)
	str("CUSTODY_LOG_ENV", &cfg.Log.Env)
	str("CUSTODY_PAYOUT_MODE", &cfg.Payout.Mode)
	str("CUSTODY_PAYOUT_URL", &cfg.Payout.URL)
	str("CUSTODY_UNIT_SYMBOL", &cfg.Unit.Symbol)
	str("CUSTODY_ACCOUNT", &cfg.Account)

	if v, ok := lookup("CUSTODY_PAYOUT_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CUSTODY_PAYOUT_TIMEOUT: %w", err)
		}
		cfg.Payout.Timeout = d
	}
	if v, ok := lookup("CUSTODY_RATELIMIT_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CUSTODY_RATELIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = f
	}
	if v, ok := lookup("CUSTODY_RATELIMIT_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CUSTODY_RATELIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	if v, ok := lookup("CUSTODY_UNIT_DECIMALS"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("CUSTODY_UNIT_DECIMALS: %w", err)
		}
		cfg.Unit.Decimals = int32(n)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Payout.Mode {
	case payout.ModeLoopback:
	case payout.ModeWebhook:
		if c.Payout.URL == "" {
			errs = append(errs, errors.New("payout.url is required in webhook mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("payout.mode %q: want %s or %s", c.Payout.Mode, payout.ModeLoopback, payout.ModeWebhook))
	}
	if c.Unit.Decimals < 0 || c.Unit.Decimals > 38 {
		errs = append(errs, fmt.Errorf("unit.decimals %d out of range 0..38", c.Unit.Decimals))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	if c.Account != "" {
		if _, err := ledger.ParseAccountID(c.Account); err != nil {
			errs = append(errs, fmt.Errorf("account: %w", err))
		}
	}
	return errors.Join(errs...)
}

// AccountID returns the configured default caller.
func (c Config) AccountID() (ledger.AccountID, error) {
	if c.Account == "" {
		return ledger.AccountID{}, errors.New("no account configured: set --account, CUSTODY_ACCOUNT or account in the config file")
	}
	return ledger.ParseAccountID(c.Account)
}
