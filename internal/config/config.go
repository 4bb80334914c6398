package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/portfolio"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Data       DataConfig                `mapstructure:"data"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Watchlist  []WatchlistItem           `mapstructure:"watchlist"`
	Notifiers  map[string]NotifierConfig `mapstructure:"notifiers"`
	Report     ReportConfig              `mapstructure:"report"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Log        LogConfig                 `mapstructure:"log"`
}

// ServerConfig configures the job API started by "replay serve".
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// BacktestConfig holds simulator and batch settings.
type BacktestConfig struct {
	StartingCapital      float64 `mapstructure:"starting_capital"`
	CommissionRate       float64 `mapstructure:"commission_rate"`
	CashFractionPerTrade float64 `mapstructure:"cash_fraction_per_trade"`
	Concurrency          int     `mapstructure:"concurrency"`
	Interval             string  `mapstructure:"interval"` // "1m", "5m", "1h", "1d"
}

// DataConfig selects the historical data provider.
type DataConfig struct {
	Provider string `mapstructure:"provider"` // "yahoo" or "csv"
	CSVDir   string `mapstructure:"csv_dir"`
	BaseURL  string `mapstructure:"base_url"`
	Range    string `mapstructure:"range"`    // yahoo lookback when no start is given
	Adjusted bool   `mapstructure:"adjusted"` // yahoo adjusted closes
}

type StrategyConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

type WatchlistItem struct {
	Symbol     string   `mapstructure:"symbol"`
	Name       string   `mapstructure:"name"`
	Strategies []string `mapstructure:"strategies"`
}

// NotifierConfig configures one batch notifier, keyed by name
// ("telegram" or "webhook").
type NotifierConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
	// Webhook notifier fields
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// ReportConfig controls where run reports are exported.
type ReportConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load reads configuration from file. Keys missing from the file keep
// their Defaults value; REPLAY_<SECTION>_<KEY> environment variables
// override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix("REPLAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)
	v.SetDefault("backtest.starting_capital", d.Backtest.StartingCapital)
	v.SetDefault("backtest.commission_rate", d.Backtest.CommissionRate)
	v.SetDefault("backtest.cash_fraction_per_trade", d.Backtest.CashFractionPerTrade)
	v.SetDefault("backtest.concurrency", d.Backtest.Concurrency)
	v.SetDefault("backtest.interval", d.Backtest.Interval)
	v.SetDefault("data.provider", d.Data.Provider)
	v.SetDefault("data.csv_dir", d.Data.CSVDir)
	v.SetDefault("data.base_url", d.Data.BaseURL)
	v.SetDefault("data.range", d.Data.Range)
	v.SetDefault("data.adjusted", d.Data.Adjusted)
	v.SetDefault("report.enabled", d.Report.Enabled)
	v.SetDefault("report.type", d.Report.Type)
	v.SetDefault("report.path", d.Report.Path)
	v.SetDefault("report.s3.bucket", "")
	v.SetDefault("report.s3.endpoint", "")
	v.SetDefault("report.s3.region", "")
	v.SetDefault("report.s3.access_key", "")
	v.SetDefault("report.s3.secret_key", "")
	v.SetDefault("report.s3.prefix", "")
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.level", d.Log.Level)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	sim := portfolio.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Backtest: BacktestConfig{
			StartingCapital:      sim.StartingCapital,
			CommissionRate:       sim.CommissionRate,
			CashFractionPerTrade: sim.CashFraction,
			Concurrency:          4,
			Interval:             "1d",
		},
		Data: DataConfig{
			Provider: "yahoo",
			Range:    "1mo",
		},
		Report: ReportConfig{
			Type: "localfs",
			Path: "reports",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Portfolio returns the simulator configuration.
func (c *Config) Portfolio() portfolio.Config {
	return portfolio.Config{
		StartingCapital: c.Backtest.StartingCapital,
		CommissionRate:  c.Backtest.CommissionRate,
		CashFraction:    c.Backtest.CashFractionPerTrade,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Simulator validation
	if err := c.Portfolio().Validate(); err != nil {
		return err
	}
	if c.Backtest.Concurrency < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("concurrency must be at least 1, got %d", c.Backtest.Concurrency))
	}

	// Data validation
	switch c.Data.Provider {
	case "yahoo":
	case "csv":
		if c.Data.CSVDir == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.csv_dir required when provider is csv"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown data provider %q", c.Data.Provider))
	}

	// Report validation - only checked when export is on
	if c.Report.Enabled {
		switch c.Report.Type {
		case "localfs":
			if c.Report.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("report.path required when type is localfs"))
			}
		case "s3":
			if c.Report.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("report.s3.bucket required when type is s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown report storage type %q", c.Report.Type))
		}
	}

	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifiers.telegram requires bot_token and chat_id"))
			}
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("notifiers.webhook requires url"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown notifier %q", name))
		}
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxJobs < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("server.max_jobs must be at least 1, got %d", c.Server.MaxJobs))
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("metrics.textfile required when metrics are enabled"))
	}

	for i, item := range c.Watchlist {
		if item.Symbol == "" {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("watchlist entry %d has no symbol", i))
		}
	}

	return nil
}
