package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/replay/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad_FromFile(t *testing.T) {
	cfgPath := writeConfig(t, `
backtest:
  starting_capital: 5000
  commission_rate: 0.002
  concurrency: 2

data:
  provider: csv
  csv_dir: "/tmp/bars"

strategies:
  rsi:
    enabled: true
    params:
      period: 10
      overbought: 75

watchlist:
  - symbol: RGEF
    strategies: [rsi]
  - symbol: CUBI

report:
  enabled: true
  type: localfs
  path: "/tmp/replay/reports"

server:
  port: 9090

notifiers:
  webhook:
    enabled: true
    url: "http://localhost:9000/hook"
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backtest.StartingCapital != 5000 {
		t.Errorf("expected starting capital 5000, got %v", cfg.Backtest.StartingCapital)
	}
	if cfg.Backtest.CommissionRate != 0.002 {
		t.Errorf("expected commission 0.002, got %v", cfg.Backtest.CommissionRate)
	}
	// not in file: default survives
	if cfg.Backtest.CashFractionPerTrade != 0.03 {
		t.Errorf("expected default cash fraction 0.03, got %v", cfg.Backtest.CashFractionPerTrade)
	}
	if cfg.Backtest.Interval != "1d" {
		t.Errorf("expected default interval 1d, got %s", cfg.Backtest.Interval)
	}

	if cfg.Data.Provider != "csv" || cfg.Data.CSVDir != "/tmp/bars" {
		t.Errorf("unexpected data config %+v", cfg.Data)
	}

	rsi, ok := cfg.Strategies["rsi"]
	if !ok || !rsi.Enabled {
		t.Fatalf("expected enabled rsi strategy, got %+v", cfg.Strategies)
	}
	if rsi.Params["period"] != 10 {
		t.Errorf("expected period 10, got %v", rsi.Params["period"])
	}

	if cfg.Server.Port != 9090 || cfg.Server.MaxJobs != 100 {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if hook := cfg.Notifiers["webhook"]; !hook.Enabled || hook.URL != "http://localhost:9000/hook" {
		t.Errorf("unexpected notifiers %+v", cfg.Notifiers)
	}

	if len(cfg.Watchlist) != 2 || cfg.Watchlist[0].Symbol != "RGEF" {
		t.Errorf("unexpected watchlist %+v", cfg.Watchlist)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	cfgPath := writeConfig(t, "backtest:\n  starting_capital: 5000\n")
	t.Setenv("REPLAY_BACKTEST_STARTING_CAPITAL", "2500")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Backtest.StartingCapital != 2500 {
		t.Errorf("expected env override 2500, got %v", cfg.Backtest.StartingCapital)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	cfgPath := writeConfig(t, `
report:
  type: s3
  s3:
    bucket: results
    secret_key: "${TEST_REPLAY_SECRET}"
`)
	t.Setenv("TEST_REPLAY_SECRET", "s3cr3t")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Report.S3.SecretKey != "s3cr3t" {
		t.Errorf("expected expanded secret, got %q", cfg.Report.S3.SecretKey)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Backtest.StartingCapital != 1000 {
		t.Errorf("expected default capital, got %v", cfg.Backtest.StartingCapital)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Backtest.StartingCapital != 1000 {
		t.Errorf("expected default capital 1000, got %v", cfg.Backtest.StartingCapital)
	}
	if cfg.Backtest.CommissionRate != 0.001 {
		t.Errorf("expected default commission 0.001, got %v", cfg.Backtest.CommissionRate)
	}
	if cfg.Backtest.CashFractionPerTrade != 0.03 {
		t.Errorf("expected default cash fraction 0.03, got %v", cfg.Backtest.CashFractionPerTrade)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr *core.Error
	}{
		{"valid config", func(c *Config) {}, nil},
		{"zero capital", func(c *Config) { c.Backtest.StartingCapital = 0 }, core.ErrConfigInvalid},
		{"negative commission", func(c *Config) { c.Backtest.CommissionRate = -0.1 }, core.ErrConfigInvalid},
		{"fraction above one", func(c *Config) { c.Backtest.CashFractionPerTrade = 1.1 }, core.ErrConfigInvalid},
		{"zero concurrency", func(c *Config) { c.Backtest.Concurrency = 0 }, core.ErrConfigInvalid},
		{"unknown provider", func(c *Config) { c.Data.Provider = "bloomberg" }, core.ErrConfigInvalid},
		{"csv without dir", func(c *Config) { c.Data.Provider = "csv" }, core.ErrConfigMissing},
		{"s3 without bucket", func(c *Config) {
			c.Report.Enabled = true
			c.Report.Type = "s3"
		}, core.ErrConfigMissing},
		{"unknown report type", func(c *Config) {
			c.Report.Enabled = true
			c.Report.Type = "ftp"
		}, core.ErrConfigInvalid},
		{"metrics without textfile", func(c *Config) { c.Metrics.Enabled = true }, core.ErrConfigMissing},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, core.ErrConfigInvalid},
		{"zero max jobs", func(c *Config) { c.Server.MaxJobs = 0 }, core.ErrConfigInvalid},
		{"webhook without url", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"webhook": {Enabled: true}}
		}, core.ErrConfigMissing},
		{"telegram without chat", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"telegram": {Enabled: true, BotToken: "t"}}
		}, core.ErrConfigMissing},
		{"unknown notifier", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"pager": {Enabled: true}}
		}, core.ErrConfigInvalid},
		{"disabled notifier ignored", func(c *Config) {
			c.Notifiers = map[string]NotifierConfig{"webhook": {Enabled: false}}
		}, nil},
		{"empty watchlist symbol", func(c *Config) { c.Watchlist = []WatchlistItem{{Name: "x"}} }, core.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Portfolio(t *testing.T) {
	cfg := Defaults()
	cfg.Backtest.CashFractionPerTrade = 0.1

	p := cfg.Portfolio()
	if p.StartingCapital != 1000 || p.CommissionRate != 0.001 || p.CashFraction != 0.1 {
		t.Errorf("unexpected portfolio config %+v", p)
	}
}
