package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/collector"
	"github.com/newthinker/replay/internal/collector/csvfile"
	"github.com/newthinker/replay/internal/config"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/strategy/fixed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeries(t *testing.T, dir, symbol string, closes ...float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,close\n")
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		fmt.Fprintf(&b, "%s,%g\n", day.AddDate(0, 0, i).Format("2006-01-02"), c)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(b.String()), 0644))
}

func csvConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Data.Provider = "csv"
	cfg.Data.CSVDir = t.TempDir()
	return cfg
}

func TestApp_New(t *testing.T) {
	app, err := New(csvConfig(t), nil)
	require.NoError(t, err)

	stats := app.GetStats()
	assert.Equal(t, "csv", stats["provider"])
	assert.Equal(t, []string{"csv", "yahoo"}, stats["collectors"])
	assert.Equal(t, []string{"ma_crossover", "rsi"}, stats["strategies"])
	assert.Equal(t, false, stats["metrics"])
	assert.Equal(t, false, stats["export"])
}

func TestApp_New_InvalidConfig(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Backtest.CashFractionPerTrade = 0

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestApp_Requests(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Watchlist = []config.WatchlistItem{
		{Symbol: "AAPL", Strategies: []string{"rsi", "ma_crossover"}},
		{Symbol: "MSFT"},
	}
	app, err := New(cfg, nil)
	require.NoError(t, err)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("explicit symbols", func(t *testing.T) {
		reqs, err := app.Requests([]string{"TSLA"}, "", start, end)
		require.NoError(t, err)
		assert.Equal(t, []backtest.Request{
			{Symbol: "TSLA", Strategy: DefaultStrategy, Start: start, End: end, Interval: "1d"},
		}, reqs)
	})

	t.Run("watchlist strategies", func(t *testing.T) {
		reqs, err := app.Requests(nil, "", start, end)
		require.NoError(t, err)
		require.Len(t, reqs, 3)
		assert.Equal(t, "rsi", reqs[0].Strategy)
		assert.Equal(t, "ma_crossover", reqs[1].Strategy)
		assert.Equal(t, "MSFT", reqs[2].Symbol)
		assert.Equal(t, DefaultStrategy, reqs[2].Strategy)
	})

	t.Run("strategy override", func(t *testing.T) {
		reqs, err := app.Requests(nil, "ma_crossover", start, end)
		require.NoError(t, err)
		require.Len(t, reqs, 2)
		for _, r := range reqs {
			assert.Equal(t, "ma_crossover", r.Strategy)
		}
	})
}

func TestApp_Requests_EmptyWatchlist(t *testing.T) {
	app, err := New(csvConfig(t), nil)
	require.NoError(t, err)

	_, err = app.Requests(nil, "", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestApp_Run(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Backtest.StartingCapital = 1000
	cfg.Backtest.CommissionRate = 0
	cfg.Backtest.CashFractionPerTrade = 0.1
	cfg.Report.Enabled = true
	cfg.Report.Path = t.TempDir()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "replay.prom")

	writeSeries(t, cfg.Data.CSVDir, "TEST", 10, 11, 9, 12, 13)

	app, err := New(cfg, nil)
	require.NoError(t, err)
	app.RegisterStrategy(fixed.New([]core.Action{
		core.ActionBuy, core.ActionHold, core.ActionSell, core.ActionBuy, core.ActionHold,
	}))

	reqs, err := app.Requests([]string{"TEST", "MISSING"}, "fixed", time.Time{}, time.Time{})
	require.NoError(t, err)

	outcomes, err := app.Run(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	require.NoError(t, outcomes[0].Err)
	res := outcomes[0].Result
	assert.InDelta(t, -0.1667, res.Metrics.TotalReturnPct, 1e-4)
	assert.Equal(t, 1, res.Metrics.NumTrades)

	assert.ErrorIs(t, outcomes[1].Err, core.ErrSymbolNotFound)

	summary := filepath.Join(cfg.Report.Path, "runs", "TEST", res.RunID, "summary.json")
	assert.FileExists(t, summary)
	assert.NoDirExists(t, filepath.Join(cfg.Report.Path, "runs", "MISSING"))

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `replay_backtests_total{status="success"} 1`)
	assert.Contains(t, string(prom), `replay_backtests_total{status="failed"} 1`)
}

func TestApp_Run_StrategyParams(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Strategies = map[string]config.StrategyConfig{
		"rsi": {Enabled: true, Params: map[string]any{"period": 0}},
	}
	app, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = app.Run(context.Background(), []backtest.Request{{Symbol: "TEST", Strategy: "rsi"}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestApp_Run_UnknownConfiguredStrategy(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Strategies = map[string]config.StrategyConfig{"macd": {Enabled: true}}
	app, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = app.Run(context.Background(), []backtest.Request{{Symbol: "TEST", Strategy: "macd"}})
	assert.ErrorIs(t, err, core.ErrStrategyNotFound)
}

func TestApp_Run_NotifiesWebhook(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			received <- body
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := csvConfig(t)
	cfg.Notifiers = map[string]config.NotifierConfig{
		"webhook": {Enabled: true, URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}},
	}
	writeSeries(t, cfg.Data.CSVDir, "TEST", 10, 11, 9, 12, 13)

	app, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"webhook"}, app.GetStats()["notifiers"])
	app.RegisterStrategy(fixed.New([]core.Action{
		core.ActionBuy, core.ActionHold, core.ActionSell, core.ActionBuy, core.ActionHold,
	}))

	reqs, err := app.Requests([]string{"TEST", "MISSING"}, "fixed", time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = app.Run(context.Background(), reqs)
	require.NoError(t, err)

	select {
	case body := <-received:
		assert.Equal(t, "backtest_batch", body["type"])
		assert.EqualValues(t, 1, body["succeeded"])
		assert.EqualValues(t, 1, body["failed"])
	default:
		t.Fatal("webhook was not called")
	}
}

func TestApp_Run_NotifierFailureDoesNotFailRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := csvConfig(t)
	cfg.Notifiers = map[string]config.NotifierConfig{"webhook": {Enabled: true, URL: srv.URL}}
	writeSeries(t, cfg.Data.CSVDir, "TEST", 10, 11, 9, 12, 13)

	app, err := New(cfg, nil)
	require.NoError(t, err)

	outcomes, err := app.Run(context.Background(), []backtest.Request{{Symbol: "TEST", Strategy: "rsi"}})
	require.NoError(t, err)
	assert.NoError(t, outcomes.Err())
}

// flakyCSV fails its first Init, like a provider whose backend is briefly down
type flakyCSV struct {
	*csvfile.CSVFile
	inits int
}

func (f *flakyCSV) Init(cfg collector.Config) error {
	f.inits++
	if f.inits == 1 {
		return core.WrapError(core.ErrCollectorFailed, errors.New("backend unavailable"))
	}
	return f.CSVFile.Init(cfg)
}

func TestApp_Run_RetriesFailedPreparation(t *testing.T) {
	cfg := csvConfig(t)
	writeSeries(t, cfg.Data.CSVDir, "TEST", 10, 11, 9, 12, 13)

	app, err := New(cfg, nil)
	require.NoError(t, err)
	flaky := &flakyCSV{CSVFile: csvfile.New(cfg.Data.CSVDir)}
	app.RegisterCollector(flaky)

	reqs := []backtest.Request{{Symbol: "TEST", Strategy: "rsi"}}
	_, err = app.Run(context.Background(), reqs)
	require.ErrorIs(t, err, core.ErrCollectorFailed)

	outcomes, err := app.Run(context.Background(), reqs)
	require.NoError(t, err)
	assert.NoError(t, outcomes.Err())
	assert.Equal(t, 2, flaky.inits)

	// Prepared components are reused
	_, err = app.Run(context.Background(), reqs)
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.inits)
}
