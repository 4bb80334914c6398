package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/portfolio"
	"github.com/newthinker/replay/internal/storage/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// scenarioResult replays closes 10,11,9,12,13 with BUY,HOLD,SELL,BUY,HOLD.
func scenarioResult(t *testing.T) *backtest.Result {
	t.Helper()
	cfg := portfolio.Config{StartingCapital: 1000, CommissionRate: 0, CashFraction: 0.1}
	sim, err := portfolio.New(cfg)
	require.NoError(t, err)

	closes := []float64{10, 11, 9, 12, 13}
	bars := make([]core.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = core.OHLCV{Symbol: "TEST", Close: c, Time: day0.AddDate(0, 0, i)}
	}
	decisions := []core.Action{core.ActionBuy, core.ActionHold, core.ActionSell, core.ActionBuy, core.ActionHold}

	st, err := sim.Run(bars, decisions)
	require.NoError(t, err)
	m, err := backtest.CalculateMetrics(st, cfg.StartingCapital, closes)
	require.NoError(t, err)

	return &backtest.Result{
		RunID:     "run-1",
		Strategy:  "fixed",
		Symbol:    "TEST",
		Interval:  "1d",
		StartDate: bars[0].Time,
		EndDate:   bars[len(bars)-1].Time,
		Config:    cfg,
		Bars:      bars,
		Decisions: decisions,
		Trades:    st.Trades,
		Positions: st.Positions,
		Equity:    st.Equity,
		Metrics:   m,
		Duration:  1500 * time.Millisecond,
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, scenarioResult(t)))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, strings.Repeat("=", 50)+"\nBACKTEST RESULTS\n"))
	assert.Contains(t, out, "Period:   2024-01-02 to 2024-01-06 (5 bars)")
	assert.Contains(t, out, "Initial Capital: $1000.00")
	assert.Contains(t, out, "Final Equity: $998.33")
	assert.Contains(t, out, "total_return: -0.1667%")
	assert.Contains(t, out, "buy_hold_return: 30.0000%")
	assert.Contains(t, out, "profit_factor: 0.00")
	assert.Contains(t, out, "num_trades: 1")
	assert.Contains(t, out, "open_positions: 1")
}

func TestWriteText_InfiniteProfitFactor(t *testing.T) {
	res := scenarioResult(t)
	res.Metrics.ProfitFactor = math.Inf(1)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, res))
	assert.Contains(t, buf.String(), "profit_factor: inf")
}

func TestWriteTable(t *testing.T) {
	outcomes := backtest.Outcomes{
		{Request: backtest.Request{Symbol: "TEST", Strategy: "fixed"}, Result: scenarioResult(t)},
		{Request: backtest.Request{Symbol: "BAD", Strategy: "rsi"}, Err: errors.New("no data")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, outcomes))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SYMBOL"))
	assert.Contains(t, lines[2], "-0.17")
	assert.Contains(t, lines[2], "30.00")
	assert.Contains(t, lines[3], "error: no data")
}

func TestWriteTradesCSV(t *testing.T) {
	res := scenarioResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, res.Trades))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"entry_time", "exit_time", "entry_price", "exit_price", "quantity", "profit", "profit_pct"}, rows[0])
	assert.Equal(t, "2024-01-02T00:00:00Z", rows[1][0])
	assert.Equal(t, "2024-01-04T00:00:00Z", rows[1][1])
	assert.Equal(t, "10", rows[1][2])
	assert.Equal(t, "9", rows[1][3])
	assert.Equal(t, "10", rows[1][4])
	assert.Equal(t, "-10", rows[1][5])
	assert.Equal(t, "-10", rows[1][6])
}

func TestWriteTradesCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, nil))
	assert.Equal(t, "entry_time,exit_time,entry_price,exit_price,quantity,profit,profit_pct\n", buf.String())
}

func TestWriteEquityCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, scenarioResult(t)))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"time", "close", "action", "equity", "buy_hold", "drawdown_pct"}, rows[0])

	assert.Equal(t, []string{"2024-01-02T00:00:00Z", "10", "buy", "1000", "1000", "0"}, rows[1])
	assert.Equal(t, []string{"2024-01-03T00:00:00Z", "11", "hold", "1010", "1100", "0"}, rows[2])
	assert.Equal(t, "sell", rows[3][2])
	assert.Equal(t, "990", rows[3][3])
	assert.Equal(t, "1300", rows[5][4])
}

func TestExporter_Export(t *testing.T) {
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	res := scenarioResult(t)

	dir, err := NewExporter(store, nil).Export(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, "runs/TEST/run-1", dir)

	paths, err := store.List(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"runs/TEST/run-1/equity.csv",
		"runs/TEST/run-1/summary.json",
		"runs/TEST/run-1/trades.csv",
	}, paths)

	data, err := store.Read(ctx, "runs/TEST/run-1/summary.json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "fixed", got["strategy"])
	assert.Equal(t, 5.0, got["bars"])
	assert.Equal(t, 1.0, got["open_positions"])
	assert.Equal(t, 1500.0, got["duration_ms"])
	metrics := got["metrics"].(map[string]any)
	assert.Equal(t, 1.0, metrics["num_trades"])
	assert.InDelta(t, 30.0, metrics["buy_hold_return_pct"], 1e-9)
}

func TestExporter_InfiniteProfitFactorSummary(t *testing.T) {
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	res := scenarioResult(t)
	res.Metrics.ProfitFactor = math.Inf(1)

	dir, err := NewExporter(store, nil).Export(context.Background(), res)
	require.NoError(t, err)

	data, err := store.Read(context.Background(), dir+"/summary.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profit_factor": "inf"`)
}

type failingStore struct{ archive.Storage }

func (failingStore) Write(ctx context.Context, path string, data []byte) error {
	return errors.New("disk full")
}

func TestExporter_ExportAll_StorageError(t *testing.T) {
	res := scenarioResult(t)

	dirs, err := NewExporter(failingStore{}, nil).ExportAll(context.Background(), []*backtest.Result{res})
	require.Error(t, err)
	assert.Empty(t, dirs)
	assert.Contains(t, err.Error(), "TEST: writing summary.json: disk full")
}

func TestNewBatch(t *testing.T) {
	outcomes := backtest.Outcomes{
		{Request: backtest.Request{Symbol: "TEST", Strategy: "fixed"}, Result: scenarioResult(t)},
		{Request: backtest.Request{Symbol: "BAD", Strategy: "fixed"}, Err: core.WrapError(core.ErrInvalidBar, errors.New("bar 2"))},
		{Request: backtest.Request{Symbol: "ODD", Strategy: "fixed"}, Err: errors.New("boom")},
	}

	b := NewBatch(outcomes)
	require.Len(t, b.Runs, 1)
	assert.Equal(t, "run-1", b.Runs[0].RunID)

	require.Len(t, b.Failures, 2)
	assert.Equal(t, Failure{Symbol: "BAD", Strategy: "fixed", Code: "INVALID_BAR", Message: "[INVALID_BAR] invalid bar price: bar 2"}, b.Failures[0])
	assert.Equal(t, "INTERNAL_ERROR", b.Failures[1].Code)

	empty := NewBatch(nil)
	assert.NotNil(t, empty.Runs)
	assert.NotNil(t, empty.Failures)
}
