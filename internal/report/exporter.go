package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/storage/archive"
	"go.uber.org/zap"
)

// Summary is the JSON document stored next to each run's CSV files.
type Summary struct {
	RunID           string           `json:"run_id"`
	Symbol          string           `json:"symbol"`
	Strategy        string           `json:"strategy"`
	Interval        string           `json:"interval,omitempty"`
	StartDate       time.Time        `json:"start_date"`
	EndDate         time.Time        `json:"end_date"`
	Bars            int              `json:"bars"`
	StartingCapital float64          `json:"starting_capital"`
	CommissionRate  float64          `json:"commission_rate"`
	CashFraction    float64          `json:"cash_fraction_per_trade"`
	OpenPositions   int              `json:"open_positions"`
	Metrics         backtest.Metrics `json:"metrics"`
	DurationMs      int64            `json:"duration_ms"`
}

// NewSummary extracts the archived summary of a run.
func NewSummary(res *backtest.Result) Summary {
	return Summary{
		RunID:           res.RunID,
		Symbol:          res.Symbol,
		Strategy:        res.Strategy,
		Interval:        res.Interval,
		StartDate:       res.StartDate,
		EndDate:         res.EndDate,
		Bars:            len(res.Bars),
		StartingCapital: res.Config.StartingCapital,
		CommissionRate:  res.Config.CommissionRate,
		CashFraction:    res.Config.CashFraction,
		OpenPositions:   len(res.Positions),
		Metrics:         res.Metrics,
		DurationMs:      res.Duration.Milliseconds(),
	}
}

// Exporter writes run reports to archive storage under
// runs/<symbol>/<run id>/.
type Exporter struct {
	store  archive.Storage
	logger *zap.Logger
}

// NewExporter creates an exporter. A nil logger disables logging.
func NewExporter(store archive.Storage, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, logger: logger}
}

// Dir returns the storage directory of a run.
func Dir(res *backtest.Result) string {
	return path.Join("runs", res.Symbol, res.RunID)
}

// Export stores summary.json, trades.csv and equity.csv for the run and
// returns the directory they were written to.
func (e *Exporter) Export(ctx context.Context, res *backtest.Result) (string, error) {
	dir := Dir(res)

	summary, err := json.MarshalIndent(NewSummary(res), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding summary: %w", err)
	}

	var trades, equity bytes.Buffer
	if err := WriteTradesCSV(&trades, res.Trades); err != nil {
		return "", fmt.Errorf("encoding trades: %w", err)
	}
	if err := WriteEquityCSV(&equity, res); err != nil {
		return "", fmt.Errorf("encoding equity: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{"summary.json", summary},
		{"trades.csv", trades.Bytes()},
		{"equity.csv", equity.Bytes()},
	}
	for _, f := range files {
		if err := e.store.Write(ctx, path.Join(dir, f.name), f.data); err != nil {
			return "", fmt.Errorf("writing %s: %w", f.name, err)
		}
	}

	e.logger.Info("report exported",
		zap.String("run_id", res.RunID),
		zap.String("symbol", res.Symbol),
		zap.String("dir", dir),
	)
	return dir, nil
}

// ExportAll exports every successful run, stopping at the first storage error.
func (e *Exporter) ExportAll(ctx context.Context, results []*backtest.Result) ([]string, error) {
	dirs := make([]string, 0, len(results))
	for _, res := range results {
		dir, err := e.Export(ctx, res)
		if err != nil {
			return dirs, fmt.Errorf("%s: %w", res.Symbol, err)
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}
