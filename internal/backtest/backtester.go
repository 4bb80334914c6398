package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/logger"
	"github.com/newthinker/replay/internal/metrics"
	"github.com/newthinker/replay/internal/portfolio"
	"github.com/newthinker/replay/internal/strategy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OHLCVProvider defines the interface for fetching historical OHLCV data
type OHLCVProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error)
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	provider    OHLCVProvider
	strategies  *strategy.Engine
	sim         *portfolio.Simulator
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Registry
}

// Option configures a Backtester
type Option func(*Backtester)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics records run metrics in reg
func WithMetrics(reg *metrics.Registry) Option {
	return func(b *Backtester) {
		b.metrics = reg
	}
}

// WithConcurrency bounds the number of series RunBatch replays at once
func WithConcurrency(n int) Option {
	return func(b *Backtester) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// New creates a new Backtester. The simulator configuration is validated
// here so that a bad configuration never reaches a run.
func New(provider OHLCVProvider, strategies *strategy.Engine, cfg portfolio.Config, opts ...Option) (*Backtester, error) {
	sim, err := portfolio.New(cfg)
	if err != nil {
		return nil, err
	}
	b := &Backtester{
		provider:    provider,
		strategies:  strategies,
		sim:         sim,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run fetches the bars for req, asks the strategy for decisions and
// replays them through a fresh portfolio.
func (b *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Fetch historical data
	started := time.Now()
	bars, err := b.provider.FetchHistory(ctx, req.Symbol, req.Start, req.End, req.Interval)
	if err == nil && len(bars) == 0 {
		err = core.WrapError(core.ErrNoData, fmt.Errorf("symbol %s", req.Symbol))
	}
	if err != nil {
		b.logger.Warn("fetching history failed",
			zap.String("symbol", req.Symbol),
			zap.String("strategy", req.Strategy),
			zap.Error(err),
		)
		b.record("failed", time.Since(started), nil)
		return nil, err
	}

	return b.Replay(req, bars)
}

// Replay runs req's strategy over bars already in memory.
func (b *Backtester) Replay(req Request, bars []core.OHLCV) (*Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := logger.ForRun(b.logger, runID, req.Symbol, req.Strategy)

	if b.metrics != nil {
		b.metrics.RunStarted()
		defer b.metrics.RunFinished()
	}

	res, err := b.replay(runID, req, bars)
	elapsed := time.Since(started)
	if err != nil {
		log.Warn("backtest failed", zap.Int("bars", len(bars)), zap.Error(err))
		b.record("failed", elapsed, nil)
		return nil, err
	}
	res.Duration = elapsed

	log.Info("backtest complete",
		zap.Int("bars", len(bars)),
		zap.Int("trades", res.Metrics.NumTrades),
		zap.Float64("total_return_pct", res.Metrics.TotalReturnPct),
		zap.Duration("duration", elapsed),
	)
	b.record("success", elapsed, res)
	return res, nil
}

func (b *Backtester) replay(runID string, req Request, bars []core.OHLCV) (*Result, error) {
	// Reject bad data before the strategy sees it
	if err := core.ValidateBars(bars); err != nil {
		return nil, err
	}

	decisions, err := b.strategies.Decide(req.Strategy, bars)
	if err != nil {
		return nil, err
	}

	st, err := b.sim.Run(bars, decisions)
	if err != nil {
		return nil, err
	}

	cfg := b.sim.Config()
	m, err := CalculateMetrics(st, cfg.StartingCapital, core.Closes(bars))
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:     runID,
		Strategy:  req.Strategy,
		Symbol:    req.Symbol,
		Interval:  req.Interval,
		StartDate: bars[0].Time,
		EndDate:   bars[len(bars)-1].Time,
		Config:    cfg,
		Bars:      bars,
		Decisions: decisions,
		Trades:    st.Trades,
		Positions: st.Positions,
		Equity:    st.Equity,
		Metrics:   m,
	}, nil
}

// RunBatch replays every request on its own portfolio, up to the
// configured concurrency at a time. A failed series is reported in its
// Outcome and does not stop the others. Outcomes follow request order.
func (b *Backtester) RunBatch(ctx context.Context, reqs []Request) Outcomes {
	out := make(Outcomes, len(reqs))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := b.Run(ctx, req)
			if err != nil {
				err = fmt.Errorf("%s/%s: %w", req.Symbol, req.Strategy, err)
			}
			out[i] = Outcome{Request: req, Result: res, Err: err}
			return nil
		})
	}
	g.Wait()

	return out
}

func (b *Backtester) record(status string, elapsed time.Duration, res *Result) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordBacktest(status, elapsed.Seconds())
	if res == nil {
		return
	}
	wins := 0
	for _, t := range res.Trades {
		if t.IsWin() {
			wins++
		}
	}
	b.metrics.RecordBars(res.Symbol, len(res.Bars))
	b.metrics.RecordTrades(res.Symbol, wins, len(res.Trades)-wins)
	b.metrics.RecordReturn(res.Symbol, res.Strategy, res.Metrics.TotalReturnPct)
}
