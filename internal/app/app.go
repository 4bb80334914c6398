// Package app assembles the data provider, strategies, simulator and
// report sinks configured for a replay session.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/collector"
	"github.com/newthinker/replay/internal/collector/csvfile"
	"github.com/newthinker/replay/internal/collector/yahoo"
	"github.com/newthinker/replay/internal/config"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/metrics"
	"github.com/newthinker/replay/internal/notifier"
	"github.com/newthinker/replay/internal/notifier/telegram"
	"github.com/newthinker/replay/internal/notifier/webhook"
	"github.com/newthinker/replay/internal/report"
	"github.com/newthinker/replay/internal/storage/archive"
	"github.com/newthinker/replay/internal/strategy"
	"github.com/newthinker/replay/internal/strategy/ma_crossover"
	"github.com/newthinker/replay/internal/strategy/rsi"
	"go.uber.org/zap"
)

// DefaultStrategy is used when neither the command line nor the watchlist
// names one.
const DefaultStrategy = "rsi"

// App is the replay session orchestrator
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	collectors *collector.Registry
	strategies *strategy.Engine
	metrics    *metrics.Registry
	exporter   *report.Exporter // nil unless report export is enabled
	notifiers  *notifier.Registry

	prepareMu sync.Mutex
	bt        *backtest.Backtester
}

// New validates cfg and creates an App with the built-in providers and
// strategies registered.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		collectors: collector.NewRegistry(),
		strategies: strategy.NewEngine(logger),
		notifiers:  notifier.NewRegistry(),
	}

	a.collectors.Register(yahoo.New())
	a.collectors.Register(csvfile.New(cfg.Data.CSVDir))
	a.strategies.Register(rsi.Default())
	a.strategies.Register(ma_crossover.New(50, 200))

	a.metrics = metrics.NewRegistry()
	if cfg.Report.Enabled {
		store, err := archive.Open(cfg.Report)
		if err != nil {
			return nil, fmt.Errorf("opening report storage: %w", err)
		}
		a.exporter = report.NewExporter(store, logger)
	}
	if err := a.initNotifiers(); err != nil {
		return nil, err
	}

	return a, nil
}

// initNotifiers creates and registers every enabled notifier
func (a *App) initNotifiers() error {
	for name, nc := range a.cfg.Notifiers {
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		params := map[string]any{}
		switch name {
		case "telegram":
			n = telegram.New(nc.BotToken, nc.ChatID)
			if nc.APIBase != "" {
				params["api_base"] = nc.APIBase
			}
		case "webhook":
			n = webhook.New(nc.URL, nc.Headers)
		default:
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown notifier %q", name))
		}

		if err := n.Init(notifier.Config{Type: name, Params: params}); err != nil {
			return fmt.Errorf("initializing notifier %s: %w", name, err)
		}
		if err := a.notifiers.Register(n); err != nil {
			return err
		}
		a.logger.Info("notifier registered", zap.String("name", name))
	}
	return nil
}

// RegisterCollector adds a data provider to the app
func (a *App) RegisterCollector(c collector.Collector) {
	a.collectors.Register(c)
}

// RegisterStrategy adds a strategy to the app, replacing one of the same
// name. Strategies must be registered before the first Run.
func (a *App) RegisterStrategy(s strategy.Strategy) {
	a.strategies.Register(s)
}

// initStrategies applies the configured parameters to every registered
// strategy that has a config section.
func (a *App) initStrategies() error {
	for name, sc := range a.cfg.Strategies {
		s, ok := a.strategies.Get(name)
		if !ok {
			return core.WrapError(core.ErrStrategyNotFound,
				fmt.Errorf("strategies.%s configured but not available (available: %v)", name, a.strategies.Names()))
		}
		if err := s.Init(strategy.Config{Enabled: sc.Enabled, Params: sc.Params}); err != nil {
			return fmt.Errorf("initializing strategy %s: %w", name, err)
		}
	}
	return nil
}

// provider returns the configured data provider, initialized.
func (a *App) provider() (collector.Collector, error) {
	c, err := a.collectors.Lookup(a.cfg.Data.Provider)
	if err != nil {
		return nil, err
	}

	extra := map[string]any{}
	if a.cfg.Data.BaseURL != "" {
		extra["base_url"] = a.cfg.Data.BaseURL
	}
	if a.cfg.Data.CSVDir != "" {
		extra["dir"] = a.cfg.Data.CSVDir
	}
	if a.cfg.Data.Range != "" {
		extra["range"] = a.cfg.Data.Range
	}
	extra["adjusted"] = a.cfg.Data.Adjusted
	err = c.Init(collector.Config{
		Enabled:  true,
		Interval: a.cfg.Backtest.Interval,
		Extra:    extra,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing provider %s: %w", c.Name(), err)
	}
	return c, nil
}

// Requests expands symbols into backtest requests. Without symbols the
// configured watchlist is used; a watchlist entry's own strategies apply
// when strategyName is empty.
func (a *App) Requests(symbols []string, strategyName string, start, end time.Time) ([]backtest.Request, error) {
	interval := a.cfg.Backtest.Interval
	var reqs []backtest.Request
	add := func(symbol, name string) {
		reqs = append(reqs, backtest.Request{
			Symbol:   symbol,
			Strategy: name,
			Start:    start,
			End:      end,
			Interval: interval,
		})
	}

	if len(symbols) > 0 {
		name := strategyName
		if name == "" {
			name = DefaultStrategy
		}
		for _, s := range symbols {
			add(s, name)
		}
		return reqs, nil
	}

	for _, item := range a.cfg.Watchlist {
		switch {
		case strategyName != "":
			add(item.Symbol, strategyName)
		case len(item.Strategies) > 0:
			for _, name := range item.Strategies {
				add(item.Symbol, name)
			}
		default:
			add(item.Symbol, DefaultStrategy)
		}
	}
	if len(reqs) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("no symbols given and the watchlist is empty"))
	}
	return reqs, nil
}

// prepare initializes the strategies and the data provider on first use,
// so that concurrent Runs share read-only components. A failed attempt
// is not cached; the next Run tries again.
func (a *App) prepare() (*backtest.Backtester, error) {
	a.prepareMu.Lock()
	defer a.prepareMu.Unlock()

	if a.bt != nil {
		return a.bt, nil
	}
	if err := a.initStrategies(); err != nil {
		return nil, err
	}
	provider, err := a.provider()
	if err != nil {
		return nil, err
	}
	bt, err := backtest.New(provider, a.strategies, a.cfg.Portfolio(),
		backtest.WithLogger(a.logger),
		backtest.WithConcurrency(a.cfg.Backtest.Concurrency),
		backtest.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.bt = bt
	return bt, nil
}

// Run replays every request in parallel, then exports reports and the
// metrics textfile when enabled. Per-series failures are reported in the
// outcomes; the returned error covers setup and sink failures only.
// Run is safe for concurrent use.
func (a *App) Run(ctx context.Context, reqs []backtest.Request) (backtest.Outcomes, error) {
	bt, err := a.prepare()
	if err != nil {
		return nil, err
	}

	a.logger.Info("replay starting",
		zap.Int("series", len(reqs)),
		zap.String("provider", a.cfg.Data.Provider),
		zap.Int("concurrency", a.cfg.Backtest.Concurrency),
	)
	outcomes := bt.RunBatch(ctx, reqs)

	if a.exporter != nil {
		if _, err := a.exporter.ExportAll(ctx, outcomes.Succeeded()); err != nil {
			return outcomes, fmt.Errorf("exporting reports: %w", err)
		}
	}
	if a.cfg.Metrics.Enabled {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			return outcomes, fmt.Errorf("writing metrics textfile: %w", err)
		}
	}

	a.logger.Info("replay finished",
		zap.Int("succeeded", len(outcomes.Succeeded())),
		zap.Int("failed", len(outcomes)-len(outcomes.Succeeded())),
	)
	a.notify(ctx, outcomes)
	return outcomes, nil
}

// notify delivers the batch summary. Notifier failures are logged and
// never fail the run.
func (a *App) notify(ctx context.Context, outcomes backtest.Outcomes) {
	if len(a.notifiers.Names()) == 0 {
		return
	}
	for name, err := range a.notifiers.NotifyAll(ctx, report.NewBatch(outcomes)) {
		a.logger.Warn("notification failed", zap.String("notifier", name), zap.Error(err))
	}
}

// Metrics returns the registry every run records into
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// Strategies returns the names of the registered strategies
func (a *App) Strategies() []string {
	return a.strategies.Names()
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	return map[string]any{
		"provider":   a.cfg.Data.Provider,
		"collectors": a.collectors.Names(),
		"strategies": a.strategies.Names(),
		"watchlist":  len(a.cfg.Watchlist),
		"metrics":    a.cfg.Metrics.Enabled,
		"export":     a.exporter != nil,
		"notifiers":  a.notifiers.Names(),
	}
}
