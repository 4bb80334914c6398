package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	barsProcessed    *prometheus.CounterVec
	tradesClosed     *prometheus.CounterVec
	runsActive       prometheus.Gauge
	lastReturn       *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		backtestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_backtests_total",
				Help: "Total number of backtest runs",
			},
			[]string{"status"},
		),

		backtestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replay_backtest_duration_seconds",
				Help:    "Backtest run duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
		),

		barsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_bars_processed_total",
				Help: "Total number of bars replayed through the simulator",
			},
			[]string{"symbol"},
		),

		tradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_trades_total",
				Help: "Total number of closed trades",
			},
			[]string{"symbol", "outcome"},
		),

		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "replay_runs_active",
				Help: "Number of backtest runs in progress",
			},
		),

		lastReturn: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "replay_total_return_pct",
				Help: "Total return of the last completed run per symbol and strategy",
			},
			[]string{"symbol", "strategy"},
		),
	}

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.tradesClosed)
	reg.MustRegister(r.runsActive)
	reg.MustRegister(r.lastReturn)

	return r
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordBars adds n replayed bars for symbol.
func (r *Registry) RecordBars(symbol string, n int) {
	r.barsProcessed.WithLabelValues(symbol).Add(float64(n))
}

// RecordTrades adds closed trades for symbol split by outcome.
func (r *Registry) RecordTrades(symbol string, wins, losses int) {
	r.tradesClosed.WithLabelValues(symbol, "win").Add(float64(wins))
	r.tradesClosed.WithLabelValues(symbol, "loss").Add(float64(losses))
}

// RecordReturn sets the total return of the latest run.
func (r *Registry) RecordReturn(symbol, strategy string, pct float64) {
	r.lastReturn.WithLabelValues(symbol, strategy).Set(pct)
}

// RunStarted increments in-progress runs.
func (r *Registry) RunStarted() {
	r.runsActive.Inc()
}

// RunFinished decrements in-progress runs.
func (r *Registry) RunFinished() {
	r.runsActive.Dec()
}

// WriteTextfile writes the current metrics in the text exposition format,
// for pickup by a node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
