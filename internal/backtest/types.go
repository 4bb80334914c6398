package backtest

import (
	"time"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/portfolio"
	"go.uber.org/multierr"
)

// Request identifies one series to replay
type Request struct {
	Symbol   string
	Strategy string
	Start    time.Time // zero for the provider's earliest bar
	End      time.Time // exclusive; zero for the latest bar
	Interval string
}

// Result holds the complete backtest output
type Result struct {
	RunID     string
	Strategy  string
	Symbol    string
	Interval  string
	StartDate time.Time
	EndDate   time.Time
	Config    portfolio.Config
	Bars      []core.OHLCV
	Decisions []core.Action
	Trades    []portfolio.Trade
	Positions []portfolio.Position // still open after the last bar
	Equity    []float64
	Metrics   Metrics
	Duration  time.Duration
}

// Closes returns the closing price of every replayed bar
func (r *Result) Closes() []float64 {
	return core.Closes(r.Bars)
}

// Outcome is the result of one series in a batch; exactly one of Result
// and Err is set.
type Outcome struct {
	Request Request
	Result  *Result
	Err     error
}

// Outcomes is the ordered output of RunBatch
type Outcomes []Outcome

// Succeeded returns the successful results in request order
func (o Outcomes) Succeeded() []*Result {
	var out []*Result
	for _, oc := range o {
		if oc.Err == nil {
			out = append(out, oc.Result)
		}
	}
	return out
}

// Err combines the errors of all failed series, or nil
func (o Outcomes) Err() error {
	var err error
	for _, oc := range o {
		err = multierr.Append(err, oc.Err)
	}
	return err
}
