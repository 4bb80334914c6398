package report

import (
	"errors"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/core"
)

// Failure describes one series of a batch that did not complete.
type Failure struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Batch summarizes a RunBatch call for notifications and the job API.
type Batch struct {
	Runs     []Summary `json:"runs"`
	Failures []Failure `json:"failures"`
}

// NewBatch splits outcomes into run summaries and failures, keeping
// request order within each.
func NewBatch(outcomes backtest.Outcomes) Batch {
	b := Batch{Runs: []Summary{}, Failures: []Failure{}}
	for _, oc := range outcomes {
		if oc.Err == nil {
			b.Runs = append(b.Runs, NewSummary(oc.Result))
			continue
		}
		f := Failure{
			Symbol:   oc.Request.Symbol,
			Strategy: oc.Request.Strategy,
			Code:     "INTERNAL_ERROR",
			Message:  oc.Err.Error(),
		}
		var coreErr *core.Error
		if errors.As(oc.Err, &coreErr) {
			f.Code = coreErr.Code
		}
		b.Failures = append(b.Failures, f)
	}
	return b
}
