package backtest

import (
	"encoding/json"
	"math"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/portfolio"
)

// TradingDaysPerYear annualizes the Sharpe ratio. It assumes one equity
// sample per trading day and is not adjusted for intraday bars.
const TradingDaysPerYear = 252

// Metrics holds the summary statistics of one simulation run
type Metrics struct {
	FinalEquity      float64 `json:"final_equity"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	BuyHoldReturnPct float64 `json:"buy_hold_return_pct"`
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"` // most negative drawdown, <= 0
	Sharpe           float64 `json:"sharpe"`
	WinRatePct       float64 `json:"win_rate_pct"`
	AverageWin       float64 `json:"average_win"`
	AverageLoss      float64 `json:"average_loss"`
	ProfitFactor     float64 `json:"profit_factor"` // +Inf when there are wins and no losses
	NumTrades        int     `json:"num_trades"`
}

// MarshalJSON encodes an infinite profit factor as the string "inf",
// which encoding/json cannot represent as a number.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	out := struct {
		plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: plain(m), ProfitFactor: m.ProfitFactor}
	if math.IsInf(m.ProfitFactor, 1) {
		out.ProfitFactor = "inf"
	}
	return json.Marshal(out)
}

// CalculateMetrics derives the summary statistics from a finished run.
// closes is the price series the run was driven by. st is not modified.
func CalculateMetrics(st *portfolio.State, startingCapital float64, closes []float64) (Metrics, error) {
	if len(closes) == 0 {
		return Metrics{}, core.ErrNoData
	}
	first, last := closes[0], closes[len(closes)-1]

	m := Metrics{
		FinalEquity:      st.MarkToMarket(last),
		BuyHoldReturnPct: (last - first) / first * 100,
		Sharpe:           calculateSharpeRatio(Returns(st.Equity)),
		MaxDrawdownPct:   calculateMaxDrawdown(st.Equity),
		NumTrades:        len(st.Trades),
	}
	m.TotalReturnPct = (m.FinalEquity - startingCapital) / startingCapital * 100

	if len(st.Trades) == 0 {
		return m, nil
	}

	var winning, losing int
	var grossWin, grossLoss float64
	for _, t := range st.Trades {
		if t.IsWin() {
			winning++
			grossWin += t.Profit
		} else {
			losing++
			grossLoss += t.Profit
		}
	}

	m.WinRatePct = float64(winning) / float64(len(st.Trades)) * 100
	if winning > 0 {
		m.AverageWin = grossWin / float64(winning)
	}
	if losing > 0 {
		m.AverageLoss = grossLoss / float64(losing)
		m.ProfitFactor = grossWin / math.Abs(grossLoss)
	} else {
		m.ProfitFactor = math.Inf(1)
	}

	return m, nil
}

// Returns computes the period-over-period percentage change of an equity
// curve as a fraction. The result has len(equity)-1 elements.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		out[i-1] = equity[i]/equity[i-1] - 1
	}
	return out
}

// DrawdownSeries returns, per sample, the percentage decline from the
// running peak of equity.
func DrawdownSeries(equity []float64) []float64 {
	out := make([]float64, len(equity))
	var peak float64
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		out[i] = (v - peak) / peak * 100
	}
	return out
}

// BuyHoldCurve values a single all-in purchase at the first close, net of
// the entry commission, at every close.
func BuyHoldCurve(closes []float64, capital, commission float64) []float64 {
	if len(closes) == 0 {
		return nil
	}
	qty := capital / (closes[0] * (1 + commission))
	out := make([]float64, len(closes))
	for i, c := range closes {
		out[i] = qty * c
	}
	return out
}

// calculateMaxDrawdown finds the most negative peak-to-trough decline in percent
func calculateMaxDrawdown(equity []float64) float64 {
	var maxDD float64
	for _, dd := range DrawdownSeries(equity) {
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 and uses the sample standard deviation
func calculateSharpeRatio(returns []float64) float64 {
	// A single sample has no defined sample deviation
	if len(returns) < 2 {
		return 0
	}

	// Calculate mean return
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	// Calculate standard deviation
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	return mean / stdDev * math.Sqrt(TradingDaysPerYear)
}
