package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/newthinker/replay/internal/backtest"
	"github.com/newthinker/replay/internal/portfolio"
)

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTradesCSV writes the closed-trade log in closing order.
func WriteTradesCSV(w io.Writer, trades []portfolio.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"entry_time", "exit_time", "entry_price", "exit_price", "quantity", "profit", "profit_pct"}); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			ff(t.EntryPrice),
			ff(t.ExitPrice),
			ff(t.Quantity),
			ff(t.Profit),
			ff(t.ProfitPct),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes one row per bar: the close, the decision, the
// strategy equity, the buy-and-hold benchmark and the running drawdown.
func WriteEquityCSV(w io.Writer, res *backtest.Result) error {
	closes := res.Closes()
	buyHold := backtest.BuyHoldCurve(closes, res.Config.StartingCapital, res.Config.CommissionRate)
	drawdown := backtest.DrawdownSeries(res.Equity)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "close", "action", "equity", "buy_hold", "drawdown_pct"}); err != nil {
		return err
	}
	for i, bar := range res.Bars {
		if i >= len(res.Equity) {
			break
		}
		action := ""
		if i < len(res.Decisions) {
			action = string(res.Decisions[i])
		}
		rec := []string{
			bar.Time.Format(time.RFC3339),
			ff(bar.Close),
			action,
			ff(res.Equity[i]),
			ff(buyHold[i]),
			ff(drawdown[i]),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
