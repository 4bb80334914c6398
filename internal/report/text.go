// Package report renders backtest results for people and for archives.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/replay/internal/backtest"
)

const dateLayout = "2006-01-02"

var rule = strings.Repeat("=", 50)

// WriteText prints the console summary of one run.
func WriteText(w io.Writer, res *backtest.Result) error {
	m := res.Metrics
	lines := []string{
		rule,
		"BACKTEST RESULTS",
		rule,
		fmt.Sprintf("Strategy: %s", res.Strategy),
		fmt.Sprintf("Symbol:   %s", res.Symbol),
		fmt.Sprintf("Period:   %s to %s (%d bars)", res.StartDate.Format(dateLayout), res.EndDate.Format(dateLayout), len(res.Bars)),
		fmt.Sprintf("Initial Capital: $%.2f", res.Config.StartingCapital),
		fmt.Sprintf("Final Equity: $%.2f", m.FinalEquity),
		fmt.Sprintf("total_return: %.4f%%", m.TotalReturnPct),
		fmt.Sprintf("buy_hold_return: %.4f%%", m.BuyHoldReturnPct),
		fmt.Sprintf("max_drawdown: %.4f%%", m.MaxDrawdownPct),
		fmt.Sprintf("sharpe: %.4f", m.Sharpe),
		fmt.Sprintf("winrate: %.2f%%", m.WinRatePct),
		fmt.Sprintf("average_win: %.4f", m.AverageWin),
		fmt.Sprintf("average_loss: %.4f", m.AverageLoss),
		fmt.Sprintf("profit_factor: %s", formatFactor(m.ProfitFactor)),
		fmt.Sprintf("num_trades: %d", m.NumTrades),
	}
	if n := len(res.Positions); n > 0 {
		lines = append(lines, fmt.Sprintf("open_positions: %d", n))
	}
	lines = append(lines, rule)

	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// WriteTable prints one row per series of a batch, failures included.
func WriteTable(w io.Writer, outcomes backtest.Outcomes) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSTRATEGY\tRETURN%\tB&H%\tMAX DD%\tSHARPE\tTRADES\tWIN%\tPF\t")
	fmt.Fprintln(tw, "------\t--------\t-------\t----\t-------\t------\t------\t----\t--\t")

	for _, oc := range outcomes {
		if oc.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\terror: %v\t\t\t\t\t\t\t\n", oc.Request.Symbol, oc.Request.Strategy, oc.Err)
			continue
		}
		m := oc.Result.Metrics
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%.1f\t%s\t\n",
			oc.Result.Symbol, oc.Result.Strategy, m.TotalReturnPct, m.BuyHoldReturnPct,
			m.MaxDrawdownPct, m.Sharpe, m.NumTrades, m.WinRatePct, formatFactor(m.ProfitFactor))
	}
	return tw.Flush()
}

func formatFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}
