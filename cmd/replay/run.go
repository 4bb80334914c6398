package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newthinker/replay/internal/app"
	"github.com/newthinker/replay/internal/config"
	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/logger"
	"github.com/newthinker/replay/internal/report"
	"github.com/newthinker/replay/internal/strategy/fixed"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runStrategy  string
	runFrom      string
	runTo        string
	runDecisions string
	runExport    bool
)

var runCmd = &cobra.Command{
	Use:   "run [symbol...]",
	Short: "Replay a strategy over historical bars",
	Long: `Replay a strategy over the historical bars of one or more symbols and
print the performance metrics of each run. Without symbols the configured
watchlist is used. Series run in parallel on independent portfolios; a
failing series does not stop the others.`,
	RunE: runReplay,
}

func init() {
	runCmd.Flags().StringVarP(&runStrategy, "strategy", "s", "", "strategy name (default: watchlist entry or rsi)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "start date YYYY-MM-DD")
	runCmd.Flags().StringVar(&runTo, "to", "", "end date YYYY-MM-DD, inclusive")
	runCmd.Flags().StringVar(&runDecisions, "decisions", "", "file with one buy/sell/hold decision per bar")
	runCmd.Flags().BoolVar(&runExport, "export", false, "export reports to the configured storage")

	rootCmd.AddCommand(runCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	fromDate, toDate, err := core.ParseDateRange(runFrom, runTo)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}
	if runExport {
		cfg.Report.Enabled = true
	}

	log, err := logger.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if runDecisions != "" {
		f, err := os.Open(runDecisions)
		if err != nil {
			return fmt.Errorf("opening decisions: %w", err)
		}
		s, err := fixed.Load(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", runDecisions, err)
		}
		a.RegisterStrategy(s)
		if runStrategy == "" {
			runStrategy = s.Name()
		}
	}

	reqs, err := a.Requests(args, runStrategy, fromDate, toDate)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcomes, err := a.Run(ctx, reqs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range outcomes.Succeeded() {
		if err := report.WriteText(out, res); err != nil {
			return err
		}
	}
	if len(outcomes) > 1 {
		fmt.Fprintln(out)
		if err := report.WriteTable(out, outcomes); err != nil {
			return err
		}
	}

	if err := outcomes.Err(); err != nil {
		log.Error("some series failed", zap.Error(err))
		return err
	}
	return nil
}

