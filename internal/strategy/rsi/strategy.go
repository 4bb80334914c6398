package rsi

import (
	"fmt"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/indicator"
	"github.com/newthinker/replay/internal/strategy"
)

// RSI buys when the index drops below the oversold level and sells when
// it rises above the overbought level.
type RSI struct {
	period     int
	overbought float64
	oversold   float64
}

// New creates a new RSI strategy
func New(period int, overbought, oversold float64) *RSI {
	return &RSI{
		period:     period,
		overbought: overbought,
		oversold:   oversold,
	}
}

// Default returns RSI(14) with 70/30 thresholds
func Default() *RSI {
	return New(14, 70, 30)
}

func (r *RSI) Name() string {
	return "rsi"
}

func (r *RSI) Description() string {
	return fmt.Sprintf("RSI(%d) %.0f/%.0f", r.period, r.oversold, r.overbought)
}

func (r *RSI) Init(cfg strategy.Config) error {
	if v, ok, err := strategy.IntParam(cfg.Params, "period"); err != nil {
		return err
	} else if ok {
		r.period = v
	}
	if v, ok, err := strategy.FloatParam(cfg.Params, "overbought"); err != nil {
		return err
	} else if ok {
		r.overbought = v
	}
	if v, ok, err := strategy.FloatParam(cfg.Params, "oversold"); err != nil {
		return err
	} else if ok {
		r.oversold = v
	}

	if r.period < 1 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("rsi period must be positive, got %d", r.period))
	}
	if r.oversold >= r.overbought {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rsi oversold (%v) must be below overbought (%v)", r.oversold, r.overbought))
	}
	return nil
}

// GenerateDecisions labels each bar. Bars without a defined RSI (warm-up or
// flat windows) are held.
func (r *RSI) GenerateDecisions(bars []core.OHLCV) ([]core.Action, error) {
	values := indicator.RSI(core.Closes(bars), r.period)

	decisions := make([]core.Action, len(bars))
	for i, v := range values {
		switch {
		case v > r.overbought:
			decisions[i] = core.ActionSell
		case v < r.oversold:
			decisions[i] = core.ActionBuy
		default:
			decisions[i] = core.ActionHold
		}
	}
	return decisions, nil
}
