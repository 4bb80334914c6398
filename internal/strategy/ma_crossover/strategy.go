package ma_crossover

import (
	"fmt"
	"strings"

	"github.com/newthinker/replay/internal/core"
	"github.com/newthinker/replay/internal/indicator"
	"github.com/newthinker/replay/internal/strategy"
)

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	kind       indicator.Kind
}

// New creates a new MA Crossover strategy
func New(fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		kind:       indicator.KindSMA,
	}
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("%s Crossover (%d/%d)", strings.ToUpper(string(m.kind)), m.fastPeriod, m.slowPeriod)
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	if fast, ok, err := strategy.IntParam(cfg.Params, "fast_period"); err != nil {
		return err
	} else if ok {
		m.fastPeriod = fast
	}
	if slow, ok, err := strategy.IntParam(cfg.Params, "slow_period"); err != nil {
		return err
	} else if ok {
		m.slowPeriod = slow
	}
	if raw, ok := cfg.Params["ma_type"].(string); ok {
		kind, err := indicator.ParseKind(raw)
		if err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
		m.kind = kind
	}

	if m.fastPeriod < 1 || m.slowPeriod <= m.fastPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("need 0 < fast_period < slow_period, got %d/%d", m.fastPeriod, m.slowPeriod))
	}
	return nil
}

// GenerateDecisions emits buy on a golden cross, sell on a death cross and
// hold everywhere else, including bars before the slow average is defined.
func (m *MACrossover) GenerateDecisions(bars []core.OHLCV) ([]core.Action, error) {
	decisions := make([]core.Action, len(bars))
	for i := range decisions {
		decisions[i] = core.ActionHold
	}

	// Extract closing prices
	prices := core.Closes(bars)

	fastMA := indicator.MovingAverage(m.kind, prices, m.fastPeriod)
	slowMA := indicator.MovingAverage(m.kind, prices, m.slowPeriod)

	// slowMA[i-1] is the first defined pair once i reaches slowPeriod
	for i := m.slowPeriod; i < len(bars); i++ {
		currFast, prevFast := fastMA[i], fastMA[i-1]
		currSlow, prevSlow := slowMA[i], slowMA[i-1]

		switch {
		// Golden Cross: fast crosses above slow
		case prevFast <= prevSlow && currFast > currSlow:
			decisions[i] = core.ActionBuy
		// Death Cross: fast crosses below slow
		case prevFast >= prevSlow && currFast < currSlow:
			decisions[i] = core.ActionSell
		}
	}

	return decisions, nil
}
