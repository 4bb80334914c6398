// Package portfolio replays per-bar decisions against a single-asset cash
// and position ledger.
package portfolio

import (
	"fmt"
	"time"

	"github.com/newthinker/replay/internal/core"
)

// Simulator applies decisions to a State. It holds only configuration, so
// one Simulator may drive any number of independent states concurrently.
type Simulator struct {
	cfg Config
}

// New validates cfg and creates a Simulator.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{cfg: cfg}, nil
}

// Config returns the simulator's configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// NewState returns an empty ledger funded with the starting capital.
func (s *Simulator) NewState() *State {
	return &State{Cash: s.cfg.StartingCapital}
}

// Step processes one bar: it applies the decision at price and then
// appends an equity snapshot marked at the same price. A sell therefore
// fills and is valued at the same close.
//
// On error st is left unchanged.
func (s *Simulator) Step(st *State, action core.Action, price float64, ts time.Time) error {
	if !core.ValidPrice(price) {
		return core.WrapError(core.ErrInvalidBar,
			fmt.Errorf("bar %d at %s: price %v", st.Bars(), ts.Format(time.RFC3339), price))
	}
	if st.Bars() > 0 && !ts.After(st.last) {
		return core.WrapError(core.ErrBarOrder,
			fmt.Errorf("bar %d at %s not after %s", st.Bars(), ts.Format(time.RFC3339), st.last.Format(time.RFC3339)))
	}

	switch action {
	case core.ActionHold:
	case core.ActionBuy:
		s.buy(st, price, ts)
	case core.ActionSell:
		s.sell(st, price, ts)
	default:
		return core.WrapError(core.ErrUnknownAction,
			fmt.Errorf("bar %d at %s: %q", st.Bars(), ts.Format(time.RFC3339), action))
	}

	st.Equity = append(st.Equity, st.MarkToMarket(price))
	st.last = ts
	return nil
}

// buy opens a position with min(cash, capital*fraction). Dropped when
// there is no cash left.
func (s *Simulator) buy(st *State, price float64, ts time.Time) {
	if st.Cash <= 0 {
		return
	}
	amount := min(st.Cash, s.cfg.tradeBudget())
	qty := amount / (price * (1 + s.cfg.CommissionRate))

	st.Positions = append(st.Positions, Position{
		EntryTime:  ts,
		EntryPrice: price,
		Quantity:   qty,
	})
	st.Cash -= amount
}

// sell closes the oldest open position in full. Dropped when flat.
func (s *Simulator) sell(st *State, price float64, ts time.Time) {
	if len(st.Positions) == 0 {
		return
	}
	pos := st.Positions[0]
	st.Positions = st.Positions[1:]

	st.Cash += pos.Quantity * price * (1 - s.cfg.CommissionRate)
	st.Trades = append(st.Trades, Trade{
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Quantity:   pos.Quantity,
		Profit:     (price - pos.EntryPrice) * pos.Quantity,
		ProfitPct:  (price - pos.EntryPrice) / pos.EntryPrice * 100,
	})
}

// Run validates the bar series and its parallel decision sequence, then
// steps through every bar in order on a fresh state.
func (s *Simulator) Run(bars []core.OHLCV, decisions []core.Action) (*State, error) {
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}
	if len(decisions) != len(bars) {
		return nil, core.WrapError(core.ErrDecisionMismatch,
			fmt.Errorf("%d decisions for %d bars", len(decisions), len(bars)))
	}
	if err := core.ValidateBars(bars); err != nil {
		return nil, err
	}

	st := s.NewState()
	for i, bar := range bars {
		if err := s.Step(st, decisions[i], bar.Close, bar.Time); err != nil {
			return nil, err
		}
	}
	return st, nil
}
