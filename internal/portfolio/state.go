package portfolio

import "time"

// Position is one open long exposure created by a buy.
type Position struct {
	EntryTime  time.Time
	EntryPrice float64
	Quantity   float64
}

// Value marks the position at price.
func (p Position) Value(price float64) float64 {
	return p.Quantity * price
}

// Trade is the immutable record of a closed position.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Profit     float64 // absolute, commission excluded
	ProfitPct  float64 // percentage move from entry to exit
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Profit > 0
}

// State is the mutable bookkeeping of one simulation run. It is owned by a
// single caller and threaded through Simulator.Step; it is never shared
// between runs.
type State struct {
	Cash      float64
	Positions []Position // FIFO: index 0 is the oldest open position
	Trades    []Trade    // in closing order
	Equity    []float64  // one snapshot per processed bar

	last time.Time
}

// Bars returns the number of bars processed so far.
func (s *State) Bars() int {
	return len(s.Equity)
}

// MarkToMarket values cash plus every open position at price.
func (s *State) MarkToMarket(price float64) float64 {
	total := s.Cash
	for _, p := range s.Positions {
		total += p.Value(price)
	}
	return total
}

// Clone returns a deep copy that shares no slices with s.
func (s *State) Clone() *State {
	return &State{
		Cash:      s.Cash,
		Positions: append([]Position(nil), s.Positions...),
		Trades:    append([]Trade(nil), s.Trades...),
		Equity:    append([]float64(nil), s.Equity...),
		last:      s.last,
	}
}
