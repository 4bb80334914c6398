package portfolio

import (
	"fmt"
	"math"

	"github.com/newthinker/replay/internal/core"
)

// Config holds the immutable sizing and cost parameters of a simulation.
type Config struct {
	// StartingCapital is the initial cash balance.
	StartingCapital float64
	// CommissionRate is the fraction of notional charged on both buys and sells.
	CommissionRate float64
	// CashFraction is the fraction of StartingCapital committed to each buy.
	// It is a fraction of the starting capital, not of the remaining cash.
	CashFraction float64
}

// DefaultConfig returns 1000 starting capital, 0.1% commission per side
// and 3% of starting capital per buy.
func DefaultConfig() Config {
	return Config{
		StartingCapital: 1000,
		CommissionRate:  0.001,
		CashFraction:    0.03,
	}
}

// Validate rejects configurations that could drive cash negative or
// propagate NaN into the simulation.
func (c Config) Validate() error {
	if !finite(c.StartingCapital) || c.StartingCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("starting capital must be positive, got %v", c.StartingCapital))
	}
	if !finite(c.CommissionRate) || c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission rate must be in [0,1), got %v", c.CommissionRate))
	}
	if !finite(c.CashFraction) || c.CashFraction <= 0 || c.CashFraction > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cash fraction must be in (0,1], got %v", c.CashFraction))
	}
	return nil
}

// tradeBudget is the cash committed to a single buy before clamping to
// the available balance.
func (c Config) tradeBudget() float64 {
	return c.StartingCapital * c.CashFraction
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
