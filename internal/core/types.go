package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string
	Interval string // "1m", "5m", "1d"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Time     time.Time
}

// Action represents a per-bar trading decision
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Valid reports whether a is one of the known decisions
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// ParseAction converts a case-insensitive decision label ("BUY", "sell", ...)
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", WrapError(ErrUnknownAction, fmt.Errorf("%q", s))
	}
	return a, nil
}

// Closes extracts the closing prices of bars
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// ValidPrice reports whether p is usable as a fill or valuation price
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// ValidateBars checks that every close is finite and positive and that
// timestamps are strictly increasing.
func ValidateBars(bars []OHLCV) error {
	for i, b := range bars {
		if !ValidPrice(b.Close) {
			return WrapError(ErrInvalidBar,
				fmt.Errorf("bar %d at %s: close %v", i, b.Time.Format(time.RFC3339), b.Close))
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return WrapError(ErrBarOrder,
				fmt.Errorf("bar %d at %s not after %s", i, b.Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339)))
		}
	}
	return nil
}

// DateLayout is the calendar date format accepted for range bounds
const DateLayout = "2006-01-02"

// ParseDateRange turns optional from/to calendar dates into the half-open
// range [start, end). end is midnight after the to date, so every
// intraday bar of that day is inside the range. Empty bounds stay zero.
func ParseDateRange(from, to string) (start, end time.Time, err error) {
	if from != "" {
		if start, err = time.Parse(DateLayout, strings.TrimSpace(from)); err != nil {
			return time.Time{}, time.Time{}, WrapError(ErrConfigInvalid,
				fmt.Errorf("from date %q (expected YYYY-MM-DD): %w", from, err))
		}
	}
	if to != "" {
		last, err := time.Parse(DateLayout, strings.TrimSpace(to))
		if err != nil {
			return time.Time{}, time.Time{}, WrapError(ErrConfigInvalid,
				fmt.Errorf("to date %q (expected YYYY-MM-DD): %w", to, err))
		}
		end = last.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return time.Time{}, time.Time{}, WrapError(ErrConfigInvalid,
			fmt.Errorf("end date %s is before start date %s", to, from))
	}
	return start, end, nil
}
