package indicator

import (
	"fmt"
	"math"
	"strings"
)

// Kind selects a moving average flavour
type Kind string

const (
	KindSMA Kind = "sma"
	KindEMA Kind = "ema"
)

// ParseKind accepts "sma" or "ema" in any case
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSMA, KindEMA:
		return k, nil
	}
	return "", fmt.Errorf("unknown moving average %q", s)
}

// MovingAverage dispatches to SMA or EMA
func MovingAverage(kind Kind, prices []float64, period int) []float64 {
	if kind == KindEMA {
		return EMA(prices, period)
	}
	return SMA(prices, period)
}

// SMA returns the simple moving average aligned with prices: element i
// averages prices[i-period+1..i] and the first period-1 entries are NaN.
func SMA(prices []float64, period int) []float64 {
	result := nanSeries(len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}

	var sum float64
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA returns the exponential moving average aligned with prices, seeded
// with the SMA of the first full window.
func EMA(prices []float64, period int) []float64 {
	result := nanSeries(len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}

	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	ema := sum / float64(period)
	result[period-1] = ema

	k := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		ema += (prices[i] - ema) * k
		result[i] = ema
	}
	return result
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
