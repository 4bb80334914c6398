package indicator

import "math"

// RSI calculates the Relative Strength Index using simple rolling means of
// gains and losses. The result is aligned with prices; entries before the
// first full window are NaN. The first price has no change and counts as
// a zero move inside the first window.
func RSI(prices []float64, period int) []float64 {
	result := make([]float64, len(prices))
	for i := range result {
		result[i] = math.NaN()
	}
	if period <= 0 || len(prices) < period {
		return result
	}

	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)
	for i := period - 1; i < len(prices); i++ {
		result[i] = rsiValue(avgGain[i], avgLoss[i])
	}

	return result
}

func rsiValue(gain, loss float64) float64 {
	switch {
	case gain == 0 && loss == 0:
		return math.NaN()
	case loss == 0:
		return 100
	}
	return 100 - 100/(1+gain/loss)
}
