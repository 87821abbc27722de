// Package indicators provides technical indicator calculations over
// closing-price sequences.
package indicators

// Value is a single indicator sample. Valid is false while the indicator
// warmup window has not yet filled, so callers never compare against NaN.
type Value struct {
	Float64 float64
	Valid   bool
}

// Series is an indicator series aligned index-for-index with the price
// series it was computed from.
type Series []Value

// At returns the value at index i, treating out-of-range indexes as not
// yet available.
func (s Series) At(i int) Value {
	if i < 0 || i >= len(s) {
		return Value{}
	}
	return s[i]
}

func invalid(n int) Series {
	return make(Series, n)
}

// SMA calculates a sliding-sum simple moving average. Entries before
// window-1 observations are marked invalid.
func SMA(values []float64, window int) Series {
	result := make(Series, len(values))
	if window <= 0 {
		return invalid(len(values))
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			result[i] = Value{Float64: sum / float64(window), Valid: true}
		}
	}
	return result
}

// RSI calculates the Relative Strength Index with Wilder smoothing. The
// first average gain/loss is a simple average of the first period deltas;
// subsequent values use avg = (avg*(period-1) + new) / period. Entries
// before index period are invalid. When the average loss is exactly zero
// the RSI saturates to 100.
func RSI(values []float64, period int) Series {
	result := make(Series, len(values))
	if period <= 1 {
		return invalid(len(values))
	}

	var avgGain, avgLoss float64
	for i := 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}

		switch {
		case i < period:
			avgGain += gain
			avgLoss += loss
			continue
		case i == period:
			avgGain = (avgGain + gain) / float64(period)
			avgLoss = (avgLoss + loss) / float64(period)
		default:
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}

		if avgLoss == 0 {
			result[i] = Value{Float64: 100, Valid: true}
			continue
		}
		rs := avgGain / avgLoss
		result[i] = Value{Float64: 100 - 100/(1+rs), Valid: true}
	}
	return result
}

// RollingVolatility calculates the standard deviation of day-over-day
// simple returns over a trailing window of window returns. Entries are
// invalid until the window fills.
func RollingVolatility(values []float64, window int) Series {
	result := make(Series, len(values))
	if window <= 0 {
		return invalid(len(values))
	}

	returns := make([]float64, 0, window)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
		} else {
			returns = append(returns, (values[i]-values[i-1])/values[i-1])
		}
		if len(returns) > window {
			returns = returns[1:]
		}
		if len(returns) < window {
			continue
		}
		result[i] = Value{Float64: stdDev(returns), Valid: true}
	}
	return result
}
