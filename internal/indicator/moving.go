// Package indicator provides pure technical-indicator functions over price
// series. Functions take a series and a period and return an aligned series;
// they hold no state and perform no I/O.
package indicator

// EMA computes the exponential moving average with multiplier 2/(period+1).
// The first output value seeds from the first input value. Output has the
// same length as the input.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	mult := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*mult + out[i-1]*(1-mult)
	}
	return out
}

// SMA computes the simple moving average. Indices before period-1 pass the
// raw input value through; this warm-up behavior is deliberate and callers
// depend on it.
func SMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i < period-1 {
			out[i] = v
			continue
		}
		if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(period)
	}
	return out
}
