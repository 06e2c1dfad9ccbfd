package indicator

// RSI computes the Relative Strength Index with Wilder smoothing of average
// gain and loss. Output holds one value per input index from `period`
// onwards, so its length is len(values)-period (empty if too short).
// A zero average loss maps to RSI 100.
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) <= period {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(values)-period)
	out = append(out, rsiValue(avgGain, avgLoss))

	p := float64(period)
	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// StochRSIResult holds the smoothed %K and %D lines.
type StochRSIResult struct {
	K []float64
	D []float64
}

// StochRSI normalizes RSI into [0,100] via a rolling min/max window of
// stochPeriod values, then double-smooths with SMA(k) and SMA(d). A zero
// min/max range yields 0, never NaN.
func StochRSI(values []float64, rsiPeriod, stochPeriod, k, d int) StochRSIResult {
	rsi := RSI(values, rsiPeriod)
	if len(rsi) == 0 || stochPeriod <= 0 {
		return StochRSIResult{}
	}

	stoch := make([]float64, len(rsi))
	for i := range rsi {
		lo := i - stochPeriod + 1
		if lo < 0 {
			lo = 0
		}
		minV, maxV := rsi[lo], rsi[lo]
		for j := lo + 1; j <= i; j++ {
			if rsi[j] < minV {
				minV = rsi[j]
			}
			if rsi[j] > maxV {
				maxV = rsi[j]
			}
		}
		if maxV == minV {
			stoch[i] = 0
			continue
		}
		stoch[i] = (rsi[i] - minV) / (maxV - minV) * 100
	}

	kLine := SMA(stoch, k)
	return StochRSIResult{K: kLine, D: SMA(kLine, d)}
}
