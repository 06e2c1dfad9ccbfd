package indicator

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast)-EMA(slow) as the MACD line, the EMA(signal) of
// that line as the signal line, and histogram = MACD - signal. All three
// series align with the input.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	if len(values) == 0 {
		return MACDResult{}
	}
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	macd := make([]float64, len(values))
	for i := range values {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	sig := EMA(macd, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = macd[i] - sig[i]
	}
	return MACDResult{MACD: macd, Signal: sig, Histogram: hist}
}
