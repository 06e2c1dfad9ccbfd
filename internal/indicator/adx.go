package indicator

import "math"

// ADXResult holds the ADX line with its directional components.
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes Wilder-smoothed directional movement and true range.
// +DM wins when highs[i]-highs[i-1] > lows[i-1]-lows[i]; this exact
// comparison is load-bearing downstream, do not "correct" it.
// The DI series starts at input index `period`; ADX values start one
// Wilder window later. All returned slices share the DI alignment, with
// leading ADX entries zero until the first smoothed DX is available.
func ADX(highs, lows, closes []float64, period int) ADXResult {
	n := len(closes)
	if period <= 0 || n != len(highs) || n != len(lows) || n < 2*period+1 {
		return ADXResult{}
	}

	// One entry per bar transition.
	tr := make([]float64, n-1)
	plusDM := make([]float64, n-1)
	minusDM := make([]float64, n-1)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	// Wilder running sums seeded over the first window.
	var sTR, sPlus, sMinus float64
	for i := 0; i < period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	p := float64(period)
	count := len(tr) - period + 1
	plusDI := make([]float64, count)
	minusDI := make([]float64, count)
	dx := make([]float64, count)
	for i := 0; i < count; i++ {
		if i > 0 {
			j := period + i - 1
			sTR = sTR - sTR/p + tr[j]
			sPlus = sPlus - sPlus/p + plusDM[j]
			sMinus = sMinus - sMinus/p + minusDM[j]
		}
		if sTR > 0 {
			plusDI[i] = 100 * sPlus / sTR
			minusDI[i] = 100 * sMinus / sTR
		}
		if sum := plusDI[i] + minusDI[i]; sum > 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
	}

	adx := make([]float64, count)
	if count >= period {
		var seed float64
		for i := 0; i < period; i++ {
			seed += dx[i]
		}
		adx[period-1] = seed / p
		for i := period; i < count; i++ {
			adx[i] = (adx[i-1]*(p-1) + dx[i]) / p
		}
	}

	return ADXResult{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}
}

// Last returns the final value of a series, or fallback if empty.
func Last(series []float64, fallback float64) float64 {
	if len(series) == 0 {
		return fallback
	}
	return series[len(series)-1]
}
