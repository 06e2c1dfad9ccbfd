package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEMASeedsFromFirstValue(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14}
	out := EMA(values, 3)
	if len(out) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(out))
	}
	if out[0] != 10 {
		t.Fatalf("expected seed 10, got %v", out[0])
	}
	// multiplier 2/(3+1) = 0.5
	if !almostEqual(out[1], 10.5) {
		t.Fatalf("expected 10.5, got %v", out[1])
	}
}

func TestSMAWarmupPassthrough(t *testing.T) {
	values := []float64{5, 7, 9, 11}
	out := SMA(values, 3)
	if out[0] != 5 || out[1] != 7 {
		t.Fatalf("warm-up indices must pass raw values through, got %v", out[:2])
	}
	if !almostEqual(out[2], 7) {
		t.Fatalf("expected mean 7 at index 2, got %v", out[2])
	}
	if !almostEqual(out[3], 9) {
		t.Fatalf("expected mean 9 at index 3, got %v", out[3])
	}
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(100 + i)
	}
	out := RSI(values, 14)
	if len(out) != len(values)-14 {
		t.Fatalf("unexpected RSI length %d", len(out))
	}
	for i, v := range out {
		if v != 100 {
			t.Fatalf("zero average loss must map to RSI 100, got %v at %d", v, i)
		}
	}
}

func TestRSIBounds(t *testing.T) {
	values := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1,
		45.9, 46.3, 46.0, 46.4, 46.2, 45.6, 46.2, 46.2, 46.0, 46.4}
	out := RSI(values, 14)
	if len(out) == 0 {
		t.Fatalf("expected RSI values")
	}
	for _, v := range out {
		if v < 0 || v > 100 {
			t.Fatalf("RSI out of range: %v", v)
		}
	}
}

func TestMACDHistogramRelation(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 50 + 5*math.Sin(float64(i)/6)
	}
	res := MACD(values, 12, 26, 9)
	if len(res.MACD) != len(values) {
		t.Fatalf("MACD length mismatch")
	}
	for i := range values {
		if !almostEqual(res.Histogram[i], res.MACD[i]-res.Signal[i]) {
			t.Fatalf("histogram must equal macd-signal at %d", i)
		}
	}
}

func TestStochRSIZeroRange(t *testing.T) {
	// Strictly rising closes keep RSI pinned at 100, so the rolling
	// min/max range is zero and the raw stochastic must be 0, not NaN.
	values := make([]float64, 40)
	for i := range values {
		values[i] = float64(i + 1)
	}
	res := StochRSI(values, 14, 14, 3, 3)
	if len(res.K) == 0 {
		t.Fatalf("expected K values")
	}
	for i, v := range res.K {
		if math.IsNaN(v) {
			t.Fatalf("NaN in K at %d", i)
		}
		if v != 0 {
			t.Fatalf("zero range must yield 0, got %v at %d", v, i)
		}
	}
}

func TestStochRSIBounds(t *testing.T) {
	values := make([]float64, 80)
	for i := range values {
		values[i] = 100 + 10*math.Sin(float64(i)/4) + 3*math.Cos(float64(i)/9)
	}
	res := StochRSI(values, 14, 14, 3, 3)
	for i := range res.K {
		if res.K[i] < 0 || res.K[i] > 100 {
			t.Fatalf("K out of range at %d: %v", i, res.K[i])
		}
	}
}

func TestADXTrendingSeries(t *testing.T) {
	n := 60
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base
	}
	res := ADX(highs, lows, closes, 14)
	if len(res.ADX) == 0 {
		t.Fatalf("expected ADX output")
	}
	adx := Last(res.ADX, 0)
	if adx < 50 {
		t.Fatalf("steady uptrend should produce strong ADX, got %v", adx)
	}
	if Last(res.PlusDI, 0) <= Last(res.MinusDI, 0) {
		t.Fatalf("uptrend must have +DI above -DI")
	}
}

func TestADXTooShort(t *testing.T) {
	highs := []float64{1, 2, 3}
	res := ADX(highs, highs, highs, 14)
	if len(res.ADX) != 0 {
		t.Fatalf("short input must return empty result")
	}
}

func TestIndicatorsAreDeterministic(t *testing.T) {
	values := make([]float64, 70)
	for i := range values {
		values[i] = 200 + 7*math.Sin(float64(i)/5)
	}
	a := RSI(values, 14)
	b := RSI(values, 14)
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("recomputation differs at %d", i)
		}
	}
}
