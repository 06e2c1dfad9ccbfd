package trend

import (
	"testing"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/pkg/logger"
)

func risingSeries(tf models.Timeframe, n int) *models.TimeframeSeries {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		price := 100 + float64(i)*0.8
		bars[i] = models.Bar{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   price - 0.2,
			High:   price + 0.6,
			Low:    price - 0.6,
			Close:  price,
			Volume: 1000,
		}
	}
	return &models.TimeframeSeries{Symbol: "AAPL", Timeframe: tf, Bars: bars}
}

func fallingSeries(tf models.Timeframe, n int) *models.TimeframeSeries {
	s := risingSeries(tf, n)
	for i := range s.Bars {
		price := 200 - float64(i)*0.8
		s.Bars[i].Open = price + 0.2
		s.Bars[i].High = price + 0.6
		s.Bars[i].Low = price - 0.6
		s.Bars[i].Close = price
	}
	return s
}

func spec(tf models.Timeframe, w float64) models.TimeframeSpec {
	return models.TimeframeSpec{Timeframe: tf, Weight: w, Validity: time.Minute, BarLimit: 100}
}

func TestAnalyzeTimeframeUptrend(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	tr := a.AnalyzeTimeframe(spec(models.TF1h, 0.35), risingSeries(models.TF1h, 80))
	if tr.Direction != models.Bullish {
		t.Fatalf("expected bullish, got %s", tr.Direction)
	}
	if tr.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %v", tr.Confidence)
	}
	if tr.Strength <= 0.5 {
		t.Fatalf("steady uptrend should have strong ADX-derived strength, got %v", tr.Strength)
	}
}

func TestAnalyzeTimeframeDowntrend(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	tr := a.AnalyzeTimeframe(spec(models.TF1h, 0.35), fallingSeries(models.TF1h, 80))
	if tr.Direction != models.Bearish {
		t.Fatalf("expected bearish, got %s", tr.Direction)
	}
}

func TestShortSeriesDegradesToNeutral(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	tr := a.AnalyzeTimeframe(spec(models.TF1h, 0.35), risingSeries(models.TF1h, 30))
	if tr.Direction != models.Neutral {
		t.Fatalf("under %d bars must degrade to neutral, got %s", MinBars, tr.Direction)
	}
	if tr.Strength != 0.5 {
		t.Fatalf("neutral fallback strength must be 0.5, got %v", tr.Strength)
	}
	if tr.Confidence != 0 {
		t.Fatalf("neutral fallback confidence must be 0, got %v", tr.Confidence)
	}
}

func TestNilSeriesDegradesToNeutral(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	tr := a.AnalyzeTimeframe(spec(models.TF1h, 0.35), nil)
	if tr.Direction != models.Neutral {
		t.Fatalf("nil series must degrade to neutral")
	}
}

func TestCombineUnanimousBullish(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	trends := map[models.Timeframe]*models.Trend{
		models.TF15m: {Timeframe: models.TF15m, Direction: models.Bullish, Confidence: 1, Strength: 0.8, Weight: 0.25},
		models.TF1h:  {Timeframe: models.TF1h, Direction: models.Bullish, Confidence: 1, Strength: 0.8, Weight: 0.35},
		models.TF4h:  {Timeframe: models.TF4h, Direction: models.Bullish, Confidence: 1, Strength: 0.8, Weight: 0.40},
	}
	c := a.Combine("AAPL", trends)
	if c.Agreement != 1.0 {
		t.Fatalf("unanimous bullish trends must give agreement 1.0, got %v", c.Agreement)
	}
	if !c.Achieved {
		t.Fatalf("consensus must be achieved")
	}
	if c.Direction != models.Bullish {
		t.Fatalf("expected bullish consensus, got %s", c.Direction)
	}
}

func TestCombineNeutralExcludedFromRatio(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	trends := map[models.Timeframe]*models.Trend{
		models.TF15m: {Timeframe: models.TF15m, Direction: models.Bullish, Confidence: 1, Strength: 0.7, Weight: 0.25},
		models.TF1h:  {Timeframe: models.TF1h, Direction: models.Bullish, Confidence: 1, Strength: 0.7, Weight: 0.35},
		models.TF4h:  {Timeframe: models.TF4h, Direction: models.Neutral, Confidence: 0, Strength: 0.5, Weight: 0.40},
	}
	c := a.Combine("AAPL", trends)
	if c.Agreement != 1.0 {
		t.Fatalf("neutral trends must not dilute agreement, got %v", c.Agreement)
	}
	if !c.Achieved {
		t.Fatalf("two agreeing timeframes meet the default minimum")
	}
}

func TestCombineSplitVoteBlocksConsensus(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	trends := map[models.Timeframe]*models.Trend{
		models.TF15m: {Timeframe: models.TF15m, Direction: models.Bullish, Confidence: 1, Strength: 0.7, Weight: 0.35},
		models.TF1h:  {Timeframe: models.TF1h, Direction: models.Bearish, Confidence: 1, Strength: 0.7, Weight: 0.35},
	}
	c := a.Combine("AAPL", trends)
	if c.Agreement != 0 {
		t.Fatalf("even split must give zero agreement, got %v", c.Agreement)
	}
	if c.Achieved {
		t.Fatalf("split vote must not achieve consensus")
	}
	if c.Direction != models.Neutral {
		t.Fatalf("split vote must be neutral, got %s", c.Direction)
	}
}

func TestCombineBelowMinimumAgreement(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	trends := map[models.Timeframe]*models.Trend{
		models.TF15m: {Timeframe: models.TF15m, Direction: models.Bullish, Confidence: 1, Strength: 0.7, Weight: 0.25},
		models.TF1h:  {Timeframe: models.TF1h, Direction: models.Neutral, Confidence: 0, Strength: 0.5, Weight: 0.35},
		models.TF4h:  {Timeframe: models.TF4h, Direction: models.Neutral, Confidence: 0, Strength: 0.5, Weight: 0.40},
	}
	c := a.Combine("AAPL", trends)
	if c.Agreement != 1.0 {
		t.Fatalf("single direction gives full agreement, got %v", c.Agreement)
	}
	if c.Achieved {
		t.Fatalf("one non-neutral timeframe is below the default minimum of 2")
	}
}

func TestAnalyzeCachesLatestConsensus(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), logger.Nop())
	specs := []models.TimeframeSpec{spec(models.TF15m, 0.25), spec(models.TF1h, 0.35)}
	data := map[models.Timeframe]*models.TimeframeSeries{
		models.TF15m: risingSeries(models.TF15m, 80),
		models.TF1h:  risingSeries(models.TF1h, 80),
	}
	first := a.Analyze("AAPL", specs, data)
	got, ok := a.Latest("AAPL")
	if !ok || got != first {
		t.Fatalf("latest consensus must be cached")
	}

	second := a.Analyze("AAPL", specs, data)
	got, _ = a.Latest("AAPL")
	if got != second {
		t.Fatalf("later analysis must supersede the cached consensus")
	}

	a.Reset()
	if _, ok := a.Latest("AAPL"); ok {
		t.Fatalf("reset must clear the cache")
	}
}
