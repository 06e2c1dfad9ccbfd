// Package trend converts bar series into per-timeframe trend assessments
// and combines them into a weighted multi-timeframe consensus.
package trend

import (
	"math"
	"sync"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/indicator"
	"TrendGate/pkg/logger"
)

// MinBars is the series length below which analysis degrades to a neutral
// trend instead of failing.
const MinBars = 50

// Fixed indicator importances. Trend-following indicators outvote momentum
// oscillators.
var voteWeights = map[string]float64{
	"ema":      1.0,
	"macd":     1.0,
	"adx":      1.0,
	"rsi":      0.7,
	"stochrsi": 0.5,
}

// Config holds consensus thresholds and indicator periods.
type Config struct {
	ConsensusThreshold float64
	MinimumAgreement   int

	EMAFast     int
	EMASlow     int
	RSIPeriod   int
	MACDFast    int
	MACDSlow    int
	MACDSignal  int
	StochPeriod int
	StochK      int
	StochD      int
	ADXPeriod   int
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		ConsensusThreshold: 0.75,
		MinimumAgreement:   2,
		EMAFast:            20,
		EMASlow:            50,
		RSIPeriod:          14,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		StochPeriod:        14,
		StochK:             3,
		StochD:             3,
		ADXPeriod:          14,
	}
}

// Analyzer computes Trends and Consensus. It keeps only the latest
// Consensus per symbol; later analyses supersede earlier ones.
type Analyzer struct {
	cfg Config
	log *logger.Logger

	mu     sync.RWMutex
	latest map[string]*models.Consensus
}

// NewAnalyzer creates a trend analyzer.
func NewAnalyzer(cfg Config, log *logger.Logger) *Analyzer {
	if cfg.ConsensusThreshold <= 0 {
		cfg.ConsensusThreshold = 0.75
	}
	if cfg.MinimumAgreement <= 0 {
		cfg.MinimumAgreement = 2
	}
	return &Analyzer{cfg: cfg, log: log, latest: make(map[string]*models.Consensus)}
}

// AnalyzeTimeframe produces a fresh Trend for one timeframe's series.
// Series shorter than MinBars yield a neutral trend with strength 0.5.
func (a *Analyzer) AnalyzeTimeframe(spec models.TimeframeSpec, series *models.TimeframeSeries) *models.Trend {
	t := &models.Trend{
		Timeframe:  spec.Timeframe,
		Direction:  models.Neutral,
		Strength:   0.5,
		Weight:     spec.Weight,
		ComputedAt: time.Now(),
	}
	if series == nil || len(series.Bars) < MinBars {
		if series != nil {
			t.BarCount = len(series.Bars)
		}
		return t
	}
	t.BarCount = len(series.Bars)

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	adx := indicator.ADX(highs, lows, closes, a.cfg.ADXPeriod)

	votes := []models.IndicatorVote{
		a.emaVote(closes),
		a.macdVote(closes),
		a.adxVote(adx),
		a.rsiVote(closes),
		a.stochVote(closes),
	}
	t.Votes = votes

	var net, total float64
	for _, v := range votes {
		w := voteWeights[v.Indicator]
		total += w
		switch v.Direction {
		case models.Bullish:
			net += w
		case models.Bearish:
			net -= w
		}
	}
	if total > 0 {
		t.Confidence = math.Abs(net) / total
	}
	switch {
	case net > 0:
		t.Direction = models.Bullish
	case net < 0:
		t.Direction = models.Bearish
	}

	// Strength comes from ADX magnitude normalized to [0,1]; 0.5 stands
	// in when ADX is unavailable.
	if last := indicator.Last(adx.ADX, -1); last >= 0 {
		t.Strength = math.Min(1, last/50)
	}
	return t
}

func (a *Analyzer) emaVote(closes []float64) models.IndicatorVote {
	fast := indicator.Last(indicator.EMA(closes, a.cfg.EMAFast), 0)
	slow := indicator.Last(indicator.EMA(closes, a.cfg.EMASlow), 0)
	v := models.IndicatorVote{Indicator: "ema", Direction: models.Neutral}
	if slow == 0 {
		return v
	}
	diff := (fast - slow) / slow
	v.Strength = math.Min(1, math.Abs(diff)*100)
	if diff > 0 {
		v.Direction = models.Bullish
	} else if diff < 0 {
		v.Direction = models.Bearish
	}
	return v
}

func (a *Analyzer) macdVote(closes []float64) models.IndicatorVote {
	res := indicator.MACD(closes, a.cfg.MACDFast, a.cfg.MACDSlow, a.cfg.MACDSignal)
	hist := indicator.Last(res.Histogram, 0)
	price := indicator.Last(closes, 1)
	v := models.IndicatorVote{Indicator: "macd", Direction: models.Neutral}
	if price != 0 {
		v.Strength = math.Min(1, math.Abs(hist/price)*100)
	}
	if hist > 0 {
		v.Direction = models.Bullish
	} else if hist < 0 {
		v.Direction = models.Bearish
	}
	return v
}

func (a *Analyzer) adxVote(res indicator.ADXResult) models.IndicatorVote {
	v := models.IndicatorVote{Indicator: "adx", Direction: models.Neutral}
	adx := indicator.Last(res.ADX, 0)
	plus := indicator.Last(res.PlusDI, 0)
	minus := indicator.Last(res.MinusDI, 0)
	v.Strength = math.Min(1, adx/100)
	if adx < 20 {
		return v // no meaningful trend to vote on
	}
	if plus > minus {
		v.Direction = models.Bullish
	} else if minus > plus {
		v.Direction = models.Bearish
	}
	return v
}

func (a *Analyzer) rsiVote(closes []float64) models.IndicatorVote {
	rsi := indicator.Last(indicator.RSI(closes, a.cfg.RSIPeriod), 50)
	v := models.IndicatorVote{Indicator: "rsi", Direction: models.Neutral}
	v.Strength = math.Abs(rsi-50) / 50
	if rsi > 55 {
		v.Direction = models.Bullish
	} else if rsi < 45 {
		v.Direction = models.Bearish
	}
	return v
}

func (a *Analyzer) stochVote(closes []float64) models.IndicatorVote {
	res := indicator.StochRSI(closes, a.cfg.RSIPeriod, a.cfg.StochPeriod, a.cfg.StochK, a.cfg.StochD)
	k := indicator.Last(res.K, 50)
	d := indicator.Last(res.D, 50)
	v := models.IndicatorVote{Indicator: "stochrsi", Direction: models.Neutral}
	v.Strength = math.Abs(k-d) / 100
	if k > d && k < 80 {
		v.Direction = models.Bullish
	} else if k < d && k > 20 {
		v.Direction = models.Bearish
	}
	return v
}

// Analyze builds per-timeframe Trends for the available series and derives
// the symbol's Consensus. Missing timeframes (nil series) still produce a
// neutral Trend but are excluded from the agreement ratio.
func (a *Analyzer) Analyze(symbol string, specs []models.TimeframeSpec, data map[models.Timeframe]*models.TimeframeSeries) *models.Consensus {
	trends := make(map[models.Timeframe]*models.Trend, len(specs))
	for _, spec := range specs {
		trends[spec.Timeframe] = a.AnalyzeTimeframe(spec, data[spec.Timeframe])
	}
	c := a.Combine(symbol, trends)

	a.mu.Lock()
	a.latest[symbol] = c
	a.mu.Unlock()
	return c
}

// Combine derives the weighted Consensus from a set of Trends. Each
// non-neutral Trend contributes weight x confidence to its direction's
// bucket; neutral Trends are excluded from the ratio entirely.
func (a *Analyzer) Combine(symbol string, trends map[models.Timeframe]*models.Trend) *models.Consensus {
	c := &models.Consensus{
		Symbol:       symbol,
		Direction:    models.Neutral,
		PerTimeframe: trends,
		ComputedAt:   time.Now(),
	}

	var bull, bear, strengthSum float64
	nonNeutral := 0
	for _, t := range trends {
		if t == nil || t.Direction == models.Neutral {
			continue
		}
		contrib := t.Weight * t.Confidence
		if t.Direction == models.Bullish {
			bull += contrib
		} else {
			bear += contrib
		}
		strengthSum += contrib * t.Strength
		nonNeutral++
	}

	total := bull + bear
	if total > 0 {
		c.Agreement = math.Abs(bull-bear) / total
		c.Strength = strengthSum / total
		c.Confidence = c.Agreement
		if bull > bear {
			c.Direction = models.Bullish
		} else if bear > bull {
			c.Direction = models.Bearish
		}
	}
	c.Achieved = c.Agreement >= a.cfg.ConsensusThreshold && nonNeutral >= a.cfg.MinimumAgreement
	return c
}

// Latest returns the most recent Consensus for a symbol, if any.
func (a *Analyzer) Latest(symbol string) (*models.Consensus, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.latest[symbol]
	return c, ok
}

// Reset clears the per-symbol consensus cache.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	a.latest = make(map[string]*models.Consensus)
	a.mu.Unlock()
}
