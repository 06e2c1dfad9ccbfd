// Package condition derives the market-condition assessment used by the
// decision engine's condition factor from the symbol's own bar series.
package condition

import (
	"context"
	"math"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	"TrendGate/internal/marketdata"
	"TrendGate/pkg/logger"
)

// minBars is the series length needed for a meaningful assessment.
const minBars = 30

// Provider implements repository.ConditionSource by grading recent
// volatility and volume against the series' own baseline.
type Provider struct {
	cache *marketdata.TimeframeCache
	tf    models.Timeframe
	log   *logger.Logger

	now      func() time.Time
	exchange *time.Location
}

// NewProvider creates a condition provider reading from one timeframe.
func NewProvider(cache *marketdata.TimeframeCache, tf models.Timeframe, log *logger.Logger) *Provider {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Provider{cache: cache, tf: tf, log: log, now: time.Now, exchange: loc}
}

// Condition grades the symbol's current market state. Returns nil without
// error when the series is too short to grade.
func (p *Provider) Condition(ctx context.Context, symbol string) (*models.MarketCondition, error) {
	series, err := p.cache.Get(ctx, p.tf, symbol, marketdata.GetOptions{})
	if err != nil {
		return nil, err
	}
	if len(series.Bars) < minBars {
		return nil, nil
	}

	cond := &models.MarketCondition{
		Volatility: gradeVolatility(series.Closes()),
		Volume:     gradeVolume(series.Bars),
	}
	cond.MarketHours.IsOpen = p.marketOpen(p.now())
	return cond, nil
}

// gradeVolatility compares the standard deviation of the last 10 returns
// against the whole series' baseline.
func gradeVolatility(closes []float64) models.ConditionLevel {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
		}
	}
	if len(returns) < 10 {
		return models.ConditionLevel{Level: "normal"}
	}

	baseline := stddev(returns)
	recent := stddev(returns[len(returns)-10:])

	lvl := models.ConditionLevel{Level: "normal", Value: recent}
	if baseline <= 0 {
		return lvl
	}
	switch ratio := recent / baseline; {
	case ratio > 1.5:
		lvl.Level = "high"
	case ratio < 0.5:
		lvl.Level = "low"
	}
	return lvl
}

// gradeVolume compares the last 5 bars' mean volume against the series
// average.
func gradeVolume(bars []models.Bar) models.ConditionLevel {
	var total float64
	for _, b := range bars {
		total += float64(b.Volume)
	}
	avg := total / float64(len(bars))

	n := 5
	if len(bars) < n {
		n = len(bars)
	}
	var recent float64
	for _, b := range bars[len(bars)-n:] {
		recent += float64(b.Volume)
	}
	recent /= float64(n)

	lvl := models.ConditionLevel{Level: "normal", Value: recent}
	if avg <= 0 {
		return lvl
	}
	switch ratio := recent / avg; {
	case ratio > 1.5:
		lvl.Level = "high"
	case ratio < 0.5:
		lvl.Level = "low"
	}
	return lvl
}

// marketOpen reports whether the primary session is open (09:30-16:00
// exchange time, weekdays).
func (p *Provider) marketOpen(now time.Time) bool {
	t := now.In(p.exchange)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	return mins >= 9*60+30 && mins < 16*60
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

var _ repository.ConditionSource = (*Provider)(nil)
