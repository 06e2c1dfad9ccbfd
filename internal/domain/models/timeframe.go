package models

import "time"

// Timeframe is a bar-aggregation resolution such as "15m", "1h" or "4h".
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1h }

// NormalizeTimeframe converts a raw string to a known timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	switch Timeframe(s) {
	case TF5m, TF15m, TF1h, TF4h, TF1d:
		return Timeframe(s)
	default:
		return DefaultTimeframe()
	}
}

// Duration returns the bar width of a timeframe, or zero if unknown.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// TimeframeSpec binds a timeframe to its analysis weight, cache validity
// window and fetch depth. The active set comes from configuration.
type TimeframeSpec struct {
	Timeframe Timeframe
	Weight    float64
	Validity  time.Duration
	BarLimit  int
}

// DefaultTimeframeSpecs is the short/medium/long default set. Shorter
// timeframes expire sooner.
func DefaultTimeframeSpecs() []TimeframeSpec {
	return []TimeframeSpec{
		{Timeframe: TF15m, Weight: 0.25, Validity: 5 * time.Minute, BarLimit: 100},
		{Timeframe: TF1h, Weight: 0.35, Validity: 15 * time.Minute, BarLimit: 100},
		{Timeframe: TF4h, Weight: 0.40, Validity: time.Hour, BarLimit: 100},
	}
}
