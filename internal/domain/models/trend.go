package models

import "time"

// Direction is a trend verdict for one timeframe.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// IndicatorVote is a single indicator's directional contribution to a Trend.
type IndicatorVote struct {
	Indicator string
	Direction Direction
	Strength  float64
}

// Trend is the per-timeframe assessment of price direction. Created fresh
// on every analysis; never mutated afterwards.
type Trend struct {
	Timeframe  Timeframe
	Direction  Direction
	Strength   float64 // [0,1], from ADX magnitude
	Confidence float64 // [0,1], |net vote| / total vote weight
	Weight     float64 // static per-timeframe weight
	Votes      []IndicatorVote
	BarCount   int
	ComputedAt time.Time
}

// Consensus is the weighted agreement of Trends across a symbol's timeframes.
type Consensus struct {
	Symbol       string
	Direction    Direction
	Strength     float64
	Confidence   float64
	Agreement    float64 // |bullish - bearish| weight / total weight
	Achieved     bool
	PerTimeframe map[Timeframe]*Trend
	ComputedAt   time.Time
}

// NonNeutralCount returns how many timeframes voted a direction.
func (c *Consensus) NonNeutralCount() int {
	n := 0
	for _, t := range c.PerTimeframe {
		if t != nil && t.Direction != Neutral {
			n++
		}
	}
	return n
}
