package models

import "time"

// SignalType is the kind of trade proposal under validation.
type SignalType string

const (
	SignalBuy        SignalType = "BUY"
	SignalSell       SignalType = "SELL"
	SignalOversold   SignalType = "OVERSOLD"
	SignalOverbought SignalType = "OVERBOUGHT"
	SignalNeutral    SignalType = "NEUTRAL"
)

// IsValid reports whether t is in the allowed set.
func (t SignalType) IsValid() bool {
	switch t {
	case SignalBuy, SignalSell, SignalOversold, SignalOverbought, SignalNeutral:
		return true
	}
	return false
}

// IsBullish reports whether the signal expects upward movement.
func (t SignalType) IsBullish() bool { return t == SignalBuy || t == SignalOversold }

// IsBearish reports whether the signal expects downward movement.
func (t SignalType) IsBearish() bool { return t == SignalSell || t == SignalOverbought }

// SignalMetadata carries optional context from the signal generator.
type SignalMetadata struct {
	Confidence *float64           `json:"confidence,omitempty"`
	Strategies []string           `json:"strategies,omitempty"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Signal is an externally generated trade proposal. Read-only input;
// the pipeline never mutates it.
type Signal struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Type      SignalType     `json:"type"`
	Strength  float64        `json:"strength"` // [0,1]
	Timestamp time.Time      `json:"timestamp"`
	Metadata  SignalMetadata `json:"metadata"`
}

// Age returns how old the signal is relative to now.
func (s *Signal) Age(now time.Time) time.Duration { return now.Sub(s.Timestamp) }

// Decision is the validator's verdict for one signal.
type Decision struct {
	SignalID    string             `json:"signal_id"`
	Symbol      string             `json:"symbol"`
	Approved    bool               `json:"approved"`
	Queued      bool               `json:"queued,omitempty"`
	Errored     bool               `json:"errored,omitempty"`
	Confidence  float64            `json:"confidence"`
	Score       float64            `json:"score"`
	Reason      string             `json:"reason"`
	Factors     map[string]float64 `json:"factors,omitempty"`
	ValidatedAt time.Time          `json:"validated_at"`
}

// ConditionLevel grades a market-condition dimension.
type ConditionLevel struct {
	Level string  `json:"level"` // "low", "normal", "high"
	Value float64 `json:"value"`
}

// MarketCondition is the externally supplied market state used by the
// decision engine's condition factor. Read-only.
type MarketCondition struct {
	Volatility  ConditionLevel `json:"volatility"`
	Volume      ConditionLevel `json:"volume"`
	MarketHours struct {
		IsOpen bool `json:"is_open"`
	} `json:"market_hours"`
}

// AdaptiveState holds a symbol's learned threshold deltas. Mutated only by
// outcome feedback; deltas stay within the configured clamp range.
type AdaptiveState struct {
	ConsensusDelta float64
	StrengthDelta  float64
	AgreementDelta float64
	SampleCount    int
}

// Outcome records what happened to an approved signal after the fact.
type Outcome struct {
	SignalID   string
	Symbol     string
	Successful bool
	PnL        float64
	RecordedAt time.Time
}
