package decision

import (
	"math"
	"sync"

	"TrendGate/internal/domain/models"
)

// Thresholds are the base validation thresholds before adaptation.
type Thresholds struct {
	Consensus    float64
	Strength     float64
	MinAgreement int
}

// DefaultThresholds returns the standard base thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Consensus: 0.75, Strength: 0.6, MinAgreement: 2}
}

// EffectiveThresholds are the thresholds in force for one validation after
// adaptive deltas and market-condition adjustments.
type EffectiveThresholds struct {
	Consensus    float64
	Strength     float64
	MinAgreement int
}

// ThresholdBook holds per-symbol adaptive threshold state. Failure outcomes
// tighten a symbol's thresholds; successes loosen them by a smaller step.
// Deltas stay within [-maxDelta, +maxDelta].
type ThresholdBook struct {
	base        Thresholds
	failStep    float64
	successStep float64
	maxDelta    float64

	mu    sync.RWMutex
	state map[string]*models.AdaptiveState
}

// NewThresholdBook creates a threshold book over the given base thresholds.
func NewThresholdBook(base Thresholds, failStep, successStep, maxDelta float64) *ThresholdBook {
	if failStep <= 0 {
		failStep = 0.01
	}
	if successStep <= 0 {
		successStep = 0.005
	}
	if maxDelta <= 0 {
		maxDelta = 0.2
	}
	return &ThresholdBook{
		base:        base,
		failStep:    failStep,
		successStep: successStep,
		maxDelta:    maxDelta,
		state:       make(map[string]*models.AdaptiveState),
	}
}

// Base returns the unadapted thresholds.
func (b *ThresholdBook) Base() Thresholds { return b.base }

// RecordOutcome nudges a symbol's deltas for one observed outcome.
func (b *ThresholdBook) RecordOutcome(symbol string, successful bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[symbol]
	if !ok {
		st = &models.AdaptiveState{}
		b.state[symbol] = st
	}

	step := b.failStep
	if successful {
		step = -b.successStep
	}
	st.ConsensusDelta = clamp(st.ConsensusDelta+step, -b.maxDelta, b.maxDelta)
	st.StrengthDelta = clamp(st.StrengthDelta+step, -b.maxDelta, b.maxDelta)
	st.AgreementDelta = clamp(st.AgreementDelta+step, -b.maxDelta, b.maxDelta)
	st.SampleCount++
}

// State returns a copy of a symbol's adaptive state.
func (b *ThresholdBook) State(symbol string) models.AdaptiveState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if st, ok := b.state[symbol]; ok {
		return *st
	}
	return models.AdaptiveState{}
}

// Effective computes the thresholds in force for a symbol given the current
// market condition and the number of configured timeframes. Condition
// adjustments stack on top of the adaptive deltas before global clamping.
func (b *ThresholdBook) Effective(symbol string, cond *models.MarketCondition, tfCount int) EffectiveThresholds {
	st := b.State(symbol)

	consensus := b.base.Consensus + st.ConsensusDelta
	strength := b.base.Strength + st.StrengthDelta
	agreement := float64(b.base.MinAgreement) + st.AgreementDelta

	if cond != nil {
		if cond.Volatility.Level == "high" {
			consensus += 0.1
			strength += 0.1
		}
		if cond.Volume.Level == "low" {
			consensus += 0.05
		}
	}

	if tfCount < 1 {
		tfCount = 1
	}
	minAgreement := int(math.Round(agreement))
	if minAgreement < 1 {
		minAgreement = 1
	}
	if minAgreement > tfCount {
		minAgreement = tfCount
	}

	return EffectiveThresholds{
		Consensus:    clamp(consensus, 0.5, 0.95),
		Strength:     clamp(strength, 0.3, 0.9),
		MinAgreement: minAgreement,
	}
}

// Reset clears all per-symbol state.
func (b *ThresholdBook) Reset() {
	b.mu.Lock()
	b.state = make(map[string]*models.AdaptiveState)
	b.mu.Unlock()
}
