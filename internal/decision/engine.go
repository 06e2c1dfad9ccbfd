// Package decision validates signals against a multi-timeframe consensus
// using a weighted factor score, hard rule gates, and per-symbol adaptive
// thresholds driven by outcome feedback.
package decision

import (
	"context"
	"fmt"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	"TrendGate/pkg/cache"
	"TrendGate/pkg/logger"
)

// FactorWeights are the relative importances of the five score factors.
// They are normalized before use so they need not sum to exactly 1.
type FactorWeights struct {
	Consensus float64
	Strength  float64
	Condition float64
	Quality   float64
	History   float64
}

// DefaultFactorWeights returns the standard factor weighting.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		Consensus: 0.40,
		Strength:  0.20,
		Condition: 0.20,
		Quality:   0.10,
		History:   0.10,
	}
}

func (w FactorWeights) total() float64 {
	return w.Consensus + w.Strength + w.Condition + w.Quality + w.History
}

// Rules are the hard gates applied after scoring. Any failing rule rejects
// regardless of the weighted score.
type Rules struct {
	MinTrendStrength    float64
	MinSignalConfidence float64
}

// Config holds decision engine configuration.
type Config struct {
	Base    Thresholds
	Weights FactorWeights
	Rules   Rules

	MaxSignalAge time.Duration
	DecisionTTL  time.Duration

	FailStep      float64
	SuccessStep   float64
	MaxDelta      float64
	HistoryWindow int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Base:    DefaultThresholds(),
		Weights: DefaultFactorWeights(),
		Rules: Rules{
			MinTrendStrength:    0.4,
			MinSignalConfidence: 0.3,
		},
		MaxSignalAge:  5 * time.Minute,
		DecisionTTL:   5 * time.Minute,
		FailStep:      0.01,
		SuccessStep:   0.005,
		MaxDelta:      0.2,
		HistoryWindow: 20,
	}
}

// Engine validates signals. Decisions are cached per (symbol, signal
// timestamp) for a bounded window so repeated deliveries of the same signal
// do not recompute.
type Engine struct {
	cfg     Config
	book    *ThresholdBook
	history *OutcomeHistory
	cache   cache.Service
	log     *logger.Logger
	metrics repository.Metrics

	now func() time.Time
}

// NewEngine creates a decision engine. decisionCache may be nil to disable
// decision caching.
func NewEngine(cfg Config, decisionCache cache.Service, log *logger.Logger, m repository.Metrics) *Engine {
	if cfg.MaxSignalAge <= 0 {
		cfg.MaxSignalAge = 5 * time.Minute
	}
	if cfg.DecisionTTL <= 0 {
		cfg.DecisionTTL = 5 * time.Minute
	}
	if cfg.Weights.total() <= 0 {
		cfg.Weights = DefaultFactorWeights()
	}
	return &Engine{
		cfg:     cfg,
		book:    NewThresholdBook(cfg.Base, cfg.FailStep, cfg.SuccessStep, cfg.MaxDelta),
		history: NewOutcomeHistory(cfg.HistoryWindow),
		cache:   decisionCache,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Thresholds exposes the adaptive threshold book.
func (e *Engine) Thresholds() *ThresholdBook { return e.book }

// History exposes the outcome history.
func (e *Engine) History() *OutcomeHistory { return e.history }

// ValidateSignal runs the full validation pipeline and always returns a
// Decision, never an error.
func (e *Engine) ValidateSignal(ctx context.Context, sig *models.Signal, consensus *models.Consensus, cond *models.MarketCondition) *models.Decision {
	now := e.now()

	if d := e.cachedDecision(ctx, sig); d != nil {
		return d
	}

	if err := e.basicValidate(sig, now); err != nil {
		return e.reject(ctx, sig, 0, 0, err.Error(), nil, now)
	}
	e.history.Register(sig.ID, sig.Symbol, now)

	tfCount := 0
	if consensus != nil {
		tfCount = len(consensus.PerTimeframe)
	}
	eff := e.book.Effective(sig.Symbol, cond, tfCount)
	aligned := AlignedTimeframes(sig.Type, consensus)

	factors, score := e.score(sig, consensus, cond, eff)

	// A rule rejection carries the score for diagnostics but no
	// confidence; the stage-five multipliers apply to approvals only.
	if err := e.checkRules(sig, consensus, aligned, eff); err != nil {
		return e.reject(ctx, sig, score, 0, err.Error(), factors, now)
	}

	confidence := e.confidence(sig, consensus, score, eff)
	d := &models.Decision{
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Confidence:  confidence,
		Score:       score,
		Factors:     factors,
		ValidatedAt: now,
	}
	if score >= eff.Consensus {
		d.Approved = true
		d.Reason = fmt.Sprintf("score %.3f meets consensus threshold %.3f", score, eff.Consensus)
	} else {
		d.Reason = fmt.Sprintf("score %.3f below consensus threshold %.3f", score, eff.Consensus)
	}

	e.store(ctx, sig, d)
	e.record(d)
	return d
}

// UpdateSignalOutcome records what happened to a validated signal and nudges
// the symbol's adaptive thresholds. Repeat calls for the same id update the
// stored record without re-applying the delta. Returns the symbol the
// signal was validated for.
func (e *Engine) UpdateSignalOutcome(signalID string, successful bool, pnl float64) (string, error) {
	o := &models.Outcome{
		SignalID:   signalID,
		Successful: successful,
		PnL:        pnl,
		RecordedAt: e.now(),
	}
	symbol, first, found := e.history.Record(o)
	if !found {
		return "", fmt.Errorf("no validation record for signal %s", signalID)
	}
	if first {
		e.book.RecordOutcome(symbol, successful)
		e.log.Debug("adaptive thresholds updated",
			logger.String("symbol", symbol),
			logger.String("signal_id", signalID),
			logger.Bool("successful", successful))
	}
	return symbol, nil
}

// QuickCheck runs only the stage-one basic validation, without any data
// fetch or scoring. Used as a cheap pre-filter.
func (e *Engine) QuickCheck(sig *models.Signal) error {
	return e.basicValidate(sig, e.now())
}

// AlignedTimeframes counts timeframes whose Trend direction matches the
// signal's expectation. Neutral trends never align.
func AlignedTimeframes(t models.SignalType, consensus *models.Consensus) int {
	if consensus == nil {
		return 0
	}
	aligned := 0
	for _, tr := range consensus.PerTimeframe {
		if tr == nil {
			continue
		}
		if (t.IsBullish() && tr.Direction == models.Bullish) ||
			(t.IsBearish() && tr.Direction == models.Bearish) {
			aligned++
		}
	}
	return aligned
}

func (e *Engine) basicValidate(sig *models.Signal, now time.Time) error {
	if sig == nil {
		return &models.InvalidSignalError{Reason: "nil signal"}
	}
	if sig.ID == "" || sig.Symbol == "" {
		return &models.InvalidSignalError{Reason: "missing id or symbol"}
	}
	if !sig.Type.IsValid() {
		return &models.InvalidSignalError{Reason: fmt.Sprintf("unknown type %q", sig.Type)}
	}
	if sig.Strength < 0 || sig.Strength > 1 {
		return &models.InvalidSignalError{Reason: fmt.Sprintf("strength %v out of [0,1]", sig.Strength)}
	}
	if sig.Timestamp.IsZero() {
		return &models.InvalidSignalError{Reason: "missing timestamp"}
	}
	if age := sig.Age(now); age > e.cfg.MaxSignalAge {
		return &models.StaleSignalError{SignalID: sig.ID, Age: age, MaxAge: e.cfg.MaxSignalAge}
	}
	return nil
}

func (e *Engine) score(sig *models.Signal, consensus *models.Consensus, cond *models.MarketCondition, eff EffectiveThresholds) (map[string]float64, float64) {
	var consensusFactor float64
	if consensus != nil && consensus.Achieved {
		consensusFactor = consensus.Agreement * consensus.Strength
	}

	var strengthFactor float64
	if sig.Strength >= eff.Strength {
		strengthFactor = sig.Strength
	}

	factors := map[string]float64{
		"trend_consensus":        consensusFactor,
		"signal_strength":        strengthFactor,
		"market_condition":       ConditionScore(cond),
		"signal_quality":         qualityScore(sig.Metadata),
		"historical_performance": e.history.WinRate(sig.Symbol),
	}

	w := e.cfg.Weights
	total := w.total()
	score := (factors["trend_consensus"]*w.Consensus +
		factors["signal_strength"]*w.Strength +
		factors["market_condition"]*w.Condition +
		factors["signal_quality"]*w.Quality +
		factors["historical_performance"]*w.History) / total
	return factors, score
}

// qualityScore grades the signal generator's own metadata. An empty
// metadata block scores the neutral 0.5.
func qualityScore(m models.SignalMetadata) float64 {
	q := 0.5
	if m.Confidence != nil {
		q = clamp(*m.Confidence, 0, 1)
	}
	if n := len(m.Strategies); n > 0 {
		if n > 3 {
			n = 3
		}
		q += 0.05 * float64(n)
	}
	if n := len(m.Indicators); n > 0 {
		if n > 4 {
			n = 4
		}
		q += 0.025 * float64(n)
	}
	return clamp(q, 0, 1)
}

func (e *Engine) checkRules(sig *models.Signal, consensus *models.Consensus, aligned int, eff EffectiveThresholds) error {
	if aligned < eff.MinAgreement {
		return &models.RuleViolationError{
			Rule:   "min_aligned_timeframes",
			Detail: fmt.Sprintf("%d aligned, need %d", aligned, eff.MinAgreement),
		}
	}
	var strength float64
	if consensus != nil {
		strength = consensus.Strength
	}
	if strength < e.cfg.Rules.MinTrendStrength {
		return &models.RuleViolationError{
			Rule:   "min_trend_strength",
			Detail: fmt.Sprintf("strength %.3f below %.3f", strength, e.cfg.Rules.MinTrendStrength),
		}
	}
	if c := sig.Metadata.Confidence; c != nil && *c < e.cfg.Rules.MinSignalConfidence {
		return &models.RuleViolationError{
			Rule:   "min_signal_confidence",
			Detail: fmt.Sprintf("confidence %.3f below %.3f", *c, e.cfg.Rules.MinSignalConfidence),
		}
	}
	return nil
}

func (e *Engine) confidence(sig *models.Signal, consensus *models.Consensus, score float64, eff EffectiveThresholds) float64 {
	confidence := score
	if consensus != nil && consensus.Achieved {
		confidence *= 1.25
	}
	if sig.Strength >= eff.Strength {
		confidence *= 1.1
	}
	if consensus != nil && consensus.Agreement >= 0.8 {
		confidence *= 1.15
	}
	return clamp(confidence, 0, 1)
}

func (e *Engine) reject(ctx context.Context, sig *models.Signal, score, confidence float64, reason string, factors map[string]float64, now time.Time) *models.Decision {
	d := &models.Decision{
		Score:       score,
		Confidence:  confidence,
		Reason:      reason,
		Factors:     factors,
		ValidatedAt: now,
	}
	if sig != nil {
		d.SignalID = sig.ID
		d.Symbol = sig.Symbol
	}
	e.store(ctx, sig, d)
	e.record(d)
	return d
}

func decisionKey(sig *models.Signal) string {
	return cache.Key("decision", sig.Symbol, sig.Timestamp.UnixNano())
}

func (e *Engine) cachedDecision(ctx context.Context, sig *models.Signal) *models.Decision {
	if e.cache == nil || sig == nil || sig.Symbol == "" || sig.Timestamp.IsZero() {
		return nil
	}
	var d models.Decision
	if err := e.cache.Get(ctx, decisionKey(sig), &d); err != nil {
		return nil
	}
	return &d
}

func (e *Engine) store(ctx context.Context, sig *models.Signal, d *models.Decision) {
	if e.cache == nil || sig == nil || sig.Symbol == "" || sig.Timestamp.IsZero() {
		return
	}
	if err := e.cache.Set(ctx, decisionKey(sig), d, e.cfg.DecisionTTL); err != nil {
		e.log.Warn("decision cache write failed", logger.Error(err))
	}
}

func (e *Engine) record(d *models.Decision) {
	if e.metrics == nil {
		return
	}
	verdict := "rejected"
	if d.Approved {
		verdict = "approved"
	}
	e.metrics.RecordValidation(verdict)
}
