package decision

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/pkg/cache"
	"TrendGate/pkg/logger"
	"TrendGate/pkg/metrics"
)

func bullishConsensus(strength float64) *models.Consensus {
	trends := map[models.Timeframe]*models.Trend{
		models.TF15m: {Timeframe: models.TF15m, Direction: models.Bullish, Confidence: 1, Strength: strength, Weight: 0.25},
		models.TF1h:  {Timeframe: models.TF1h, Direction: models.Bullish, Confidence: 1, Strength: strength, Weight: 0.35},
		models.TF4h:  {Timeframe: models.TF4h, Direction: models.Bullish, Confidence: 1, Strength: strength, Weight: 0.40},
	}
	return &models.Consensus{
		Symbol:       "AAPL",
		Direction:    models.Bullish,
		Strength:     strength,
		Confidence:   1,
		Agreement:    1,
		Achieved:     true,
		PerTimeframe: trends,
		ComputedAt:   time.Now(),
	}
}

func neutralCondition() *models.MarketCondition {
	cond := &models.MarketCondition{
		Volatility: models.ConditionLevel{Level: "normal", Value: 0.5},
		Volume:     models.ConditionLevel{Level: "normal", Value: 0.5},
	}
	cond.MarketHours.IsOpen = true
	return cond
}

func buySignal(id string) *models.Signal {
	return &models.Signal{
		ID:        id,
		Symbol:    "AAPL",
		Type:      models.SignalBuy,
		Strength:  0.9,
		Timestamp: time.Now(),
	}
}

func newEngine() *Engine {
	return NewEngine(DefaultConfig(), nil, logger.Nop(), metrics.NewNop())
}

func TestStrongBuyApprovedWithConfidenceBoost(t *testing.T) {
	e := newEngine()
	d := e.ValidateSignal(context.Background(), buySignal("sig-1"), bullishConsensus(0.9), neutralCondition())
	if !d.Approved {
		t.Fatalf("expected approval, got reason: %s", d.Reason)
	}
	if d.Confidence <= d.Score {
		t.Fatalf("confidence multipliers must lift confidence above score: conf=%v score=%v", d.Confidence, d.Score)
	}
	if d.Confidence > 1 {
		t.Fatalf("confidence must be capped at 1.0, got %v", d.Confidence)
	}
}

func TestStaleSignalRejected(t *testing.T) {
	e := newEngine()
	sig := buySignal("sig-stale")
	sig.Timestamp = time.Now().Add(-10 * time.Minute)

	d := e.ValidateSignal(context.Background(), sig, bullishConsensus(0.9), neutralCondition())
	if d.Approved {
		t.Fatalf("stale signal must be rejected")
	}
	if !strings.Contains(d.Reason, "stale") {
		t.Fatalf("rejection reason must mention staleness, got %q", d.Reason)
	}
}

func TestInvalidSignalsRejected(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	cons := bullishConsensus(0.9)

	bad := buySignal("sig-type")
	bad.Type = "HOLD"
	if d := e.ValidateSignal(ctx, bad, cons, nil); d.Approved {
		t.Fatalf("unknown type must be rejected")
	}

	bad = buySignal("sig-strength")
	bad.Strength = 1.5
	if d := e.ValidateSignal(ctx, bad, cons, nil); d.Approved {
		t.Fatalf("out-of-range strength must be rejected")
	}

	bad = buySignal("")
	if d := e.ValidateSignal(ctx, bad, cons, nil); d.Approved {
		t.Fatalf("missing id must be rejected")
	}
}

func TestMisalignedTimeframesFailRuleGate(t *testing.T) {
	e := newEngine()
	cons := bullishConsensus(0.9)
	sig := buySignal("sig-sell")
	sig.Type = models.SignalSell

	d := e.ValidateSignal(context.Background(), sig, cons, neutralCondition())
	if d.Approved {
		t.Fatalf("sell against bullish trends must be rejected")
	}
	if !strings.Contains(d.Reason, "min_aligned_timeframes") {
		t.Fatalf("expected alignment rule violation, got %q", d.Reason)
	}
	if d.Confidence != 0 {
		t.Fatalf("rule rejections carry no confidence, got %v", d.Confidence)
	}
}

func TestLowConfidenceMetadataFailsRuleGate(t *testing.T) {
	e := newEngine()
	sig := buySignal("sig-lowconf")
	conf := 0.1
	sig.Metadata.Confidence = &conf

	d := e.ValidateSignal(context.Background(), sig, bullishConsensus(0.9), neutralCondition())
	if d.Approved {
		t.Fatalf("low metadata confidence must be rejected")
	}
	if !strings.Contains(d.Reason, "min_signal_confidence") {
		t.Fatalf("expected confidence rule violation, got %q", d.Reason)
	}
}

func TestAdaptiveThresholdsTightenOnFailures(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	cons := bullishConsensus(0.9)
	cond := neutralCondition()

	base := e.Thresholds().Base().Consensus
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("sig-fail-%d", i)
		e.ValidateSignal(ctx, buySignal(id), cons, cond)
		if _, err := e.UpdateSignalOutcome(id, false, -1.0); err != nil {
			t.Fatalf("outcome %d: %v", i, err)
		}
	}

	eff := e.Thresholds().Effective("AAPL", nil, 3)
	if eff.Consensus <= base {
		t.Fatalf("10 failures must raise the effective threshold above %v, got %v", base, eff.Consensus)
	}
	if eff.Consensus > base+0.2 {
		t.Fatalf("delta must be clamped to +0.2, got %v", eff.Consensus)
	}

	// Many more failures still stay within the clamp.
	for i := 10; i < 40; i++ {
		id := fmt.Sprintf("sig-fail-%d", i)
		e.ValidateSignal(ctx, buySignal(id), cons, cond)
		if _, err := e.UpdateSignalOutcome(id, false, -1.0); err != nil {
			t.Fatalf("outcome %d: %v", i, err)
		}
	}
	eff = e.Thresholds().Effective("AAPL", nil, 3)
	if eff.Consensus > base+0.2 {
		t.Fatalf("delta must stay clamped after sustained failures, got %v", eff.Consensus)
	}
}

func TestOutcomeFeedbackIdempotentPerSignal(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	e.ValidateSignal(ctx, buySignal("sig-once"), bullishConsensus(0.9), neutralCondition())
	sym, err := e.UpdateSignalOutcome("sig-once", false, -2.0)
	if err != nil {
		t.Fatalf("first outcome: %v", err)
	}
	if sym != "AAPL" {
		t.Fatalf("outcome must resolve the validated symbol, got %q", sym)
	}
	after := e.Thresholds().State("AAPL")

	if _, err := e.UpdateSignalOutcome("sig-once", false, -2.5); err != nil {
		t.Fatalf("second outcome: %v", err)
	}
	again := e.Thresholds().State("AAPL")
	if again.ConsensusDelta != after.ConsensusDelta || again.SampleCount != after.SampleCount {
		t.Fatalf("repeat outcome must not re-apply the delta: %+v vs %+v", again, after)
	}
}

func TestUnknownOutcomeRejected(t *testing.T) {
	e := newEngine()
	if _, err := e.UpdateSignalOutcome("never-validated", true, 1.0); err == nil {
		t.Fatalf("outcome for unknown signal must error")
	}
}

func TestHighVolatilityRaisesThresholds(t *testing.T) {
	e := newEngine()
	cond := neutralCondition()
	cond.Volatility.Level = "high"

	eff := e.Thresholds().Effective("AAPL", cond, 3)
	base := e.Thresholds().Base()
	if !approx(eff.Consensus, base.Consensus+0.1) {
		t.Fatalf("high volatility must raise the consensus threshold by 0.1, got %v", eff.Consensus)
	}
	if !approx(eff.Strength, base.Strength+0.1) {
		t.Fatalf("high volatility must raise the strength threshold by 0.1, got %v", eff.Strength)
	}

	cond.Volume.Level = "low"
	eff = e.Thresholds().Effective("AAPL", cond, 3)
	if !approx(eff.Consensus, base.Consensus+0.15) {
		t.Fatalf("low volume must add 0.05 on top, got %v", eff.Consensus)
	}
}

func TestEffectiveAgreementClampedToTimeframeCount(t *testing.T) {
	e := newEngine()
	eff := e.Thresholds().Effective("AAPL", nil, 1)
	if eff.MinAgreement != 1 {
		t.Fatalf("minimum agreement must clamp to the timeframe count, got %d", eff.MinAgreement)
	}
}

func TestDecisionCacheServesRepeatDelivery(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	e := NewEngine(DefaultConfig(), mem, logger.Nop(), metrics.NewNop())

	ctx := context.Background()
	sig := buySignal("sig-cached")
	first := e.ValidateSignal(ctx, sig, bullishConsensus(0.9), neutralCondition())
	second := e.ValidateSignal(ctx, sig, nil, nil)
	if !second.Approved || second.Score != first.Score {
		t.Fatalf("repeat delivery must be served from the decision cache: %+v vs %+v", second, first)
	}
}

func TestWinRateDefaultsWithoutHistory(t *testing.T) {
	h := NewOutcomeHistory(20)
	if wr := h.WinRate("MSFT"); wr != 0.5 {
		t.Fatalf("empty history must default to 0.5, got %v", wr)
	}
}

func TestConditionScore(t *testing.T) {
	if s := ConditionScore(nil); s != 0.5 {
		t.Fatalf("nil condition must score 0.5, got %v", s)
	}
	if s := ConditionScore(neutralCondition()); !approx(s, 0.7) {
		t.Fatalf("neutral open-market condition must score 0.7, got %v", s)
	}

	worst := &models.MarketCondition{
		Volatility: models.ConditionLevel{Level: "high"},
		Volume:     models.ConditionLevel{Level: "low"},
	}
	if s := ConditionScore(worst); !approx(s, 0.05) {
		t.Fatalf("hostile closed-market condition must score 0.05, got %v", s)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
