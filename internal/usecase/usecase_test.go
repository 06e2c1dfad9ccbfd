package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/pkg/logger"
	"TrendGate/pkg/metrics"
)

type fakeRecorder struct {
	mu      sync.Mutex
	applied []string
	err     error
}

func (r *fakeRecorder) UpdateSignalOutcome(ctx context.Context, signalID string, successful bool, pnl float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.applied = append(r.applied, signalID)
	return nil
}

func TestOutcomeHandlerAppliesFeedback(t *testing.T) {
	rec := &fakeRecorder{}
	h := NewOutcomeHandler("outcomes", rec, metrics.NewNop(), logger.Nop())

	msg, _ := json.Marshal(map[string]interface{}{
		"signal_id":  "sig-1",
		"successful": true,
		"pnl":        12.5,
	})
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(rec.applied) != 1 || rec.applied[0] != "sig-1" {
		t.Fatalf("outcome not applied: %v", rec.applied)
	}
}

func TestOutcomeHandlerDropsUnknownSignals(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("unknown signal")}
	h := NewOutcomeHandler("outcomes", rec, metrics.NewNop(), logger.Nop())

	msg, _ := json.Marshal(map[string]string{"signal_id": "ghost"})
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("unknown signals must be dropped, got %v", err)
	}
}

func TestOutcomeHandlerRejectsMalformedPayload(t *testing.T) {
	h := NewOutcomeHandler("outcomes", &fakeRecorder{}, metrics.NewNop(), logger.Nop())
	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

type fakeValidator struct {
	queued bool
	calls  int
}

func (v *fakeValidator) RevalidateSignal(ctx context.Context, sig *models.Signal) *models.Decision {
	v.calls++
	return &models.Decision{
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Approved:    !v.queued,
		Queued:      v.queued,
		ValidatedAt: time.Now(),
	}
}

func TestRevalidateJobCompletesOnAdmission(t *testing.T) {
	v := &fakeValidator{}
	job := NewRevalidateJob(v, logger.Nop())

	sig := &models.Signal{ID: "sig-9", Symbol: "AAPL", Type: models.SignalBuy, Strength: 0.8, Timestamp: time.Now()}
	payload, _ := json.Marshal(sig)

	if err := job.Handle(context.Background(), json.RawMessage(payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if v.calls != 1 {
		t.Fatalf("validator called %d times", v.calls)
	}
}

func TestRevalidateJobErrsWhileStillAtCapacity(t *testing.T) {
	job := NewRevalidateJob(&fakeValidator{queued: true}, logger.Nop())

	sig := &models.Signal{ID: "sig-9", Symbol: "AAPL"}
	payload, _ := json.Marshal(sig)

	if err := job.Handle(context.Background(), json.RawMessage(payload)); err == nil {
		t.Fatalf("expected error so the queue reschedules")
	}
}
