package usecase

import (
	"context"
	"encoding/json"

	"TrendGate/internal/domain/repository"
	pkgkafka "TrendGate/pkg/kafka"
	"TrendGate/pkg/logger"
)

// OutcomeRecorder applies outcome feedback. Implemented by the validator
// orchestrator.
type OutcomeRecorder interface {
	UpdateSignalOutcome(ctx context.Context, signalID string, successful bool, pnl float64) error
}

// OutcomeHandler consumes outcome feedback messages from the execution
// collaborator and relays them into the adaptive threshold loop.
type OutcomeHandler struct {
	topic    string
	recorder OutcomeRecorder
	metrics  repository.Metrics
	log      *logger.Logger
}

// NewOutcomeHandler creates a Kafka handler for the outcome topic.
func NewOutcomeHandler(topic string, recorder OutcomeRecorder, m repository.Metrics, log *logger.Logger) *OutcomeHandler {
	return &OutcomeHandler{topic: topic, recorder: recorder, metrics: m, log: log}
}

func (h *OutcomeHandler) Topic() string { return h.topic }

// incoming message schema: {signal_id, successful, pnl}
func (h *OutcomeHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		SignalID   string  `json:"signal_id"`
		Successful bool    `json:"successful"`
		PnL        float64 `json:"pnl"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("outcome_unmarshal")
		return err
	}
	if err := h.recorder.UpdateSignalOutcome(ctx, m.SignalID, m.Successful, m.PnL); err != nil {
		// Unknown ids are expected when outcomes outlive the bookkeeping
		// window; log and drop rather than retry forever.
		h.log.Warn("outcome dropped",
			logger.String("signal_id", m.SignalID), logger.Error(err))
		h.metrics.RecordError("outcome_unknown")
		return nil
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*OutcomeHandler)(nil)
