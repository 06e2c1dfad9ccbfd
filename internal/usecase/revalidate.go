package usecase

import (
	"context"
	"fmt"

	"TrendGate/internal/domain/models"
	"TrendGate/pkg/logger"
	"TrendGate/pkg/queue"
)

// RevalidateType is the queue message type for deferred signals.
const RevalidateType = "signal.revalidate"

// SignalValidator revalidates a deferred signal. Implemented by the
// validator orchestrator.
type SignalValidator interface {
	RevalidateSignal(ctx context.Context, sig *models.Signal) *models.Decision
}

// RevalidateJob replays signals that were turned away at the admission
// gate once capacity frees up. A still-queued verdict returns an error so
// the queue reschedules the message.
type RevalidateJob struct {
	validator SignalValidator
	log       *logger.Logger
}

// NewRevalidateJob creates the deferred revalidation job.
func NewRevalidateJob(validator SignalValidator, log *logger.Logger) *RevalidateJob {
	return &RevalidateJob{validator: validator, log: log}
}

func (j *RevalidateJob) Name() string { return "revalidate-signal" }
func (j *RevalidateJob) Type() string { return RevalidateType }

func (j *RevalidateJob) Handle(ctx context.Context, payload interface{}) error {
	sig, err := queue.ParsePayload[models.Signal](payload)
	if err != nil {
		return err
	}

	d := j.validator.RevalidateSignal(ctx, sig)
	if d.Queued {
		return fmt.Errorf("validator still at capacity for %s", sig.ID)
	}

	j.log.Info("deferred signal revalidated",
		logger.String("signal_id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.Bool("approved", d.Approved))
	return nil
}

var _ queue.Job = (*RevalidateJob)(nil)
