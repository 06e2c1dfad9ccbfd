package repository

import (
	"context"
	"time"

	"TrendGate/internal/domain/models"
)

// BarSource fetches historical bars from the market-data collaborator.
// Implementations must return a typed error on non-2xx or malformed
// payloads, never synthetic data.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, tf models.Timeframe, limit int, from, to time.Time) (models.FetchResult, error)
}

// BarStream is the streaming collaborator pushing real-time bar fragments.
// Reconnection policy and authentication are owned by the transport layer.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan *models.BarFragment, <-chan error)
	Close() error
	IsConnected() bool
}

// ConditionSource supplies the externally computed market condition used by
// the decision engine's condition factor. Implementations may return nil
// when no assessment is available.
type ConditionSource interface {
	Condition(ctx context.Context, symbol string) (*models.MarketCondition, error)
}

// DecisionSink forwards validated decisions to the execution collaborator.
type DecisionSink interface {
	Publish(ctx context.Context, d *models.Decision) error
	Close() error
}

// DecisionStore persists validation history and recorded outcomes.
type DecisionStore interface {
	Init(ctx context.Context) error
	StoreDecision(ctx context.Context, d *models.Decision) error
	StoreOutcome(ctx context.Context, o *models.Outcome) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational counters for the validation pipeline.
type Metrics interface {
	RecordValidation(verdict string)
	RecordCacheHit(tf string)
	RecordCacheMiss(tf string)
	RecordFetchLatency(tf string, seconds float64)
	RecordError(kind string)
}
