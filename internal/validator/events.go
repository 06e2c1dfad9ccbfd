package validator

import (
	"time"

	"TrendGate/internal/domain/models"
)

// DataUpdateEvent fires when a streamed fragment merges into the bar cache.
type DataUpdateEvent struct {
	Symbol    string
	Timeframe models.Timeframe
	BarCount  int
	At        time.Time
}

// PeriodicUpdateEvent fires after a background refresh cycle.
type PeriodicUpdateEvent struct {
	Symbols []string
	At      time.Time
}

// SignalValidatedEvent fires after every validation, approved or not.
type SignalValidatedEvent struct {
	Signal   *models.Signal
	Decision *models.Decision
}

// Observer receives orchestrator events. Callbacks run on the orchestrator's
// goroutines and must not block.
type Observer interface {
	OnDataUpdate(ev DataUpdateEvent)
	OnPeriodicUpdate(ev PeriodicUpdateEvent)
	OnSignalValidated(ev SignalValidatedEvent)
}
