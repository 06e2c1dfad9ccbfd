package decision

import (
	"sync"
	"time"

	"TrendGate/internal/domain/models"
)

// outcomeRecord tracks what is known about one validated signal.
type outcomeRecord struct {
	symbol       string
	successful   bool
	pnl          float64
	recorded     bool
	deltaApplied bool
	validatedAt  time.Time
	recordedAt   time.Time
}

// OutcomeHistory keeps per-signal outcome records and a per-symbol trailing
// win rate. Records are registered at validation time and completed by
// outcome feedback.
type OutcomeHistory struct {
	window int

	mu       sync.RWMutex
	bySignal map[string]*outcomeRecord
	bySymbol map[string][]*outcomeRecord
}

// NewOutcomeHistory creates a history with the given trailing window size.
func NewOutcomeHistory(window int) *OutcomeHistory {
	if window <= 0 {
		window = 20
	}
	return &OutcomeHistory{
		window:   window,
		bySignal: make(map[string]*outcomeRecord),
		bySymbol: make(map[string][]*outcomeRecord),
	}
}

// Register remembers a validated signal so a later outcome can find it.
func (h *OutcomeHistory) Register(signalID, symbol string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bySignal[signalID]; exists {
		return
	}
	h.bySignal[signalID] = &outcomeRecord{symbol: symbol, validatedAt: at}
}

// Record stores the outcome for a signal and returns the symbol it was
// validated for. first reports whether this is the initial outcome for the
// id; repeat calls update the record but return first=false so threshold
// deltas are applied exactly once.
func (h *OutcomeHistory) Record(o *models.Outcome) (symbol string, first bool, found bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.bySignal[o.SignalID]
	if !ok {
		return "", false, false
	}
	rec.successful = o.Successful
	rec.pnl = o.PnL
	rec.recordedAt = o.RecordedAt

	if !rec.recorded {
		rec.recorded = true
		recs := append(h.bySymbol[rec.symbol], rec)
		if len(recs) > h.window*2 {
			recs = recs[len(recs)-h.window:]
		}
		h.bySymbol[rec.symbol] = recs
	}
	if rec.deltaApplied {
		return rec.symbol, false, true
	}
	rec.deltaApplied = true
	return rec.symbol, true, true
}

// WinRate returns the trailing success ratio over the last window outcomes
// for a symbol, defaulting to 0.5 with no history.
func (h *OutcomeHistory) WinRate(symbol string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	recs := h.bySymbol[symbol]
	if len(recs) == 0 {
		return 0.5
	}
	if len(recs) > h.window {
		recs = recs[len(recs)-h.window:]
	}
	wins := 0
	for _, r := range recs {
		if r.successful {
			wins++
		}
	}
	return float64(wins) / float64(len(recs))
}

// Cleanup drops signal records validated before the cutoff that never
// received an outcome.
func (h *OutcomeHistory) Cleanup(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, rec := range h.bySignal {
		if !rec.recorded && rec.validatedAt.Before(cutoff) {
			delete(h.bySignal, id)
			removed++
		}
	}
	return removed
}

// Reset clears all records.
func (h *OutcomeHistory) Reset() {
	h.mu.Lock()
	h.bySignal = make(map[string]*outcomeRecord)
	h.bySymbol = make(map[string][]*outcomeRecord)
	h.mu.Unlock()
}
