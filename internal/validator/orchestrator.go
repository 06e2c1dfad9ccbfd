// Package validator is the public entry point of the validation pipeline.
// The orchestrator sequences data fetch, trend analysis, and decision
// making, enforces the concurrency ceiling, and runs the periodic refresh
// and cleanup loops.
package validator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TrendGate/internal/decision"
	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	"TrendGate/internal/marketdata"
	"TrendGate/internal/service/ratelimit"
	"TrendGate/internal/trend"
	"TrendGate/pkg/logger"

	"golang.org/x/sync/semaphore"
)

// Config holds orchestrator settings.
type Config struct {
	MaxConcurrent     int
	RefreshInterval   time.Duration
	RefreshBatch      int
	RefreshRatePerSec float64
	CleanupInterval   time.Duration
	StaleAfter        time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     10,
		RefreshInterval:   time.Minute,
		RefreshBatch:      10,
		RefreshRatePerSec: 2,
		CleanupInterval:   5 * time.Minute,
		StaleAfter:        30 * time.Minute,
	}
}

// BatchSummary aggregates a batch validation run.
type BatchSummary struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Errored  int `json:"errored"`
	Queued   int `json:"queued"`
}

// BatchResult pairs per-signal decisions with the batch summary. Decisions
// are ordered like the input signals.
type BatchResult struct {
	Decisions []*models.Decision `json:"decisions"`
	Summary   BatchSummary       `json:"summary"`
}

// Orchestrator drives the full validation pipeline.
type Orchestrator struct {
	cfg        Config
	cache      *marketdata.TimeframeCache
	analyzer   *trend.Analyzer
	engine     *decision.Engine
	conditions repository.ConditionSource
	sink       repository.DecisionSink
	store      repository.DecisionStore
	limiter    *ratelimit.Limiter
	log        *logger.Logger
	deferral   func(*models.Signal)

	sem *semaphore.Weighted

	mu         sync.Mutex
	subscribed map[string]time.Time
	inflight   map[string]time.Time
	observers  []Observer

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithConditionSource wires the market-condition collaborator.
func WithConditionSource(src repository.ConditionSource) Option {
	return func(o *Orchestrator) { o.conditions = src }
}

// WithDecisionSink wires the execution collaborator decisions are
// forwarded to.
func WithDecisionSink(sink repository.DecisionSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithDecisionStore wires the decision history store.
func WithDecisionStore(store repository.DecisionStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithDeferral wires a callback invoked for signals turned away at the
// admission gate, so they can be requeued for later revalidation.
func WithDeferral(fn func(*models.Signal)) Option {
	return func(o *Orchestrator) { o.deferral = fn }
}

// New creates an orchestrator over its pipeline components.
func New(cfg Config, cache *marketdata.TimeframeCache, analyzer *trend.Analyzer, engine *decision.Engine, log *logger.Logger, opts ...Option) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.RefreshBatch <= 0 {
		cfg.RefreshBatch = 10
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}

	o := &Orchestrator{
		cfg:        cfg,
		cache:      cache,
		analyzer:   analyzer,
		engine:     engine,
		limiter:    ratelimit.New(),
		log:        log,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		subscribed: make(map[string]time.Time),
		inflight:   make(map[string]time.Time),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AddObserver registers an event observer.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.mu.Lock()
	o.observers = append(o.observers, obs)
	o.mu.Unlock()
}

// ValidateSignal runs one full validation. It never returns an error or
// panics: capacity exhaustion yields a queued decision and unexpected
// failures yield an errored one.
func (o *Orchestrator) ValidateSignal(ctx context.Context, sig *models.Signal) (d *models.Decision) {
	return o.admit(ctx, sig, true)
}

// RevalidateSignal replays a previously deferred signal. On capacity
// exhaustion it returns a queued decision without deferring again; the
// caller owns the retry schedule.
func (o *Orchestrator) RevalidateSignal(ctx context.Context, sig *models.Signal) (d *models.Decision) {
	return o.admit(ctx, sig, false)
}

func (o *Orchestrator) admit(ctx context.Context, sig *models.Signal, allowDefer bool) (d *models.Decision) {
	if !o.sem.TryAcquire(1) {
		if allowDefer && o.deferral != nil {
			o.deferral(sig)
		}
		return o.queuedDecision(sig)
	}
	defer o.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("validation panicked",
				logger.String("signal_id", signalID(sig)),
				logger.Any("panic", r))
			d = o.erroredDecision(sig, fmt.Errorf("panic: %v", r))
		}
	}()

	return o.validate(ctx, sig)
}

func (o *Orchestrator) validate(ctx context.Context, sig *models.Signal) *models.Decision {
	if sig == nil {
		return o.erroredDecision(nil, fmt.Errorf("nil signal"))
	}
	o.trackInflight(sig.ID)

	// A cheap pre-check avoids the data fetch for signals that cannot pass.
	if err := o.engine.QuickCheck(sig); err != nil {
		d := o.engine.ValidateSignal(ctx, sig, nil, nil)
		o.finish(ctx, sig, d)
		return d
	}

	data := o.cache.GetMulti(ctx, sig.Symbol, marketdata.GetOptions{})
	if allNil(data) {
		return o.erroredDecision(sig, fmt.Errorf("market data unavailable for %s", sig.Symbol))
	}

	consensus := o.analyzer.Analyze(sig.Symbol, o.cache.Specs(), data)
	cond := o.condition(ctx, sig.Symbol)

	d := o.engine.ValidateSignal(ctx, sig, consensus, cond)
	o.finish(ctx, sig, d)
	return d
}

func (o *Orchestrator) finish(ctx context.Context, sig *models.Signal, d *models.Decision) {
	o.clearInflight(sig.ID)

	if o.sink != nil {
		if err := o.sink.Publish(ctx, d); err != nil {
			o.log.Warn("decision publish failed",
				logger.String("signal_id", d.SignalID), logger.Error(err))
		}
	}
	if o.store != nil {
		if err := o.store.StoreDecision(ctx, d); err != nil {
			o.log.Warn("decision store failed",
				logger.String("signal_id", d.SignalID), logger.Error(err))
		}
	}
	o.notify(func(obs Observer) { obs.OnSignalValidated(SignalValidatedEvent{Signal: sig, Decision: d}) })
}

// BatchValidate validates all signals concurrently and aggregates a
// summary. One signal's failure never aborts the rest of the batch.
func (o *Orchestrator) BatchValidate(ctx context.Context, signals []*models.Signal) *BatchResult {
	res := &BatchResult{Decisions: make([]*models.Decision, len(signals))}

	var wg sync.WaitGroup
	for i, sig := range signals {
		wg.Add(1)
		go func(i int, sig *models.Signal) {
			defer wg.Done()
			res.Decisions[i] = o.ValidateSignal(ctx, sig)
		}(i, sig)
	}
	wg.Wait()

	res.Summary.Total = len(signals)
	for _, d := range res.Decisions {
		switch {
		case d.Errored:
			res.Summary.Errored++
		case d.Queued:
			res.Summary.Queued++
		case d.Approved:
			res.Summary.Approved++
		default:
			res.Summary.Rejected++
		}
	}
	return res
}

// QuickValidate is a cheap pre-filter without any data fetch.
func (o *Orchestrator) QuickValidate(sig *models.Signal) (bool, string) {
	if err := o.engine.QuickCheck(sig); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// GetTrendAlignment analyzes the symbol's current trends. With no explicit
// timeframes the full configured set is used.
func (o *Orchestrator) GetTrendAlignment(ctx context.Context, symbol string, timeframes ...models.Timeframe) (*models.Consensus, error) {
	specs := o.cache.Specs()
	if len(timeframes) > 0 {
		want := make(map[models.Timeframe]bool, len(timeframes))
		for _, tf := range timeframes {
			want[tf] = true
		}
		filtered := specs[:0:0]
		for _, s := range specs {
			if want[s.Timeframe] {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			return nil, fmt.Errorf("no configured timeframe matches %v", timeframes)
		}
		specs = filtered
	}

	data := make(map[models.Timeframe]*models.TimeframeSeries, len(specs))
	for _, s := range specs {
		series, err := o.cache.Get(ctx, s.Timeframe, symbol, marketdata.GetOptions{})
		if err != nil {
			o.log.Warn("trend alignment fetch failed",
				logger.String("symbol", symbol),
				logger.String("timeframe", string(s.Timeframe)),
				logger.Error(err))
			series = nil
		}
		data[s.Timeframe] = series
	}
	return o.analyzer.Analyze(symbol, specs, data), nil
}

// Subscribe adds symbols to the periodic refresh rotation.
func (o *Orchestrator) Subscribe(symbols []string) {
	now := time.Now()
	o.mu.Lock()
	for _, s := range symbols {
		if s != "" {
			o.subscribed[s] = now
		}
	}
	o.mu.Unlock()
}

// Unsubscribe removes symbols from the refresh rotation.
func (o *Orchestrator) Unsubscribe(symbols []string) {
	o.mu.Lock()
	for _, s := range symbols {
		delete(o.subscribed, s)
	}
	o.mu.Unlock()
}

// Subscribed returns the currently subscribed symbols.
func (o *Orchestrator) Subscribed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.subscribed))
	for s := range o.subscribed {
		out = append(out, s)
	}
	return out
}

// UpdateSignalOutcome relays outcome feedback to the decision engine and
// persists it when a store is wired.
func (o *Orchestrator) UpdateSignalOutcome(ctx context.Context, signalID string, successful bool, pnl float64) error {
	symbol, err := o.engine.UpdateSignalOutcome(signalID, successful, pnl)
	if err != nil {
		return err
	}
	if o.store != nil {
		outcome := &models.Outcome{
			SignalID:   signalID,
			Symbol:     symbol,
			Successful: successful,
			PnL:        pnl,
			RecordedAt: time.Now(),
		}
		if err := o.store.StoreOutcome(ctx, outcome); err != nil {
			o.log.Warn("outcome store failed",
				logger.String("signal_id", signalID), logger.Error(err))
		}
	}
	return nil
}

// HandleFragment merges a streamed bar fragment into the cache and emits a
// data-update event when the merge lands.
func (o *Orchestrator) HandleFragment(frag *models.BarFragment) bool {
	if !o.cache.ApplyFragment(frag) {
		return false
	}
	o.notify(func(obs Observer) {
		obs.OnDataUpdate(DataUpdateEvent{
			Symbol:    frag.Symbol,
			Timeframe: frag.Timeframe,
			BarCount:  len(frag.Bars),
			At:        time.Now(),
		})
	})
	return true
}

// Start launches the cache eviction, periodic refresh and cleanup loops.
func (o *Orchestrator) Start() {
	o.cache.Start()
	o.wg.Add(2)
	go o.refreshLoop()
	go o.cleanupLoop()
}

func (o *Orchestrator) refreshLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.refreshCycle()
		}
	}
}

// refreshCycle re-analyzes a bounded slice of subscribed symbols,
// rate-limited to protect the upstream.
func (o *Orchestrator) refreshCycle() {
	symbols := o.Subscribed()
	if len(symbols) > o.cfg.RefreshBatch {
		symbols = symbols[:o.cfg.RefreshBatch]
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RefreshInterval)
	defer cancel()

	refreshed := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if !o.limiter.Allow("refresh", float64(o.cfg.RefreshBatch), o.cfg.RefreshRatePerSec) {
			break
		}
		data := o.cache.GetMulti(ctx, symbol, marketdata.GetOptions{ForceRefresh: true})
		if allNil(data) {
			continue
		}
		o.analyzer.Analyze(symbol, o.cache.Specs(), data)
		refreshed = append(refreshed, symbol)
	}
	if len(refreshed) == 0 {
		return
	}
	o.notify(func(obs Observer) {
		obs.OnPeriodicUpdate(PeriodicUpdateEvent{Symbols: refreshed, At: time.Now()})
	})
}

func (o *Orchestrator) cleanupLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.cleanup()
		}
	}
}

// cleanup evicts stale in-flight bookkeeping and unresolved outcome
// records older than the staleness window.
func (o *Orchestrator) cleanup() {
	cutoff := time.Now().Add(-o.cfg.StaleAfter)

	o.mu.Lock()
	for id, at := range o.inflight {
		if at.Before(cutoff) {
			delete(o.inflight, id)
		}
	}
	o.mu.Unlock()

	if n := o.engine.History().Cleanup(cutoff); n > 0 {
		o.log.Debug("stale validation records removed", logger.Int("count", n))
	}
}

// Shutdown stops background loops and clears all orchestrator state.
func (o *Orchestrator) Shutdown() {
	o.stopOnce.Do(func() { close(o.stop) })
	o.wg.Wait()
	o.cache.Stop()

	o.mu.Lock()
	o.subscribed = make(map[string]time.Time)
	o.inflight = make(map[string]time.Time)
	o.observers = nil
	o.mu.Unlock()

	o.analyzer.Reset()
	o.limiter.Reset()

	if o.sink != nil {
		if err := o.sink.Close(); err != nil {
			o.log.Warn("decision sink close failed", logger.Error(err))
		}
	}
}

func (o *Orchestrator) condition(ctx context.Context, symbol string) *models.MarketCondition {
	if o.conditions == nil {
		return nil
	}
	cond, err := o.conditions.Condition(ctx, symbol)
	if err != nil {
		o.log.Warn("market condition lookup failed",
			logger.String("symbol", symbol), logger.Error(err))
		return nil
	}
	return cond
}

func (o *Orchestrator) queuedDecision(sig *models.Signal) *models.Decision {
	d := &models.Decision{
		Queued:      true,
		Reason:      "validation capacity reached, signal queued",
		ValidatedAt: time.Now(),
	}
	if sig != nil {
		d.SignalID = sig.ID
		d.Symbol = sig.Symbol
	}
	return d
}

func (o *Orchestrator) erroredDecision(sig *models.Signal, err error) *models.Decision {
	d := &models.Decision{
		Errored:     true,
		Reason:      err.Error(),
		ValidatedAt: time.Now(),
	}
	if sig != nil {
		d.SignalID = sig.ID
		d.Symbol = sig.Symbol
		o.clearInflight(sig.ID)
	}
	return d
}

func (o *Orchestrator) trackInflight(id string) {
	if id == "" {
		return
	}
	o.mu.Lock()
	o.inflight[id] = time.Now()
	o.mu.Unlock()
}

func (o *Orchestrator) clearInflight(id string) {
	if id == "" {
		return
	}
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) notify(fn func(Observer)) {
	o.mu.Lock()
	obs := make([]Observer, len(o.observers))
	copy(obs, o.observers)
	o.mu.Unlock()
	for _, ob := range obs {
		fn(ob)
	}
}

func allNil(data map[models.Timeframe]*models.TimeframeSeries) bool {
	for _, s := range data {
		if s != nil {
			return false
		}
	}
	return true
}

func signalID(sig *models.Signal) string {
	if sig == nil {
		return ""
	}
	return sig.ID
}
