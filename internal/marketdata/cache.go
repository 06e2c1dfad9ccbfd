// Package marketdata owns the per-(timeframe, symbol) bar cache feeding
// trend analysis. Fetches are deduplicated, cached copies expire on
// timeframe-specific validity windows, and streamed fragments merge into
// the cached series.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	"TrendGate/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Config controls cache behavior. Specs defines the active timeframes.
type Config struct {
	Specs           []models.TimeframeSpec
	Capacity        int
	EvictionPeriod  time.Duration
	Compression     bool
	SequentialFetch bool
}

// GetOptions modifies a single read.
type GetOptions struct {
	ForceRefresh bool
}

type entry struct {
	series    *models.TimeframeSeries // nil when compressed
	comp      *compressedSeries
	meta      models.SeriesMeta
	symbol    string
	timeframe models.Timeframe
	cachedAt  time.Time
	validity  time.Duration
	sizeBytes int
}

// estimated in-memory footprint of one bar
const barBytes = 48

// TimeframeCache caches bar series per (timeframe, symbol) with
// deduplicated fetching and background eviction.
type TimeframeCache struct {
	source  repository.BarSource
	cfg     Config
	log     *logger.Logger
	metrics repository.Metrics

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTimeframeCache creates a cache over the given bar source.
func NewTimeframeCache(source repository.BarSource, cfg Config, log *logger.Logger, m repository.Metrics) *TimeframeCache {
	if len(cfg.Specs) == 0 {
		cfg.Specs = models.DefaultTimeframeSpecs()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 500
	}
	if cfg.EvictionPeriod <= 0 {
		cfg.EvictionPeriod = time.Minute
	}
	return &TimeframeCache{
		source:  source,
		cfg:     cfg,
		log:     log,
		metrics: m,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
}

// Specs returns the configured timeframe set.
func (c *TimeframeCache) Specs() []models.TimeframeSpec { return c.cfg.Specs }

func (c *TimeframeCache) spec(tf models.Timeframe) (models.TimeframeSpec, bool) {
	for _, s := range c.cfg.Specs {
		if s.Timeframe == tf {
			return s, true
		}
	}
	return models.TimeframeSpec{}, false
}

func cacheKey(tf models.Timeframe, symbol string) string {
	return string(tf) + ":" + symbol
}

// Get returns a copy of the cached series for (tf, symbol), fetching from
// upstream when the cached copy is missing, expired, or a refresh is forced.
// Concurrent callers for the same key share a single in-flight fetch.
func (c *TimeframeCache) Get(ctx context.Context, tf models.Timeframe, symbol string, opts GetOptions) (*models.TimeframeSeries, error) {
	spec, ok := c.spec(tf)
	if !ok {
		return nil, fmt.Errorf("timeframe %s not configured", tf)
	}

	if !opts.ForceRefresh {
		if s := c.lookup(tf, symbol); s != nil {
			c.metrics.RecordCacheHit(string(tf))
			return s, nil
		}
	}
	c.metrics.RecordCacheMiss(string(tf))

	key := cacheKey(tf, symbol)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another flight may have landed while we queued.
		if !opts.ForceRefresh {
			if s := c.lookup(tf, symbol); s != nil {
				return s, nil
			}
		}
		return c.fetch(ctx, spec, symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.TimeframeSeries).Clone(), nil
}

// lookup returns a copy of a fresh cached series, or nil.
func (c *TimeframeCache) lookup(tf models.Timeframe, symbol string) *models.TimeframeSeries {
	c.mu.RLock()
	e, ok := c.entries[cacheKey(tf, symbol)]
	c.mu.RUnlock()
	if !ok || time.Since(e.cachedAt) >= e.validity {
		return nil
	}
	return c.materialize(e)
}

func (c *TimeframeCache) materialize(e *entry) *models.TimeframeSeries {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e.series != nil {
		return e.series.Clone()
	}
	return &models.TimeframeSeries{
		Symbol:    e.symbol,
		Timeframe: e.timeframe,
		Bars:      e.comp.decompress(),
		Meta:      e.meta,
	}
}

func (c *TimeframeCache) fetch(ctx context.Context, spec models.TimeframeSpec, symbol string) (*models.TimeframeSeries, error) {
	start := time.Now()
	res, err := c.source.FetchBars(ctx, symbol, spec.Timeframe, spec.BarLimit, time.Time{}, time.Time{})
	c.metrics.RecordFetchLatency(string(spec.Timeframe), time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError("fetch")
		return nil, err
	}

	if err := validateBars(symbol, spec.Timeframe, res.Bars); err != nil {
		c.metrics.RecordError("data_format")
		return nil, err
	}

	series := &models.TimeframeSeries{
		Symbol:    symbol,
		Timeframe: spec.Timeframe,
		Bars:      res.Bars,
		Meta: models.SeriesMeta{
			Source:    res.Source,
			Exchange:  res.Exchange,
			FetchedAt: time.Now(),
			BarCount:  len(res.Bars),
		},
	}
	c.store(series, spec)
	return series, nil
}

// validateBars rejects empty series and non-monotonic timestamps.
func validateBars(symbol string, tf models.Timeframe, bars []models.Bar) error {
	if len(bars) == 0 {
		return &models.DataFormatError{Symbol: symbol, Timeframe: tf, Reason: "empty bar array"}
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return &models.DataFormatError{
				Symbol:    symbol,
				Timeframe: tf,
				Reason:    fmt.Sprintf("non-monotonic timestamp at index %d", i),
			}
		}
	}
	return nil
}

func (c *TimeframeCache) store(series *models.TimeframeSeries, spec models.TimeframeSpec) {
	e := &entry{
		meta:      series.Meta,
		symbol:    series.Symbol,
		timeframe: series.Timeframe,
		cachedAt:  time.Now(),
		validity:  spec.Validity,
		sizeBytes: len(series.Bars) * barBytes,
	}
	if c.cfg.Compression {
		e.comp = compressBars(series.Bars)
	} else {
		e.series = series.Clone()
	}

	c.mu.Lock()
	c.entries[cacheKey(series.Timeframe, series.Symbol)] = e
	c.mu.Unlock()
}

// GetMulti fetches all configured timeframes for a symbol. Failed or missing
// timeframes map to nil; one timeframe's outage never fails the whole call.
// Fetches run concurrently unless SequentialFetch is set.
func (c *TimeframeCache) GetMulti(ctx context.Context, symbol string, opts GetOptions) map[models.Timeframe]*models.TimeframeSeries {
	out := make(map[models.Timeframe]*models.TimeframeSeries, len(c.cfg.Specs))

	if c.cfg.SequentialFetch {
		for _, spec := range c.cfg.Specs {
			out[spec.Timeframe] = c.getOrNil(ctx, spec.Timeframe, symbol, opts)
		}
		return out
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, spec := range c.cfg.Specs {
		wg.Add(1)
		go func(tf models.Timeframe) {
			defer wg.Done()
			s := c.getOrNil(ctx, tf, symbol, opts)
			mu.Lock()
			out[tf] = s
			mu.Unlock()
		}(spec.Timeframe)
	}
	wg.Wait()
	return out
}

func (c *TimeframeCache) getOrNil(ctx context.Context, tf models.Timeframe, symbol string, opts GetOptions) *models.TimeframeSeries {
	s, err := c.Get(ctx, tf, symbol, opts)
	if err != nil {
		c.log.Warn("timeframe fetch failed",
			logger.String("symbol", symbol),
			logger.String("timeframe", string(tf)),
			logger.Error(err))
		return nil
	}
	return s
}

// ApplyFragment merges a streamed bar fragment into the cached series.
// Bars with an existing timestamp replace in place; new timestamps append
// and the series re-sorts by time. Fragments for uncached keys are dropped.
func (c *TimeframeCache) ApplyFragment(frag *models.BarFragment) bool {
	if frag == nil || len(frag.Bars) == 0 {
		return false
	}
	key := cacheKey(frag.Timeframe, frag.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}

	var bars []models.Bar
	if e.series != nil {
		bars = e.series.Bars
	} else {
		bars = e.comp.decompress()
	}

	for _, nb := range frag.Bars {
		replaced := false
		for i := range bars {
			if bars[i].Time.Equal(nb.Time) {
				bars[i] = nb
				replaced = true
				break
			}
		}
		if !replaced {
			bars = append(bars, nb)
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	e.meta.BarCount = len(bars)
	e.sizeBytes = len(bars) * barBytes
	if e.series != nil {
		e.series.Bars = bars
	} else {
		e.comp = compressBars(bars)
	}
	return true
}

// Start launches the background eviction loop.
func (c *TimeframeCache) Start() {
	go func() {
		ticker := time.NewTicker(c.cfg.EvictionPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.evict()
			}
		}
	}()
}

// Stop halts background eviction. Safe to call more than once.
func (c *TimeframeCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evict removes entries older than 2x their validity window, then trims to
// capacity oldest-first by cachedAt.
func (c *TimeframeCache) evict() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if now.Sub(e.cachedAt) > 2*e.validity {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.cfg.Capacity {
		return
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, aged{key, e.cachedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for i := 0; i < len(all)-c.cfg.Capacity; i++ {
		delete(c.entries, all[i].key)
	}
}

// Len reports the number of cached entries.
func (c *TimeframeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
