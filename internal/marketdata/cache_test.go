package marketdata

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/pkg/logger"
	"TrendGate/pkg/metrics"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int32
	delay   time.Duration
	failTFs map[models.Timeframe]error
	bars    func(symbol string, tf models.Timeframe, limit int) []models.Bar
}

func (f *fakeSource) FetchBars(ctx context.Context, symbol string, tf models.Timeframe, limit int, from, to time.Time) (models.FetchResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	err := f.failTFs[tf]
	f.mu.Unlock()
	if err != nil {
		return models.FetchResult{}, err
	}
	gen := f.bars
	if gen == nil {
		gen = defaultBars
	}
	return models.FetchResult{Bars: gen(symbol, tf, limit), Source: "fake", Exchange: "test"}, nil
}

func defaultBars(_ string, _ models.Timeframe, limit int) []models.Bar {
	if limit <= 0 {
		limit = 60
	}
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, limit)
	for i := range bars {
		price := 100 + float64(i)*0.25
		bars[i] = models.Bar{
			Time:   base.Add(time.Duration(i) * time.Minute),
			Open:   price,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price + 0.1,
			Volume: 1000,
		}
	}
	return bars
}

func testSpecs() []models.TimeframeSpec {
	return []models.TimeframeSpec{
		{Timeframe: models.TF15m, Weight: 0.25, Validity: 5 * time.Minute, BarLimit: 60},
		{Timeframe: models.TF1h, Weight: 0.35, Validity: 15 * time.Minute, BarLimit: 60},
		{Timeframe: models.TF4h, Weight: 0.40, Validity: time.Hour, BarLimit: 60},
	}
}

func newTestCache(src *fakeSource, compression bool) *TimeframeCache {
	return NewTimeframeCache(src, Config{
		Specs:       testSpecs(),
		Capacity:    10,
		Compression: compression,
	}, logger.Nop(), metrics.NewNop())
}

func TestGetCachesSecondRead(t *testing.T) {
	src := &fakeSource{}
	c := newTestCache(src, false)

	ctx := context.Background()
	if _, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := atomic.LoadInt32(&src.calls); n != 1 {
		t.Fatalf("expected 1 upstream fetch, got %d", n)
	}
}

func TestConcurrentGetsDeduplicate(t *testing.T) {
	src := &fakeSource{delay: 50 * time.Millisecond}
	c := newTestCache(src, false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), models.TF1h, "AAPL", GetOptions{}); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&src.calls); n != 1 {
		t.Fatalf("concurrent gets must share one fetch, got %d", n)
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	src := &fakeSource{}
	c := newTestCache(src, false)

	ctx := context.Background()
	if _, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{ForceRefresh: true}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := atomic.LoadInt32(&src.calls); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

func TestCallerCannotMutateCachedState(t *testing.T) {
	src := &fakeSource{}
	c := newTestCache(src, false)

	ctx := context.Background()
	s1, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	s1.Bars[0].Close = -999

	s2, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s2.Bars[0].Close == -999 {
		t.Fatalf("cached state was mutated through a returned copy")
	}
}

func TestGetMultiPartialFailure(t *testing.T) {
	src := &fakeSource{failTFs: map[models.Timeframe]error{
		models.TF4h: errors.New("upstream down"),
	}}
	c := newTestCache(src, false)

	out := c.GetMulti(context.Background(), "AAPL", GetOptions{})
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if out[models.TF4h] != nil {
		t.Fatalf("failed timeframe must map to nil")
	}
	if out[models.TF15m] == nil || out[models.TF1h] == nil {
		t.Fatalf("healthy timeframes must still return data")
	}
}

func TestMalformedBarsNotCached(t *testing.T) {
	src := &fakeSource{bars: func(string, models.Timeframe, int) []models.Bar {
		ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		return []models.Bar{
			{Time: ts, Close: 1},
			{Time: ts, Close: 2}, // duplicate timestamp
		}
	}}
	c := newTestCache(src, false)

	_, err := c.Get(context.Background(), models.TF1h, "AAPL", GetOptions{})
	var dfe *models.DataFormatError
	if !errors.As(err, &dfe) {
		t.Fatalf("expected DataFormatError, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("malformed response must not be cached")
	}
}

func TestApplyFragmentReplaceAndAppend(t *testing.T) {
	src := &fakeSource{}
	c := newTestCache(src, false)

	ctx := context.Background()
	s, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	last := s.Bars[len(s.Bars)-1]

	replaced := models.Bar{Time: last.Time, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 42}
	appended := models.Bar{Time: last.Time.Add(time.Minute), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 7}
	if !c.ApplyFragment(&models.BarFragment{
		Symbol:    "AAPL",
		Timeframe: models.TF1h,
		Bars:      []models.Bar{replaced, appended},
	}) {
		t.Fatalf("fragment for cached key must merge")
	}

	s2, err := c.Get(ctx, models.TF1h, "AAPL", GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(s2.Bars) != len(s.Bars)+1 {
		t.Fatalf("expected one appended bar, got %d vs %d", len(s2.Bars), len(s.Bars))
	}
	got := s2.Bars[len(s2.Bars)-2]
	if got.Volume != 42 {
		t.Fatalf("bar with matching timestamp must be replaced, got %+v", got)
	}
	for i := 1; i < len(s2.Bars); i++ {
		if !s2.Bars[i].Time.After(s2.Bars[i-1].Time) {
			t.Fatalf("series must stay sorted after merge")
		}
	}
}

func TestApplyFragmentUncachedKeyDropped(t *testing.T) {
	c := newTestCache(&fakeSource{}, false)
	ok := c.ApplyFragment(&models.BarFragment{
		Symbol:    "MSFT",
		Timeframe: models.TF1h,
		Bars:      []models.Bar{{Time: time.Now(), Close: 1}},
	})
	if ok {
		t.Fatalf("fragments for uncached keys must be dropped")
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	bars := defaultBars("AAPL", models.TF1h, 80)
	out := compressBars(bars).decompress()
	if len(out) != len(bars) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(bars))
	}
	for i := range bars {
		if !out[i].Time.Equal(bars[i].Time) {
			t.Fatalf("time mismatch at %d", i)
		}
		for _, pair := range [][2]float64{
			{out[i].Open, bars[i].Open},
			{out[i].High, bars[i].High},
			{out[i].Low, bars[i].Low},
			{out[i].Close, bars[i].Close},
		} {
			if math.Abs(pair[0]-pair[1]) > 0.0001 {
				t.Fatalf("round-trip drift at %d: %v vs %v", i, pair[0], pair[1])
			}
		}
		if out[i].Volume != bars[i].Volume {
			t.Fatalf("volume mismatch at %d", i)
		}
	}
}

func TestCompressedCacheServesIdenticalSeries(t *testing.T) {
	src := &fakeSource{}
	plain := newTestCache(src, false)
	comp := newTestCache(src, true)

	ctx := context.Background()
	a, err := plain.Get(ctx, models.TF1h, "AAPL", GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := comp.Get(ctx, models.TF1h, "AAPL", GetOptions{ForceRefresh: true}); err != nil {
		t.Fatalf("get: %v", err)
	}
	// the first read is served from the fetch itself; read again to hit
	// the compressed entry
	b, err := comp.Get(ctx, models.TF1h, "AAPL", GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(a.Bars) != len(b.Bars) {
		t.Fatalf("length mismatch")
	}
	for i := range a.Bars {
		if math.Abs(a.Bars[i].Close-b.Bars[i].Close) > 0.0001 {
			t.Fatalf("close drift at %d", i)
		}
	}
}

func TestEvictExpiredAndTrim(t *testing.T) {
	src := &fakeSource{}
	c := NewTimeframeCache(src, Config{
		Specs:    testSpecs(),
		Capacity: 2,
	}, logger.Nop(), metrics.NewNop())

	ctx := context.Background()
	for _, sym := range []string{"A", "B", "C", "D"} {
		if _, err := c.Get(ctx, models.TF1h, sym, GetOptions{}); err != nil {
			t.Fatalf("get %s: %v", sym, err)
		}
	}
	if c.Len() != 4 {
		t.Fatalf("expected 4 entries before eviction, got %d", c.Len())
	}
	c.evict()
	if c.Len() != 2 {
		t.Fatalf("expected trim to capacity 2, got %d", c.Len())
	}

	// Age every entry beyond 2x validity and confirm full expiry.
	c.mu.Lock()
	for _, e := range c.entries {
		e.cachedAt = time.Now().Add(-3 * e.validity)
	}
	c.mu.Unlock()
	c.evict()
	if c.Len() != 0 {
		t.Fatalf("expected all expired entries removed, got %d", c.Len())
	}
}
