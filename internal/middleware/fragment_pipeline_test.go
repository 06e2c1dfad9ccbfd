package middleware

import (
	"sync"
	"testing"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/pkg/metrics"
)

type countingMerger struct {
	mu    sync.Mutex
	frags []*models.BarFragment
}

func (m *countingMerger) HandleFragment(frag *models.BarFragment) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frags = append(m.frags, frag)
	return true
}

func (m *countingMerger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frags)
}

func validFrag(symbol string) *models.BarFragment {
	return &models.BarFragment{
		Symbol:    symbol,
		Timeframe: models.TF15m,
		Bars:      []models.Bar{{Time: time.Now(), Close: 101, Volume: 10}},
	}
}

func TestPipelineForwardsValidFragments(t *testing.T) {
	merger := &countingMerger{}
	p := NewFragmentPipeline(merger, metrics.NewNop())
	p.Start()
	defer p.Stop()

	if !p.HandleFragment(validFrag("AAPL")) {
		t.Fatalf("valid fragment rejected")
	}

	deadline := time.Now().Add(time.Second)
	for merger.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("fragment never reached merger")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipelineRejectsMalformedFragments(t *testing.T) {
	p := NewFragmentPipeline(&countingMerger{}, metrics.NewNop())

	cases := []*models.BarFragment{
		nil,
		{Timeframe: models.TF15m, Bars: []models.Bar{{Time: time.Now()}}},
		{Symbol: "AAPL", Bars: []models.Bar{{Time: time.Now()}}},
		{Symbol: "AAPL", Timeframe: models.TF15m},
		{Symbol: "AAPL", Timeframe: models.TF15m, Bars: []models.Bar{{}}},
		{Symbol: "AAPL", Timeframe: models.TF15m, Bars: []models.Bar{{Time: time.Now(), Volume: -1}}},
	}
	for i, frag := range cases {
		if p.HandleFragment(frag) {
			t.Fatalf("case %d: malformed fragment accepted", i)
		}
	}
}

func TestPipelineThrottlesPerKey(t *testing.T) {
	p := NewFragmentPipeline(&countingMerger{}, metrics.NewNop(), WithMaxPerSec(1))

	if !p.HandleFragment(validFrag("AAPL")) {
		t.Fatalf("first fragment rejected")
	}
	if p.HandleFragment(validFrag("AAPL")) {
		t.Fatalf("second fragment within the window should be throttled")
	}
	// A different key has its own bucket.
	if !p.HandleFragment(validFrag("MSFT")) {
		t.Fatalf("different symbol throttled by unrelated key")
	}
}

func TestPipelineDropsOnFullBuffer(t *testing.T) {
	p := NewFragmentPipeline(&countingMerger{}, metrics.NewNop(), WithBufferSize(1))
	// Worker not started; the second enqueue must overflow.
	p.maxPerSec = 0

	if !p.HandleFragment(validFrag("AAPL")) {
		t.Fatalf("first fragment rejected")
	}
	if p.HandleFragment(validFrag("AAPL")) {
		t.Fatalf("overflowing fragment accepted")
	}
}
