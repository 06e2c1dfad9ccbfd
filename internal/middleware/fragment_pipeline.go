// Package middleware sits between the websocket stream and the bar cache.
package middleware

import (
	"fmt"
	"sync"
	"time"

	"TrendGate/internal/domain/models"
	domrepo "TrendGate/internal/domain/repository"
)

// Merger is the downstream that absorbs validated fragments.
type Merger interface {
	HandleFragment(frag *models.BarFragment) bool
}

// FragmentPipeline validates and throttles streamed fragments, then hands
// them to the merger on a worker goroutine so the stream read loop never
// blocks on cache locks.
type FragmentPipeline struct {
	merger  Merger
	metrics domrepo.Metrics

	maxPerSec int
	bufCh     chan *models.BarFragment
	stopCh    chan struct{}
	started   bool
	mu        sync.Mutex
	lastSeen  map[string]time.Time
}

type PipelineOption func(*FragmentPipeline)

// WithMaxPerSec caps accepted fragments per second per symbol/timeframe key.
func WithMaxPerSec(n int) PipelineOption {
	return func(p *FragmentPipeline) {
		if n > 0 {
			p.maxPerSec = n
		}
	}
}

// WithBufferSize sets the handoff buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *FragmentPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.BarFragment, n)
		}
	}
}

// NewFragmentPipeline creates a pipeline in front of the given merger.
func NewFragmentPipeline(merger Merger, metrics domrepo.Metrics, opts ...PipelineOption) *FragmentPipeline {
	p := &FragmentPipeline{
		merger:    merger,
		metrics:   metrics,
		maxPerSec: 20,
		bufCh:     make(chan *models.BarFragment, 1000),
		stopCh:    make(chan struct{}),
		lastSeen:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the merge worker.
func (p *FragmentPipeline) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-p.stopCh:
				return
			case frag := <-p.bufCh:
				if frag == nil {
					continue
				}
				if !p.merger.HandleFragment(frag) {
					p.metrics.RecordError("fragment_uncached")
				}
			}
		}
	}()
}

// Stop stops the merge worker. Buffered fragments are discarded.
func (p *FragmentPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// HandleFragment validates and enqueues one fragment. Returns false when
// the fragment is rejected or the buffer is full.
func (p *FragmentPipeline) HandleFragment(frag *models.BarFragment) bool {
	if err := validateFragment(frag); err != nil {
		p.metrics.RecordError("fragment_invalid")
		return false
	}
	if !p.allow(string(frag.Timeframe)+":"+frag.Symbol, time.Now()) {
		p.metrics.RecordError("fragment_throttled")
		return false
	}

	select {
	case p.bufCh <- frag:
		return true
	default:
		p.metrics.RecordError("fragment_buffer_full")
		return false
	}
}

func validateFragment(frag *models.BarFragment) error {
	if frag == nil {
		return fmt.Errorf("fragment nil")
	}
	if frag.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if frag.Timeframe == "" {
		return fmt.Errorf("timeframe empty")
	}
	if len(frag.Bars) == 0 {
		return fmt.Errorf("no bars")
	}
	for _, b := range frag.Bars {
		if b.Time.IsZero() {
			return fmt.Errorf("bar without timestamp")
		}
		if b.Volume < 0 {
			return fmt.Errorf("negative volume")
		}
	}
	return nil
}

// allow enforces at most maxPerSec accepted fragments per key.
func (p *FragmentPipeline) allow(key string, now time.Time) bool {
	if p.maxPerSec <= 0 {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.lastSeen[key]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxPerSec) {
		return false
	}
	p.lastSeen[key] = now
	return true
}

var _ Merger = (*FragmentPipeline)(nil)
