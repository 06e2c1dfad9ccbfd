// Package usecase wires external feeds into the validation pipeline: the
// streaming bar collector and the outcome feedback consumer.
package usecase

import (
	"context"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	"TrendGate/pkg/logger"
)

// FragmentSink receives streamed bar fragments. Implemented by the
// validator orchestrator.
type FragmentSink interface {
	HandleFragment(frag *models.BarFragment) bool
}

// StreamCollector reads bar fragments from the streaming collaborator and
// merges them into the pipeline, reconnecting on stream failure.
type StreamCollector struct {
	stream         repository.BarStream
	sink           FragmentSink
	metrics        repository.Metrics
	log            *logger.Logger
	symbols        []string
	reconnectDelay time.Duration
}

// NewStreamCollector creates a stream collector for the given symbols.
func NewStreamCollector(stream repository.BarStream, sink FragmentSink, m repository.Metrics, log *logger.Logger, symbols []string, reconnectDelay time.Duration) *StreamCollector {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &StreamCollector{
		stream:         stream,
		sink:           sink,
		metrics:        m,
		log:            log,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
	}
}

// IsConnected reports the stream connection state.
func (c *StreamCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes, and launches the consume loop.
func (c *StreamCollector) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

func (c *StreamCollector) connect(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	return c.stream.Subscribe(ctx, c.symbols)
}

// run consumes fragments until the context ends, re-establishing the
// stream after read failures.
func (c *StreamCollector) run(ctx context.Context) {
	for {
		frags, errs := c.stream.Read(ctx)
		if !c.consume(ctx, frags, errs) {
			return
		}

		c.metrics.RecordError("stream")
		c.log.Warn("stream dropped, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
		_ = c.stream.Close()
		if err := c.connect(ctx); err != nil {
			c.log.Error("stream reconnect failed", logger.Error(err))
		}
	}
}

// consume drains the fragment channel. Returns false when the context is
// done, true when the stream should be re-established.
func (c *StreamCollector) consume(ctx context.Context, frags <-chan *models.BarFragment, errs <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case err := <-errs:
			if err != nil {
				c.log.Warn("stream error", logger.Error(err))
			}
			return true
		case frag, ok := <-frags:
			if !ok {
				return true
			}
			if frag == nil {
				continue
			}
			if !c.sink.HandleFragment(frag) {
				c.log.Debug("fragment dropped for uncached key",
					logger.String("symbol", frag.Symbol),
					logger.String("timeframe", string(frag.Timeframe)))
			}
		}
	}
}

// Stop closes the stream.
func (c *StreamCollector) Stop() error {
	return c.stream.Close()
}
