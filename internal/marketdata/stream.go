package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	"TrendGate/pkg/util"

	"github.com/gorilla/websocket"
)

// StreamClient implements repository.BarStream over a WebSocket feed.
// Authentication and reconnection policy beyond Reconnect belong to the
// transport layer upstream of this client.
type StreamClient struct {
	url            string
	apiKey         string
	pingInterval   time.Duration
	reconnectDelay time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewStreamClient creates a streaming bar client.
func NewStreamClient(url, apiKey string, pingInterval, reconnectDelay time.Duration) *StreamClient {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &StreamClient{
		url:            url,
		apiKey:         apiKey,
		pingInterval:   pingInterval,
		reconnectDelay: reconnectDelay,
	}
}

// Connect dials the WebSocket endpoint.
func (c *StreamClient) Connect(ctx context.Context) error {
	u := c.url
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.url, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *StreamClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *StreamClient) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// Subscribe subscribes to bar updates for the given symbols.
func (c *StreamClient) Subscribe(ctx context.Context, symbols []string) error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	c.mu.Unlock()
	if conn == nil || !connected {
		return fmt.Errorf("stream not connected")
	}
	for _, s := range symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	return nil
}

type wsBar struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

type wsFrame struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Bars      []wsBar `json:"bars"`
}

// Read streams bar fragments and errors until the context ends or the
// connection drops. Both goroutines it spawns operate on the connection
// snapshotted at call time and end with the read loop, so a reconnected
// Read never inherits workers from a previous one.
func (c *StreamClient) Read(ctx context.Context) (<-chan *models.BarFragment, <-chan error) {
	frags := make(chan *models.BarFragment, 256)
	errs := make(chan error, 1)

	conn := c.current()
	if conn == nil {
		errs <- fmt.Errorf("stream conn nil")
		close(frags)
		close(errs)
		return frags, errs
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				// WriteControl is safe alongside the data writer.
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	go func() {
		defer close(frags)
		defer close(errs)
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				c.markDisconnected()
				errs <- fmt.Errorf("stream read: %w", err)
				return
			}
			var frame wsFrame
			if err := json.Unmarshal(b, &frame); err != nil {
				continue // ignore non-bar frames
			}
			if frame.Type != "bars" || len(frame.Bars) == 0 {
				continue
			}
			frag := &models.BarFragment{
				Symbol:    frame.Symbol,
				Timeframe: models.Timeframe(frame.Timeframe),
			}
			for _, wb := range frame.Bars {
				ts, ok := util.ParseTime(wb.Timestamp)
				if !ok {
					continue
				}
				frag.Bars = append(frag.Bars, models.Bar{
					Time:   ts,
					Open:   wb.Open,
					High:   wb.High,
					Low:    wb.Low,
					Close:  wb.Close,
					Volume: wb.Volume,
				})
			}
			if len(frag.Bars) == 0 {
				continue
			}
			select {
			case frags <- frag:
			default:
				// drop on backpressure
			}
		}
	}()

	return frags, errs
}

// Close closes the connection.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected reports connection state.
func (c *StreamClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

var _ repository.BarStream = (*StreamClient)(nil)
