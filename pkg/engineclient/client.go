// Package engineclient is a reconnecting websocket client for the alert engine.
package engineclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is the envelope every engine frame shares. Raw keeps the full frame.
type Message struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

var ErrNotConnected = errors.New("engineclient: not connected")

// Client keeps one session open to the engine and re-subscribes after reconnects.
type Client struct {
	url          string
	retryDelay   time.Duration
	logger       *zap.Logger
	handler      func(Message)
	mu           sync.Mutex
	conn         *websocket.Conn
	subscribed   []string
	unsubscribed []string
}

// NewClient creates a client for the engine's /ws endpoint.
func NewClient(url string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{url: url, retryDelay: 3 * time.Second, logger: logger}
}

// SetMessageHandler sets the function called for every frame. It runs on the Listen goroutine.
func (c *Client) SetMessageHandler(h func(Message)) {
	c.handler = h
}

// SetRetryDelay changes the pause between reconnect attempts.
func (c *Client) SetRetryDelay(d time.Duration) {
	c.retryDelay = d
}

// Connect dials the engine. It does not start the listener.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("failed to connect to engine", zap.String("url", c.url), zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("engine connected", zap.String("url", c.url))
	return c.resubscribe()
}

// Subscribe asks for updates on symbol and remembers it across reconnects.
func (c *Client) Subscribe(symbol string) error {
	c.mu.Lock()
	c.subscribed = appendUnique(c.subscribed, symbol)
	c.unsubscribed = remove(c.unsubscribed, symbol)
	c.mu.Unlock()
	return c.Send(map[string]string{"type": "subscribe", "symbol": symbol})
}

// Unsubscribe stops updates on symbol and remembers it across reconnects.
func (c *Client) Unsubscribe(symbol string) error {
	c.mu.Lock()
	c.unsubscribed = appendUnique(c.unsubscribed, symbol)
	c.subscribed = remove(c.subscribed, symbol)
	c.mu.Unlock()
	return c.Send(map[string]string{"type": "unsubscribe", "symbol": symbol})
}

// Send writes one JSON frame.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(v)
}

// Listen reads frames until ctx is done, reconnecting whenever the socket fails.
func (c *Client) Listen(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("engine read error", zap.Error(err))
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("undecodable frame", zap.Error(err))
			continue
		}
		msg.Raw = raw
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// reconnect retries until it succeeds or ctx is done.
func (c *Client) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("retrying reconnect", zap.Error(err))
			continue
		}
		c.logger.Info("reconnected to engine")
		return true
	}
}

func (c *Client) resubscribe() error {
	c.mu.Lock()
	subs := append([]string(nil), c.subscribed...)
	unsubs := append([]string(nil), c.unsubscribed...)
	c.mu.Unlock()

	for _, sym := range unsubs {
		if err := c.Send(map[string]string{"type": "unsubscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", sym, err)
		}
	}
	for _, sym := range subs {
		if err := c.Send(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	return nil
}

// Close closes the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
