package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const ackEvent = "_ack"

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	// ErrDisconnected fails acks still pending when the connection drops.
	ErrDisconnected = errors.New("disconnected before ack")
	ErrUnauthorized = errors.New("unauthorized")
)

type envelope struct {
	Event   string          `json:"event"`
	Ack     *uint64         `json:"ack,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is a gateway client with acknowledgements and automatic reconnection.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	state  ConnectionState
	cancel context.CancelFunc
	done   chan struct{}

	handlersMu sync.RWMutex
	handlers   map[string]func(json.RawMessage)
	onState    func(StateEvent)

	pendingMu sync.Mutex
	pending   map[uint64]chan json.RawMessage
	nextAck   atomic.Uint64
}

func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "gateway_client")),
		handlers: make(map[string]func(json.RawMessage)),
		pending:  make(map[uint64]chan json.RawMessage),
	}
}

// On registers the handler for a server event. The last registration wins.
// Handlers run on the read goroutine and must not block.
func (c *Client) On(event string, fn func(payload json.RawMessage)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = fn
}

// OnStateChange registers a callback for connection state changes. Rooms are
// per connection, so this is where a caller re-joins after a reconnect.
func (c *Client) OnStateChange(fn func(StateEvent)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onState = fn
}

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the gateway and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()
	if c.cfg.URL == "" {
		return errors.New("empty URL")
	}

	c.setState(StateConnecting, nil)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected, err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	go c.run(runCtx, conn, done)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	opts := &websocket.DialOptions{}
	if c.cfg.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.cfg.Token}}
	}

	conn, resp, err := websocket.Dial(ctx, c.cfg.URL, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, err
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := c.readLoop(ctx, conn)
		c.failPending()
		if ctx.Err() != nil || c.State() == StateClosed {
			return
		}
		c.logger.Warn("Connection lost", slog.Any("error", err))
		if !c.cfg.Reconnect {
			c.clearConn()
			c.setState(StateDisconnected, err)
			return
		}

		c.clearConn()
		c.setState(StateReconnecting, err)
		next, err := c.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("Giving up reconnecting", slog.Any("error", err))
				c.setState(StateDisconnected, err)
			}
			return
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			next.CloseNow()
			return
		}
		c.conn = next
		c.mu.Unlock()
		c.setState(StateConnected, nil)
		conn = next
	}
}

func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	if c.cfg.ReconnectInitialInterval > 0 {
		b.InitialInterval = c.cfg.ReconnectInitialInterval
	}
	if c.cfg.ReconnectMaxInterval > 0 {
		b.MaxInterval = c.cfg.ReconnectMaxInterval
	}
	b.MaxElapsedTime = c.cfg.ReconnectMaxElapsed

	var conn *websocket.Conn
	op := func() error {
		next, err := c.dial(ctx)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = next
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Reconnect attempt failed", slog.Any("error", err), slog.Duration("retryIn", wait))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	if env.Event == ackEvent {
		if env.Ack == nil {
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[*env.Ack]
		delete(c.pending, *env.Ack)
		c.pendingMu.Unlock()
		if ok {
			ch <- env.Payload
		}
		return
	}

	c.handlersMu.RLock()
	fn, ok := c.handlers[env.Event]
	c.handlersMu.RUnlock()
	if !ok {
		c.logger.Debug("No handler for event", slog.String("event", env.Event))
		return
	}
	fn(env.Payload)
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Emit sends an event without waiting for a reply.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	return c.write(ctx, event, payload, nil)
}

// EmitWithAck sends an event and waits for the server's ack payload.
func (c *Client) EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	id := c.nextAck.Add(1)
	ch := make(chan json.RawMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(ctx, event, payload, &id); err != nil {
		return nil, err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrDisconnected
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) write(ctx context.Context, event string, payload any, ack *uint64) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	env := envelope{Event: event, Ack: ack}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for '%s': %w", event, err)
		}
		env.Payload = raw
	}
	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, conn, env)
}

// Close shuts the client down and stops reconnecting. It is terminal.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateClosed, nil)

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client close")
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return err
}

func (c *Client) clearConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil
}

func (c *Client) setState(next ConnectionState, cause error) {
	c.mu.Lock()
	prev := c.state
	if prev == StateClosed || prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	c.logger.Debug("State changed", slog.String("from", prev.String()), slog.String("to", next.String()))
	c.handlersMu.RLock()
	fn := c.onState
	c.handlersMu.RUnlock()
	if fn != nil {
		fn(StateEvent{OldState: prev, NewState: next, Error: cause})
	}
}
