package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("transport: connection closed")
	ErrSendBufferFull = errors.New("transport: send buffer full")
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	// PingInterval is how often a websocket ping is sent.
	PingInterval time.Duration
	// PingTimeout bounds the wait for the matching pong.
	PingTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		PingInterval:    25 * time.Second,
		PingTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		SendBuffer:      256,
		MaxMessageBytes: 1 << 20,
	}
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	// closed is flipped under mu before the pumps are cancelled so that
	// Send never races with teardown.
	mu      sync.RWMutex
	closed  bool
	running bool

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	defaults := DefaultConnectionConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	return &Connection{
		id:     id,
		conn:   conn,
		logger: connLogger,
		config: config,
		send:   make(chan []byte, config.SendBuffer),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
		wg:     wg,
	}
}

// Run starts the read, write and heartbeat pumps. Handlers must be set
// before calling Run.
func (c *Connection) Run() {
	c.mu.Lock()
	if c.closed || c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	if c.config.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(c.config.MaxMessageBytes)
	}
	go c.readPump()
	go c.writePump()
	if c.config.PingInterval > 0 {
		go c.heartbeat()
	}

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		typ, message, err := c.conn.Read(c.ctx)
		if err != nil {
			readErr = err
			return
		}
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			continue
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, message)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		if writeErr != nil {
			c.Close(writeErr)
		}
	}()

	for {
		select {
		case message := <-c.send:
			writeCtx, cancel := context.WithTimeout(c.ctx, c.config.WriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// heartbeat pings the peer at a fixed interval and closes the connection
// when a pong does not arrive within PingTimeout.
func (c *Connection) heartbeat() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			timeout := c.config.PingTimeout
			if timeout <= 0 {
				timeout = c.config.PingInterval
			}
			pingCtx, cancel := context.WithTimeout(c.ctx, timeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					c.logger.Warn("Heartbeat failed", slog.Any("error", err))
					c.Close(fmt.Errorf("heartbeat: %w", err))
				}
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send enqueues a message without blocking. It is safe for concurrent use.
func (c *Connection) Send(message []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- message:
		return nil
	default:
		c.logger.Warn("Send buffer full, dropping message", slog.Int("buffer", cap(c.send)))
		return ErrSendBufferFull
	}
}

// Close shuts the connection down once. A nil err performs the close
// handshake; any other error drops the socket immediately.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		running := c.running
		c.mu.Unlock()

		status := websocket.CloseStatus(err)
		c.logger.Info("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		// the handshake needs the read pump alive, so cancel after it
		if c.conn != nil {
			if err == nil {
				c.conn.Close(websocket.StatusNormalClosure, "")
			} else {
				c.conn.CloseNow()
			}
		}
		c.cancel()
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		if running {
			c.wg.Done()
		}
		close(c.done)
		c.logger.Info("Connection closed")
	})
}

// returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
