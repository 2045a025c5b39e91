package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/a-essam23/socket-gateway/pkg/state"
	"github.com/google/uuid"
)

var (
	ErrClosed        = errors.New("session: not active")
	ErrNotConnecting = errors.New("session: activate called outside connecting state")
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state_%d", int32(s))
	}
}

// Channel is the transport handle a session owns.
type Channel interface {
	ID() uuid.UUID
	Send(msg []byte) error
	Close(err error)
}

// Handler processes one inbound event on the session that received it.
type Handler func(ctx context.Context, s *Session, ev *Event)

// Session binds one identity to one transport channel.
type Session struct {
	id       uuid.UUID
	identity state.Identity
	channel  Channel
	registry state.Registry

	// mu serializes lifecycle transitions.
	mu    sync.Mutex
	state atomic.Int32

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	logger *slog.Logger
}

// compile-time check to ensure Session can be held by the registry.
var _ state.Member = (*Session)(nil)

func New(ch Channel, identity state.Identity, registry state.Registry, logger *slog.Logger) *Session {
	return &Session{
		id:       ch.ID(),
		identity: identity,
		channel:  ch,
		registry: registry,
		handlers: make(map[string]Handler),
		logger: logger.With(
			slog.String("connID", ch.ID().String()),
			slog.Int64("userID", identity.ID),
			slog.String("username", identity.Username),
		),
	}
}

func (s *Session) ID() uuid.UUID            { return s.id }
func (s *Session) Identity() state.Identity { return s.identity }
func (s *Session) State() State             { return State(s.state.Load()) }
func (s *Session) Logger() *slog.Logger     { return s.logger }

// UserRoom is the identity-scoped room this session holds for its lifetime.
func (s *Session) UserRoom() string {
	return state.UserRoom(s.identity.ID)
}

// Activate registers the session and joins its user room.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateConnecting {
		return ErrNotConnecting
	}
	if err := s.registry.Register(s); err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	s.registry.Join(s, s.UserRoom())
	s.state.Store(int32(StateActive))
	s.logger.Info("Session active", slog.String("room", s.UserRoom()))
	return nil
}

// Close terminates the session from the server side. It is idempotent.
func (s *Session) Close(reason error) {
	s.teardown(reason)
	s.channel.Close(reason)
}

// HandleTransportClose is the transport's close hook. It never touches the
// channel, which is already shutting down.
func (s *Session) HandleTransportClose(_ uuid.UUID, err error) {
	s.teardown(err)
}

func (s *Session) teardown(reason error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.State()
	if prev == StateClosed {
		return false
	}
	s.state.Store(int32(StateClosed))
	if prev == StateActive {
		s.registry.Deregister(s.id)
	}
	s.logger.Info("Session closed", slog.Any("reason", reason))
	return true
}

// Join adds the session to room. Idempotent.
func (s *Session) Join(room string) {
	if s.State() != StateActive {
		return
	}
	s.registry.Join(s, room)
}

// Leave removes the session from room. The session's own user room is never
// left; that call reports false.
func (s *Session) Leave(room string) bool {
	if room == s.UserRoom() {
		s.logger.Warn("Refusing to leave own user room", slog.String("room", room))
		return false
	}
	s.registry.Leave(s, room)
	return true
}

func (s *Session) Rooms() []string {
	return s.registry.RoomsOf(s.id)
}

// OnEvent registers the handler for name. The last registration wins.
func (s *Session) OnEvent(name string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[name] = h
}

func (s *Session) handler(name string) (Handler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

// Send enqueues an event on this session's channel only. It never blocks.
func (s *Session) Send(event string, payload any) error {
	return s.write(Outbound{Event: event, Payload: payload})
}

func (s *Session) write(out Outbound) error {
	if s.State() != StateActive {
		return ErrClosed
	}
	msg, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal event '%s': %w", out.Event, err)
	}
	return s.channel.Send(msg)
}

// Dispatch runs the handler registered for the event synchronously. A
// panicking handler is contained to this event.
func (s *Session) Dispatch(ctx context.Context, ev *Event) {
	if s.State() != StateActive {
		s.logger.Debug("Dropping event on inactive session", slog.String("event", ev.Name))
		return
	}
	ev.session = s

	h, ok := s.handler(ev.Name)
	if !ok {
		s.logger.Warn("Received unknown event", slog.String("event", ev.Name))
		_ = ev.Ack(map[string]any{"success": false, "error": "unknown event '" + ev.Name + "'"})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Event handler panicked", slog.String("event", ev.Name), slog.Any("panic", rec))
		}
	}()
	h(ctx, s, ev)
}
