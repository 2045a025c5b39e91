package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/a-essam23/socket-gateway/pkg/session"
	"github.com/a-essam23/socket-gateway/pkg/state"
)

// EventRouter owns the default handler table installed on every session and
// the gateway-wide outbound primitives.
type EventRouter struct {
	logger   *slog.Logger
	registry state.Registry

	mu       sync.RWMutex
	handlers map[string]session.Handler
}

func NewEventRouter(logger *slog.Logger, registry state.Registry) *EventRouter {
	return &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		registry: registry,
		handlers: make(map[string]session.Handler),
	}
}

func (r *EventRouter) Registry() state.Registry {
	return r.registry
}

// Handle sets the default handler for name. Re-registering replaces it.
func (r *EventRouter) Handle(name string, h session.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		r.logger.Warn("Replacing event handler", slog.String("event", name))
	}
	r.handlers[name] = h
}

func (r *EventRouter) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Attach installs the default handler table on s.
func (r *EventRouter) Attach(s *session.Session) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, h := range r.handlers {
		s.OnEvent(name, h)
	}
}

// HandleMessage decodes one frame and dispatches it on s. Malformed frames
// are logged and dropped; they never close the session.
func (r *EventRouter) HandleMessage(ctx context.Context, s *session.Session, msg []byte) {
	var in session.Inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		r.logger.Warn("Failed to unmarshal client message", slog.String("connID", s.ID().String()), slog.Any("error", err))
		return
	}
	if in.Event == "" {
		r.logger.Warn("Client message missing event name", slog.String("connID", s.ID().String()))
		return
	}

	r.logger.Debug("Dispatching event", slog.String("event", in.Event), slog.String("connID", s.ID().String()))
	s.Dispatch(ctx, session.NewEvent(in))
}

// BroadcastToRoom delivers payload to every member of room at call time,
// including the caller if it is a member. A failed send to one member does
// not affect the others. Returns the number of successful deliveries.
func (r *EventRouter) BroadcastToRoom(room, event string, payload any) int {
	delivered := 0
	members := r.registry.Broadcast(room, func(m state.Member) {
		if err := m.Send(event, payload); err != nil {
			r.logger.Warn("Broadcast delivery failed",
				slog.String("roomID", room),
				slog.String("connID", m.ID().String()),
				slog.Any("error", err),
			)
			return
		}
		delivered++
	})

	r.logger.Debug("Notified room",
		slog.String("roomID", room),
		slog.String("event", event),
		slog.Int("members", members),
		slog.Int("delivered", delivered),
	)
	return delivered
}

// SendToIdentity delivers to every session bound to the identity id.
func (r *EventRouter) SendToIdentity(id int64, event string, payload any) int {
	return r.BroadcastToRoom(state.UserRoom(id), event, payload)
}
