package engine

import (
	"log/slog"
	"time"

	"github.com/a-essam23/socket-gateway/internal/router"
	"github.com/a-essam23/socket-gateway/pkg/session"
)

// Built-in inbound event names.
const (
	EventPing          = "ping"
	EventSetFanSpeed   = "setFanSpeed"
	EventJoinLocation  = "joinLocation"
	EventLeaveLocation = "leaveLocation"
)

// Built-in outbound event names.
const (
	EventFanSpeedUpdated = "fanSpeedUpdated"
	EventFanSpeedSuccess = "fanSpeedSuccess"
	EventFanSpeedError   = "fanSpeedError"
)

// Engine holds the built-in handlers and what they need to emit.
type Engine struct {
	logger *slog.Logger
	router *router.EventRouter
	now    func() time.Time
}

type Option func(*Engine)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(logger *slog.Logger, r *router.EventRouter, opts ...Option) *Engine {
	e := &Engine{
		logger: logger.With(slog.String("component", "engine")),
		router: r,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterCore installs the built-in handlers on the router's default table.
func (e *Engine) RegisterCore() {
	core := map[string]session.Handler{
		EventPing:          e.handlePing,
		EventSetFanSpeed:   e.handleSetFanSpeed,
		EventJoinLocation:  e.handleJoinLocation,
		EventLeaveLocation: e.handleLeaveLocation,
	}
	for name, h := range core {
		e.router.Handle(name, h)
	}
	e.logger.Info("Registered core handlers", slog.Int("count", len(core)))
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}
