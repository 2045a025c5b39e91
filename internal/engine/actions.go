package engine

import (
	"context"
	"log/slog"

	"github.com/a-essam23/socket-gateway/pkg/session"
	"github.com/a-essam23/socket-gateway/pkg/state"
)

func (e *Engine) handlePing(_ context.Context, s *session.Session, ev *session.Event) {
	s.Logger().Debug("Ping received")
	if err := ev.Ack(map[string]any{"status": "pong", "timestamp": e.timestamp()}); err != nil {
		s.Logger().Warn("Failed to ack ping", slog.Any("error", err))
	}
}

// handleSetFanSpeed broadcasts the request to room_<roomCode>, sender
// included, then confirms to the sender alone.
func (e *Engine) handleSetFanSpeed(_ context.Context, s *session.Session, ev *session.Event) {
	req, err := parseRoomRequest(ev.Payload)
	if err != nil {
		s.Logger().Warn("Rejected fan speed request", slog.Any("error", err))
		failure := map[string]any{"success": false, "error": err.Error(), "timestamp": e.timestamp()}
		if ev.WantsAck() {
			_ = ev.Ack(failure)
			return
		}
		_ = s.Send(EventFanSpeedError, failure)
		return
	}

	now := e.timestamp()
	username := s.Identity().Username
	s.Logger().Info("Fan speed request", slog.String("roomCode", req.RoomCode))

	update := make(map[string]any, len(req.Fields)+2)
	for k, v := range req.Fields {
		update[k] = v
	}
	update["updatedBy"] = username
	update["timestamp"] = now
	e.router.BroadcastToRoom(state.LocationRoom(req.RoomCode), EventFanSpeedUpdated, update)

	success := make(map[string]any, len(req.Fields)+2)
	success["success"] = true
	for k, v := range req.Fields {
		success[k] = v
	}
	success["timestamp"] = now
	if err := s.Send(EventFanSpeedSuccess, success); err != nil {
		s.Logger().Warn("Failed to confirm fan speed request", slog.Any("error", err))
	}
	_ = ev.Ack(success)
}

func (e *Engine) handleJoinLocation(_ context.Context, s *session.Session, ev *session.Event) {
	location, ok := parseLocation(ev.Payload)
	if !ok {
		s.Logger().Warn("joinLocation without a location", slog.String("payload", string(ev.Payload)))
		_ = ev.Ack(map[string]any{"success": false, "error": "location is required"})
		return
	}
	room := state.LocationRoom(location)
	s.Join(room)
	s.Logger().Info("User joined room", slog.String("roomID", room))
	_ = ev.Ack(map[string]any{"success": true, "room": room})
}

func (e *Engine) handleLeaveLocation(_ context.Context, s *session.Session, ev *session.Event) {
	location, ok := parseLocation(ev.Payload)
	if !ok {
		s.Logger().Warn("leaveLocation without a location", slog.String("payload", string(ev.Payload)))
		_ = ev.Ack(map[string]any{"success": false, "error": "location is required"})
		return
	}
	room := state.LocationRoom(location)
	s.Leave(room)
	s.Logger().Info("User left room", slog.String("roomID", room))
	_ = ev.Ack(map[string]any{"success": true, "room": room})
}
