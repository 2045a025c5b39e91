package session

import (
	"encoding/json"
	"sync/atomic"
)

// Event is one inbound event. It only lives for the duration of a dispatch.
type Event struct {
	Name    string
	Payload json.RawMessage

	ackID   *uint64
	acked   atomic.Bool
	session *Session
}

func NewEvent(in Inbound) *Event {
	return &Event{
		Name:    in.Event,
		Payload: in.Payload,
		ackID:   in.Ack,
	}
}

// WantsAck reports whether the peer asked for a reply to this event.
func (e *Event) WantsAck() bool {
	return e.ackID != nil
}

// Ack replies to the peer. It is a no-op when no reply was requested, and
// only the first call sends.
func (e *Event) Ack(payload any) error {
	if e.ackID == nil || e.session == nil {
		return nil
	}
	if !e.acked.CompareAndSwap(false, true) {
		return nil
	}
	return e.session.write(Outbound{Event: AckEvent, Ack: e.ackID, Payload: payload})
}
