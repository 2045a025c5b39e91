package session

import "encoding/json"

// AckEvent is the reserved event name carried by acknowledgement replies.
const AckEvent = "_ack"

// Inbound is the JSON envelope a client sends.
type Inbound struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Ack is set when the client expects a reply correlated by this id.
	Ack *uint64 `json:"ack,omitempty"`
}

// Outbound is the JSON envelope the gateway sends. Ack replies carry the id
// of the inbound event they answer.
type Outbound struct {
	Event   string  `json:"event"`
	Ack     *uint64 `json:"ack,omitempty"`
	Payload any     `json:"payload"`
}
