package client

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	// StateReconnecting means the client is re-dialing after a disconnect.
	StateReconnecting
	// StateClosed means Close was called. It is terminal.
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // what caused the change, if anything
}
