package client

import "time"

// Config controls how the client connects and reconnects.
type Config struct {
	URL   string // ws:// or wss:// endpoint, e.g. ws://localhost:3002/ws
	Token string // sent as "Authorization: Bearer <token>" when set

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Reconnect re-dials with exponential backoff after an unexpected
	// disconnect. A zero ReconnectMaxElapsed retries until Close.
	Reconnect                bool
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
	ReconnectMaxElapsed      time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:         10 * time.Second,
		WriteTimeout:             10 * time.Second,
		Reconnect:                true,
		ReconnectInitialInterval: 500 * time.Millisecond,
		ReconnectMaxInterval:     30 * time.Second,
	}
}
