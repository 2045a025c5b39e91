package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/a-essam23/socket-gateway/internal/server"
	"github.com/a-essam23/socket-gateway/pkg/auth"
	"github.com/a-essam23/socket-gateway/pkg/client"
	"github.com/a-essam23/socket-gateway/pkg/config"
	"github.com/a-essam23/socket-gateway/pkg/session"
	"github.com/a-essam23/socket-gateway/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "client-secret"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startGateway(t *testing.T, mode auth.Mode) *server.App {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		Auth:   config.AuthConfig{Mode: string(mode), JWTSecret: secret},
		Transport: config.TransportConfig{
			PingInterval: 25 * time.Second, PingTimeout: 60 * time.Second, WriteTimeout: 5 * time.Second,
			SendBuffer: 64, MaxMessageBytes: 1 << 20,
		},
	}
	app, err := server.NewApp(newTestLogger(), context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app
}

// kick drops every live session from the server side.
func kick(app *server.App) {
	for _, m := range app.Router().Registry().Members() {
		m.(interface{ Close(error) }).Close(errors.New("kicked"))
	}
}

func newClient(t *testing.T, app *server.App, token string, mutate func(*client.Config)) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.URL = "ws://" + app.Addr() + "/ws"
	cfg.Token = token
	cfg.ReconnectInitialInterval = 10 * time.Millisecond
	cfg.ReconnectMaxInterval = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	c := client.New(cfg, newTestLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type stateRecorder struct {
	mu     sync.Mutex
	states []client.ConnectionState
}

func (r *stateRecorder) record(ev client.StateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ev.NewState)
}

func (r *stateRecorder) all() []client.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]client.ConnectionState(nil), r.states...)
}

func TestClient_PingAck(t *testing.T) {
	app := startGateway(t, auth.ModeFallbackOpen)
	c := newClient(t, app, "", nil)
	require.NoError(t, c.Connect(ctxT(t)))
	assert.Equal(t, client.StateConnected, c.State())

	reply, err := c.EmitWithAck(ctxT(t), "ping", nil)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(reply, &body))
	assert.Equal(t, "pong", body["status"])
}

func TestClient_ReceivesRoomBroadcast(t *testing.T) {
	app := startGateway(t, auth.ModeFallbackOpen)
	issuer := auth.NewResolver(newTestLogger(), auth.ModeEnforced, secret)
	aliceTok, err := issuer.Issue(state.Identity{ID: 1, Username: "alice"}, time.Hour)
	require.NoError(t, err)

	alice := newClient(t, app, aliceTok, nil)
	bob := newClient(t, app, "", nil)
	require.NoError(t, alice.Connect(ctxT(t)))
	require.NoError(t, bob.Connect(ctxT(t)))

	updates := make(chan json.RawMessage, 1)
	bob.On("fanSpeedUpdated", func(p json.RawMessage) { updates <- p })
	successes := make(chan json.RawMessage, 1)
	alice.On("fanSpeedSuccess", func(p json.RawMessage) { successes <- p })

	_, err = alice.EmitWithAck(ctxT(t), "joinLocation", "X")
	require.NoError(t, err)
	_, err = bob.EmitWithAck(ctxT(t), "joinLocation", "X")
	require.NoError(t, err)

	require.NoError(t, alice.Emit(ctxT(t), "setFanSpeed", map[string]any{"roomCode": "X", "speed": 2}))

	select {
	case p := <-updates:
		var body map[string]any
		require.NoError(t, json.Unmarshal(p, &body))
		assert.Equal(t, "alice", body["updatedBy"])
		assert.Equal(t, float64(2), body["speed"])
	case <-time.After(5 * time.Second):
		t.Fatal("bob never received fanSpeedUpdated")
	}
	select {
	case <-successes:
	case <-time.After(5 * time.Second):
		t.Fatal("alice never received fanSpeedSuccess")
	}
}

func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	app := startGateway(t, auth.ModeFallbackOpen)
	rec := &stateRecorder{}
	c := newClient(t, app, "", nil)
	c.OnStateChange(rec.record)
	require.NoError(t, c.Connect(ctxT(t)))
	_, err := c.EmitWithAck(ctxT(t), "joinLocation", "X")
	require.NoError(t, err)

	kick(app)

	require.Eventually(t, func() bool {
		states := rec.all()
		return len(states) >= 4 && states[len(states)-1] == client.StateConnected
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []client.ConnectionState{
		client.StateConnecting, client.StateConnected, client.StateReconnecting, client.StateConnected,
	}, rec.all())

	// memberships belong to the old session; only the user room is restored
	reply, err := c.EmitWithAck(ctxT(t), "ping", nil)
	require.NoError(t, err)
	assert.Contains(t, string(reply), "pong")
	require.Eventually(t, func() bool {
		return len(app.Router().Registry().MembersOf("room_X")) == 0 &&
			len(app.Router().Registry().MembersOf("user_999")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClient_NoReconnectWhenDisabled(t *testing.T) {
	app := startGateway(t, auth.ModeFallbackOpen)
	c := newClient(t, app, "", func(cfg *client.Config) { cfg.Reconnect = false })
	require.NoError(t, c.Connect(ctxT(t)))
	_, err := c.EmitWithAck(ctxT(t), "ping", nil)
	require.NoError(t, err)

	kick(app)

	require.Eventually(t, func() bool { return c.State() == client.StateDisconnected }, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.Emit(ctxT(t), "ping", nil), client.ErrNotConnected)
}

func TestClient_PendingAckFailsOnDisconnect(t *testing.T) {
	app := startGateway(t, auth.ModeFallbackOpen)
	started := make(chan struct{})
	app.Handle("slow", func(context.Context, *session.Session, *session.Event) {
		close(started)
	})
	c := newClient(t, app, "", func(cfg *client.Config) { cfg.Reconnect = false })
	require.NoError(t, c.Connect(ctxT(t)))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.EmitWithAck(ctxT(t), "slow", nil)
		errCh <- err
	}()
	<-started
	kick(app)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, client.ErrDisconnected)
	case <-time.After(5 * time.Second):
		t.Fatal("pending ack never failed")
	}
}

func TestClient_AckTimeout(t *testing.T) {
	app := startGateway(t, auth.ModeFallbackOpen)
	app.Handle("silent", func(context.Context, *session.Session, *session.Event) {})
	c := newClient(t, app, "", nil)
	require.NoError(t, c.Connect(ctxT(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.EmitWithAck(ctx, "silent", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_EnforcedModeWithoutToken(t *testing.T) {
	app := startGateway(t, auth.ModeEnforced)
	c := newClient(t, app, "", nil)
	err := c.Connect(ctxT(t))
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Equal(t, client.StateDisconnected, c.State())
}

func TestClient_CloseIsTerminal(t *testing.T) {
	app := startGateway(t, auth.ModeFallbackOpen)
	c := newClient(t, app, "", nil)
	require.NoError(t, c.Connect(ctxT(t)))

	_ = c.Close()
	assert.Equal(t, client.StateClosed, c.State())
	assert.ErrorIs(t, c.Emit(ctxT(t), "ping", nil), client.ErrNotConnected)
	assert.ErrorIs(t, c.Connect(ctxT(t)), client.ErrAlreadyConnected)
	assert.NoError(t, c.Close())

	require.Eventually(t, func() bool { return app.Router().Registry().ConnectionCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestClient_EmitBeforeConnect(t *testing.T) {
	c := client.New(client.DefaultConfig(), nil)
	assert.ErrorIs(t, c.Emit(context.Background(), "ping", nil), client.ErrNotConnected)
	assert.Equal(t, "disconnected", c.State().String())
}
