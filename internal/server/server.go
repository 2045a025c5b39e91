package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/a-essam23/socket-gateway/internal/engine"
	"github.com/a-essam23/socket-gateway/internal/router"
	"github.com/a-essam23/socket-gateway/internal/server/middleware"
	"github.com/a-essam23/socket-gateway/pkg/auth"
	"github.com/a-essam23/socket-gateway/pkg/config"
	"github.com/a-essam23/socket-gateway/pkg/session"
	"github.com/a-essam23/socket-gateway/pkg/state"
	"github.com/a-essam23/socket-gateway/pkg/state/statemanager"
	"github.com/a-essam23/socket-gateway/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

type App struct {
	logger      *slog.Logger
	registry    state.Registry
	eventRouter *router.EventRouter
	resolver    *auth.Resolver
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config
	startedAt   time.Time

	acceptOptions *websocket.AcceptOptions
	listener      net.Listener

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) (*App, error) {
	mode, err := auth.ParseMode(cfg.Auth.Mode)
	if err != nil {
		return nil, err
	}
	if mode == auth.ModeFallbackOpen && cfg.Auth.JWTSecret == "" {
		logger.Warn("No JWT secret configured; every token will fail verification")
	}

	registry := statemanager.NewInMemoryManager(logger)
	eventRouter := router.NewEventRouter(logger, registry)
	engine.New(logger, eventRouter).RegisterCore()

	app := &App{
		logger:        logger,
		registry:      registry,
		eventRouter:   eventRouter,
		resolver:      auth.NewResolver(logger, mode, cfg.Auth.JWTSecret),
		config:        cfg,
		startedAt:     time.Now(),
		acceptOptions: acceptOptions(cfg.Server.CORS.AllowedOrigins),
		ctx:           rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	connCounter := func(identityID int64) int {
		return len(registry.MembersOf(state.UserRoom(identityID)))
	}
	mux.Handle("GET /ws",
		middleware.Chain(upgradeHandler,
			middleware.NewAuthMiddleware(logger, app.resolver),
			middleware.NewConnectionLimiter(logger, connCounter, cfg.Server.MaxConnsPerUser),
		),
	)
	mux.HandleFunc("GET /{$}", app.handleRoot)
	mux.HandleFunc("GET /health", app.handleHealth)

	handler := middleware.Chain(mux,
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
		middleware.NewCORS(cfg.Server.CORS.AllowedOrigins),
	)
	app.http = &http.Server{Addr: cfg.Server.Address(), Handler: handler, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app, nil
}

// Handle registers an application event handler on every future session.
func (a *App) Handle(event string, h session.Handler) {
	a.eventRouter.Handle(event, h)
}

// Router exposes the room and identity broadcast primitives.
func (a *App) Router() *router.EventRouter {
	return a.eventRouter
}

// Start binds the listener and serves in the background.
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.http.Addr, err)
	}
	a.listener = ln

	go func() {
		a.logger.Info("Server starting", slog.String("addr", ln.Addr().String()))
		if err := a.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (a *App) Addr() string {
	if a.listener == nil {
		return a.http.Addr
	}
	return a.listener.Addr().String()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || !reqMeta.Authenticated {
		a.logger.Error("Upgrade reached without a resolved identity. Check middleware order.")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	identity := reqMeta.Identity
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.Int64("userID", identity.ID),
	)

	wsConn, err := websocket.Accept(w, r, a.acceptOptions)
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(r.Context(), &a.wg, wsConn, a.transportConfig(), connLogger)
	sess := session.New(conn, identity, a.registry, a.logger.With(slog.String("remoteAddr", reqMeta.IP)))
	a.eventRouter.Attach(sess)

	conn.SetOnMessageHandler(func(ctx context.Context, msg []byte) {
		a.eventRouter.HandleMessage(ctx, sess, msg)
	})
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("User disconnected", slog.String("connID", id.String()), slog.Any("reason", err))
		sess.HandleTransportClose(id, err)
	})

	if err := sess.Activate(); err != nil {
		connLogger.Error("Failed to activate session", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established",
		slog.String("username", identity.Username),
		slog.String("auth", reqMeta.Outcome.String()),
	)
	conn.Run()
	<-conn.Done()
}

func (a *App) transportConfig() transport.ConnectionConfig {
	t := a.config.Transport
	return transport.ConnectionConfig{
		PingInterval:    t.PingInterval,
		PingTimeout:     t.PingTimeout,
		WriteTimeout:    t.WriteTimeout,
		SendBuffer:      t.SendBuffer,
		MaxMessageBytes: t.MaxMessageBytes,
	}
}

// Shutdown stops accepting connections, closes every live session and waits
// for their goroutines to finish or ctx to expire.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down server...")
	if err := a.http.Shutdown(ctx); err != nil {
		return err
	}

	members := a.registry.Members()
	a.logger.Info("Closing all active connections...", slog.Int("count", len(members)))
	for _, m := range members {
		if c, ok := m.(interface{ Close(error) }); ok {
			go c.Close(nil)
		}
	}

	// wait for all connection goroutines to finish their cleanup.
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("Server shut down gracefully.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown incomplete: %w", ctx.Err())
	}
}

// acceptOptions maps allowed origins onto coder/websocket host patterns.
func acceptOptions(allowed []string) *websocket.AcceptOptions {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(allowed))
	for _, origin := range allowed {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}
