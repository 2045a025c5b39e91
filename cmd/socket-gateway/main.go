package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/a-essam23/socket-gateway/internal/server"
	"github.com/a-essam23/socket-gateway/pkg/config"
	"github.com/a-essam23/socket-gateway/pkg/logging"
	gfshutdown "github.com/gelmium/graceful-shutdown"
)

func main() {
	// bootstrap logger until the configured one exists
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger, err = logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		slog.Error("Invalid log configuration", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runTokenCommand(logger, cfg, os.Stdout, os.Args[2:]); err != nil {
			logger.Error("Failed to issue token", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	app, err := server.NewApp(logger, context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to build application", slog.Any("error", err))
		os.Exit(1)
	}
	if err := app.Start(); err != nil {
		logger.Error("Application start failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Socket gateway running",
		slog.String("addr", app.Addr()),
		slog.String("authMode", cfg.Auth.Mode),
	)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"gateway": func(ctx context.Context) error {
				return app.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Application shut down", slog.Int("exitCode", exitCode))
	os.Exit(exitCode)
}
