package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/a-essam23/socket-gateway/pkg/auth"
	"github.com/a-essam23/socket-gateway/pkg/config"
	"github.com/a-essam23/socket-gateway/pkg/state"
)

// runTokenCommand signs a development token with the configured secret:
//
//	socket-gateway token -id 42 -username alice -role admin -ttl 24h
func runTokenCommand(logger *slog.Logger, cfg *config.Config, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	id := fs.Int64("id", 1, "identity id")
	username := fs.String("username", "dev", "identity username")
	role := fs.String("role", string(state.RoleUser), "identity role")
	ttl := fs.Duration("ttl", 0, "token lifetime, 0 for no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret (or JWT_SECRET) must be set to issue tokens")
	}

	resolver := auth.NewResolver(logger, auth.ModeEnforced, cfg.Auth.JWTSecret)
	token, err := resolver.Issue(state.Identity{ID: *id, Username: *username, Role: state.ParseRole(*role)}, *ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
