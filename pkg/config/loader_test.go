package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := load(newTestLogger(), "config", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3002", cfg.Server.Address())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORS.AllowedOrigins)
	assert.Equal(t, "fallback-open", cfg.Auth.Mode)
	assert.Equal(t, 25*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Transport.PingTimeout)
	assert.Equal(t, 10*time.Second, cfg.Transport.WriteTimeout)
	assert.Equal(t, 256, cfg.Transport.SendBuffer)
	assert.Equal(t, int64(1<<20), cfg.Transport.MaxMessageBytes)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 4000
  cors:
    allowedOrigins: ["https://app.example.com"]
auth:
  mode: enforced
  jwtSecret: s3cret
transport:
  pingInterval: 5s
log:
  format: json
`)
	cfg, err := load(newTestLogger(), "config", dir)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORS.AllowedOrigins)
	assert.Equal(t, "enforced", cfg.Auth.Mode)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.Transport.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Transport.PingTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 4000\n")
	t.Setenv("GATEWAY_SERVER_PORT", "5000")
	t.Setenv("GATEWAY_TRANSPORT_SENDBUFFER", "8")

	cfg, err := load(newTestLogger(), "config", dir)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Transport.SendBuffer)
}

func TestLoad_BareDeploymentVariables(t *testing.T) {
	t.Setenv("PORT", "3100")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := load(newTestLogger(), "config", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3100, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_PrefixedVariableWinsOverBare(t *testing.T) {
	t.Setenv("PORT", "3100")
	t.Setenv("GATEWAY_SERVER_PORT", "3200")

	cfg, err := load(newTestLogger(), "config", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3200, cfg.Server.Port)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := writeConfig(t, "server: [unterminated")
	_, err := load(newTestLogger(), "config", dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := load(newTestLogger(), "config", t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown auth mode", mutate: func(c *Config) { c.Auth.Mode = "sometimes" }},
		{name: "enforced without secret", mutate: func(c *Config) { c.Auth.Mode = "enforced"; c.Auth.JWTSecret = "" }},
		{name: "zero ping interval", mutate: func(c *Config) { c.Transport.PingInterval = 0 }},
		{name: "negative write timeout", mutate: func(c *Config) { c.Transport.WriteTimeout = -time.Second }},
		{name: "zero send buffer", mutate: func(c *Config) { c.Transport.SendBuffer = 0 }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid().Validate())
}
