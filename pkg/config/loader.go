package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a-essam23/socket-gateway/pkg/auth"
	"github.com/spf13/viper"
)

const envPrefix = "GATEWAY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3002)
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.cors.allowedOrigins", []string{"*"})
	v.SetDefault("server.maxConnsPerUser", 0)
	v.SetDefault("auth.mode", string(auth.ModeFallbackOpen))
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("transport.pingInterval", "25s")
	v.SetDefault("transport.pingTimeout", "60s")
	v.SetDefault("transport.writeTimeout", "10s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("transport.maxMessageBytes", 1<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional file in the working
// directory and environment variables, in that order of precedence.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	return load(logger, fileName, ".")
}

func load(logger *slog.Logger, fileName string, paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// bare names used by existing deployments; the prefixed form wins
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("auth.jwtSecret", envPrefix+"_AUTH_JWTSECRET", "JWT_SECRET"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdownTimeout must be positive"))
	}
	if c.Server.MaxConnsPerUser < 0 {
		errs = append(errs, errors.New("server.maxConnsPerUser must not be negative"))
	}
	if _, err := auth.ParseMode(c.Auth.Mode); err != nil {
		errs = append(errs, err)
	}
	if auth.Mode(c.Auth.Mode) == auth.ModeEnforced && c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required in enforced mode"))
	}
	t := c.Transport
	if t.PingInterval <= 0 || t.PingTimeout <= 0 || t.WriteTimeout <= 0 {
		errs = append(errs, errors.New("transport intervals must be positive"))
	}
	if t.SendBuffer <= 0 {
		errs = append(errs, errors.New("transport.sendBuffer must be positive"))
	}
	if t.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("transport.maxMessageBytes must be positive"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
