package config

import (
	"net"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Transport TransportConfig `mapstructure:"transport"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	// MaxConnsPerUser caps live sessions per verified identity. 0 disables it.
	MaxConnsPerUser int `mapstructure:"maxConnsPerUser"`
}

// Address is the listen address built from host and port.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type AuthConfig struct {
	Mode      string `mapstructure:"mode"` // "fallback-open" or "enforced"
	JWTSecret string `mapstructure:"jwtSecret"`
}

type TransportConfig struct {
	PingInterval    time.Duration `mapstructure:"pingInterval"`
	PingTimeout     time.Duration `mapstructure:"pingTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	SendBuffer      int           `mapstructure:"sendBuffer"`
	MaxMessageBytes int64         `mapstructure:"maxMessageBytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}
