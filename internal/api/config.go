// Package api provides the HTTP server infrastructure for geodetect.
// The endpoints themselves live in the handlers subpackage.
package api

import (
	"net"
	"time"

	"github.com/hotspot-detector/geodetect/internal/conf"
	"github.com/hotspot-detector/geodetect/internal/errors"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 300 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// bodyLimitSlack covers multipart headers and boundaries around the file.
	bodyLimitSlack = 64 * 1024
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port string

	AllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MaxUploadBytes int64   // upload ceiling; the request body limit adds slack for multipart framing
	RateLimit      float64 // requests per second per client IP, 0 disables
	MaxConnections int     // concurrent connections, 0 is unlimited

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            conf.DefaultPort,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxUploadBytes:  conf.DefaultMaxUploadSize,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	cfg.Host = settings.Server.Host
	cfg.Port = settings.Server.Port
	if len(settings.Server.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = settings.Server.AllowedOrigins
	}
	if settings.Server.ReadTimeout > 0 {
		cfg.ReadTimeout = settings.Server.ReadTimeout
	}
	if settings.Server.WriteTimeout > 0 {
		cfg.WriteTimeout = settings.Server.WriteTimeout
	}
	if settings.Server.IdleTimeout > 0 {
		cfg.IdleTimeout = settings.Server.IdleTimeout
	}
	if settings.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = settings.Server.ShutdownTimeout
	}
	if settings.Upload.MaxBytes > 0 {
		cfg.MaxUploadBytes = settings.Upload.MaxBytes
	}
	cfg.RateLimit = settings.Server.RateLimit
	cfg.MaxConnections = settings.Server.MaxConnections
	cfg.Debug = settings.Debug

	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.ValidationError("port is required")
	}
	if c.ReadTimeout <= 0 {
		return errors.ValidationError("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.ValidationError("write timeout must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.ValidationError("max upload size must be positive")
	}
	if c.RateLimit < 0 {
		return errors.ValidationError("rate limit must not be negative")
	}
	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// BodyLimit is the request body ceiling enforced by middleware.
func (c *Config) BodyLimit() int64 {
	return c.MaxUploadBytes + bodyLimitSlack
}
