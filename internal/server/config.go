package server

import (
	"fmt"
	"time"
)

// Default lifecycle tunables.
const (
	// DefaultShutdownTimeout bounds graceful HTTP drain on shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultKeepaliveInterval is the wall-clock cadence of executor-stream
	// keepalive events and marker renewals.
	DefaultKeepaliveInterval = 15 * time.Second

	// DefaultStreamMarkerTTL is the rolling TTL the executor stream applies
	// to the cluster_active marker.
	DefaultStreamMarkerTTL = 90 * time.Second
)

// Config holds the frontend's runtime configuration. It is cloned into the
// ServerContext so later mutation of the caller's copy has no effect.
type Config struct {
	// ServerName appears in discovery and health output.
	ServerName string

	// Version is injected at build time.
	Version string

	// CommandTimeoutSeconds is the default execute timeout when a request
	// carries none.
	CommandTimeoutSeconds int

	// ExecuteAPIKeyOnly restricts POST /debug/execute to API-key credentials.
	// Session endpoints accept either pathway regardless. Off by default.
	ExecuteAPIKeyOnly bool

	// OIDCIssuer and OIDCAudience configure the optional bearer-token
	// pathway. Both empty disables it.
	OIDCIssuer   string
	OIDCAudience string

	// KeepaliveInterval is the executor-stream keepalive cadence.
	KeepaliveInterval time.Duration

	// StreamMarkerTTL is the active-marker TTL applied by executor streams.
	StreamMarkerTTL time.Duration

	// ShutdownTimeout bounds graceful drain.
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a Config with the documented defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName:            "kube-debug-gateway",
		Version:               "dev",
		CommandTimeoutSeconds: 10,
		KeepaliveInterval:     DefaultKeepaliveInterval,
		StreamMarkerTTL:       DefaultStreamMarkerTTL,
		ShutdownTimeout:       DefaultShutdownTimeout,
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if c.CommandTimeoutSeconds < 0 {
		return fmt.Errorf("command timeout must not be negative")
	}
	if (c.OIDCIssuer == "") != (c.OIDCAudience == "") {
		return fmt.Errorf("OIDC issuer and audience must be configured together")
	}
	return nil
}
