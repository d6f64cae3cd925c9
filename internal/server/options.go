package server

import (
	"errors"
	"log/slog"

	"github.com/giantswarm/kube-debug-gateway/internal/admin"
	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/capability"
	"github.com/giantswarm/kube-debug-gateway/internal/instrumentation"
	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
)

// Errors returned when a required dependency is missing.
var (
	ErrMissingKeystore           = errors.New("keystore is required")
	ErrMissingAuthenticator      = errors.New("authenticator is required")
	ErrMissingSessionRegistry    = errors.New("session registry is required")
	ErrMissingRouter             = errors.New("command router is required")
	ErrMissingCapabilityRegistry = errors.New("capability registry is required")
	ErrMissingAdminService       = errors.New("admin service is required")
	ErrMissingLogger             = errors.New("logger must not be nil")
	ErrMissingConfig             = errors.New("config must not be nil")
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithKeystore sets the keystore adapter.
func WithKeystore(store keystore.Store) Option {
	return func(sc *ServerContext) error {
		if store == nil {
			return ErrMissingKeystore
		}
		sc.store = store
		return nil
	}
}

// WithAuthenticator sets the authentication layer.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(sc *ServerContext) error {
		if a == nil {
			return ErrMissingAuthenticator
		}
		sc.authenticator = a
		return nil
	}
}

// WithSessionRegistry sets the session registry.
func WithSessionRegistry(r *session.Registry) Option {
	return func(sc *ServerContext) error {
		if r == nil {
			return ErrMissingSessionRegistry
		}
		sc.sessions = r
		return nil
	}
}

// WithRouter sets the command router.
func WithRouter(r *router.Router) Option {
	return func(sc *ServerContext) error {
		if r == nil {
			return ErrMissingRouter
		}
		sc.router = r
		return nil
	}
}

// WithCapabilityRegistry sets the capability registry.
func WithCapabilityRegistry(r *capability.Registry) Option {
	return func(sc *ServerContext) error {
		if r == nil {
			return ErrMissingCapabilityRegistry
		}
		sc.capabilities = r
		return nil
	}
}

// WithAdminService sets the admin service.
func WithAdminService(s *admin.Service) Option {
	return func(sc *ServerContext) error {
		if s == nil {
			return ErrMissingAdminService
		}
		sc.admin = s
		return nil
	}
}

// WithInstrumentation sets the metrics provider. Optional.
func WithInstrumentation(p *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.provider = p
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration. The config is cloned.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}
