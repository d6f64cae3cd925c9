package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/kube-debug-gateway/internal/admin"
	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/capability"
	"github.com/giantswarm/kube-debug-gateway/internal/instrumentation"
	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
)

// ServerContext encapsulates all dependencies needed by the frontend and
// provides lifecycle management. Components are injected through functional
// options; there are no hidden globals.
type ServerContext struct {
	store         keystore.Store
	authenticator *auth.Authenticator
	sessions      *session.Registry
	router        *router.Router
	capabilities  *capability.Registry
	admin         *admin.Service
	provider      *instrumentation.Provider
	logger        *slog.Logger
	config        *Config

	// connectedStreams counts live executor streams for health reporting.
	connectedStreams atomic.Int64

	// ready flips once the listener is accepting; readyz reports 503 until
	// then so rollouts never route traffic to a booting instance.
	ready     atomic.Bool
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a ServerContext with the given options and
// validates that every required dependency is present.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:       serverCtx,
		cancel:    cancel,
		config:    NewDefaultConfig(),
		logger:    slog.Default(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}
	return sc, nil
}

func (sc *ServerContext) validate() error {
	switch {
	case sc.store == nil:
		return ErrMissingKeystore
	case sc.authenticator == nil:
		return ErrMissingAuthenticator
	case sc.sessions == nil:
		return ErrMissingSessionRegistry
	case sc.router == nil:
		return ErrMissingRouter
	case sc.capabilities == nil:
		return ErrMissingCapabilityRegistry
	case sc.admin == nil:
		return ErrMissingAdminService
	}
	return sc.config.Validate()
}

// Store returns the keystore adapter.
func (sc *ServerContext) Store() keystore.Store { return sc.store }

// Authenticator returns the authentication layer.
func (sc *ServerContext) Authenticator() *auth.Authenticator { return sc.authenticator }

// Sessions returns the session registry.
func (sc *ServerContext) Sessions() *session.Registry { return sc.sessions }

// Router returns the command router.
func (sc *ServerContext) Router() *router.Router { return sc.router }

// Capabilities returns the capability registry.
func (sc *ServerContext) Capabilities() *capability.Registry { return sc.capabilities }

// Admin returns the admin service.
func (sc *ServerContext) Admin() *admin.Service { return sc.admin }

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// Config returns the active configuration.
func (sc *ServerContext) Config() *Config { return sc.config }

// Metrics returns the gateway metric set; nil when instrumentation is
// disabled, which every recording method tolerates.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.provider.Metrics() }

// Provider returns the instrumentation provider, possibly nil.
func (sc *ServerContext) Provider() *instrumentation.Provider { return sc.provider }

// Context returns the lifecycle context; it is cancelled on shutdown.
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// ConnectedStreams reports the number of live executor streams.
func (sc *ServerContext) ConnectedStreams() int64 { return sc.connectedStreams.Load() }

// SetReady marks the server ready (or not) for the readiness probe.
func (sc *ServerContext) SetReady(ready bool) { sc.ready.Store(ready) }

// Shutdown cancels the lifecycle context and closes the keystore. It is safe
// to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return nil
	}
	sc.shutdown = true

	sc.cancel()
	if sc.provider != nil {
		if err := sc.provider.Shutdown(context.Background()); err != nil {
			sc.logger.Warn("instrumentation shutdown failed", "error", err)
		}
	}
	return sc.store.Close()
}

// IsShutdown reports whether Shutdown has run.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}
