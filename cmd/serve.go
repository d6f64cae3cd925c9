package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/kube-debug-gateway/internal/admin"
	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/capability"
	"github.com/giantswarm/kube-debug-gateway/internal/instrumentation"
	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/server"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
)

// newServeCmd creates the Cobra command for starting the gateway frontend.
func newServeCmd() *cobra.Command {
	config := ServeConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kube-debug-gateway HTTP frontend",
		Long: `Start the gateway frontend: the HTTP/JSON surface debugging agents call,
the SSE stream executor agents connect to, and the admin surface operators
manage executor tokens with.

The gateway requires a Redis-protocol keystore for session state, command
routing, and result hand-off. Credentials for debugging agents are static
API keys (--api-keys or KDG_API_KEYS, format 'service:key,key,...'); an
OIDC issuer/audience pair optionally enables JWT bearer tokens as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.loadEnvVars()
			if err := config.validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), config)
		},
	}

	cmd.Flags().StringVar(&config.HTTPAddr, "http-addr", ":8080", "Address for the HTTP listener")
	cmd.Flags().StringVar(&config.RedisAddr, "redis-addr", "localhost:6379", "Address of the Redis-protocol keystore")
	cmd.Flags().StringVar(&config.RedisPassword, "redis-password", "", "Keystore password (prefer KDG_REDIS_PASSWORD)")
	cmd.Flags().IntVar(&config.RedisDB, "redis-db", 0, "Keystore logical database")
	cmd.Flags().StringVar(&config.APIKeys, "api-keys", "", "Accepted API keys, 'service:key,key,...' (prefer KDG_API_KEYS)")
	cmd.Flags().StringVar(&config.OIDCIssuer, "oidc-issuer", "", "OIDC issuer URL enabling JWT bearer authentication")
	cmd.Flags().StringVar(&config.OIDCAudience, "oidc-audience", "", "Expected audience of JWT bearer tokens")
	cmd.Flags().StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&config.LogFormat, "log-format", "json", "Log format (json, text)")
	cmd.Flags().IntVar(&config.SessionTTLSeconds, "session-ttl", 300, "Default session TTL in seconds")
	cmd.Flags().IntVar(&config.CommandTimeoutSeconds, "command-timeout", 10, "Default per-command timeout in seconds")
	cmd.Flags().BoolVar(&config.ExecuteAPIKeyOnly, "execute-api-key-only", false, "Require an API key credential for command execution")
	cmd.Flags().DurationVar(&config.KeepaliveInterval, "keepalive-interval", server.DefaultKeepaliveInterval, "Executor stream keepalive cadence")
	cmd.Flags().DurationVar(&config.ShutdownTimeout, "shutdown-timeout", server.DefaultShutdownTimeout, "Graceful shutdown drain timeout")
	cmd.Flags().BoolVar(&config.DisableMetrics, "disable-metrics", false, "Disable the Prometheus metrics endpoint")

	return cmd
}

// buildServerContext assembles the full gateway stack from the serve
// configuration. Shared with the mcp subcommand, which runs the same stack
// behind a stdio transport instead of HTTP.
func buildServerContext(ctx context.Context, config ServeConfig) (*server.ServerContext, error) {
	logging.Setup(config.LogLevel, config.LogFormat)
	logger := slog.Default()

	keys, err := auth.ParseAPIKeys(config.APIKeys)
	if err != nil {
		return nil, fmt.Errorf("parsing api keys: %w", err)
	}

	store, err := keystore.NewRedisStore(ctx, keystore.Config{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to keystore at %s: %w", config.RedisAddr, err)
	}

	var verifier auth.TokenVerifier
	if config.OIDCIssuer != "" {
		verifier = auth.NewOIDCVerifier(config.OIDCIssuer, config.OIDCAudience, nil)
	}

	authenticator, err := auth.New(store, keys, verifier, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var provider *instrumentation.Provider
	var metrics *instrumentation.Metrics
	if !config.DisableMetrics {
		provider, err = instrumentation.NewProvider()
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("initializing instrumentation: %w", err)
		}
		metrics = provider.Metrics()
	}

	sessions := session.NewRegistry(store, logger, config.SessionTTLSeconds)
	commandRouter := router.New(store, sessions, logger, metrics, router.Config{
		DefaultTimeoutSeconds: config.CommandTimeoutSeconds,
	})

	serverConfig := server.NewDefaultConfig()
	serverConfig.Version = rootCmd.Version
	serverConfig.CommandTimeoutSeconds = config.CommandTimeoutSeconds
	serverConfig.ExecuteAPIKeyOnly = config.ExecuteAPIKeyOnly
	serverConfig.OIDCIssuer = config.OIDCIssuer
	serverConfig.OIDCAudience = config.OIDCAudience
	if config.KeepaliveInterval > 0 {
		serverConfig.KeepaliveInterval = config.KeepaliveInterval
	}
	if config.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = config.ShutdownTimeout
	}

	return server.NewServerContext(ctx,
		server.WithKeystore(store),
		server.WithAuthenticator(authenticator),
		server.WithSessionRegistry(sessions),
		server.WithRouter(commandRouter),
		server.WithCapabilityRegistry(capability.NewRegistry(store, logger, 0)),
		server.WithAdminService(admin.NewService(store, authenticator, logger)),
		server.WithInstrumentation(provider),
		server.WithLogger(logger),
		server.WithConfig(serverConfig),
	)
}

// runServe builds the stack and runs the HTTP frontend until a signal or a
// listener error stops it.
func runServe(ctx context.Context, config ServeConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := buildServerContext(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := sc.Shutdown(); err != nil {
			sc.Logger().Warn("shutdown error", logging.Err(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           sc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sc.Logger().Info("gateway listening",
			slog.String("addr", config.HTTPAddr),
			slog.String("version", rootCmd.Version))
		sc.SetReady(true)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Periodic sweep of session index entries whose backing keys expired.
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if removed, err := sc.Sessions().CleanupExpired(gctx); err != nil {
					sc.Logger().Warn("session cleanup failed", logging.Err(err))
				} else if removed > 0 {
					sc.Logger().Debug("expired sessions swept", slog.Int("removed", removed))
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		sc.SetReady(false)
		sc.Logger().Info("draining connections",
			slog.Duration("timeout", sc.Config().ShutdownTimeout))

		drainCtx, cancel := context.WithTimeout(context.Background(), sc.Config().ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(drainCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("gateway terminated: %w", err)
	}
	sc.Logger().Info("gateway stopped")
	return nil
}
