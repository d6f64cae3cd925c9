package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/instrumentation"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
)

// identityContextKey carries the authenticated identity through the request
// context.
type identityContextKey struct{}

// LoopbackSubject is the identity assigned to unauthenticated loopback
// callers (the bundled agent talking to its own frontend).
const LoopbackSubject = "loopback"

// IdentityFromContext returns the identity the auth middleware attached.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(auth.Identity)
	return id, ok
}

// WithIdentity attaches an identity to the context. Exposed for tests and for
// the in-process MCP facade, which bypasses HTTP.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// openPaths are reachable without any credential: health probes and the auth
// discovery document.
var openPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/health":  true,
}

func isOpenPath(path string) bool {
	return openPaths[path] || strings.HasPrefix(path, "/.well-known/")
}

// isExecutorPath reports whether the request targets the executor surface,
// which authenticates with per-cluster tokens inside its handlers rather than
// through this middleware.
func isExecutorPath(path string) bool {
	return strings.HasPrefix(path, "/executor/")
}

// ClientAuth authenticates every request on the public surface. Requests
// without an accepted credential are rejected with 401, except for the open
// discovery/health paths and loopback callers. The loopback exemption is
// address-based: only connections from localhost qualify.
func ClientAuth(authenticator *auth.Authenticator, metrics *instrumentation.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpenPath(r.URL.Path) || isExecutorPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-Api-Key")
			bearer := bearerToken(r)

			if apiKey == "" && bearer == "" && isLoopback(r.RemoteAddr) {
				ctx := WithIdentity(r.Context(), auth.Identity{Subject: LoopbackSubject})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), apiKey, bearer, r.RemoteAddr)
			if err != nil {
				metrics.RecordAuthAttempt(r.Context(), "client", false)
				logger.Debug("authentication rejected",
					logging.Remote(r.RemoteAddr),
					slog.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
				return
			}
			metrics.RecordAuthAttempt(r.Context(), string(identity.Method), true)

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// isLoopback reports whether the remote address is a localhost connection.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
