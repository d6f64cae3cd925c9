package server

import (
	"net/http"

	"github.com/giantswarm/kube-debug-gateway/internal/server/middleware"
)

// Handler builds the complete HTTP surface: debug, executor, admin, health,
// discovery, and metrics routes behind the middleware chain.
//
// Ordering matters. Security headers wrap everything, metrics observe every
// request including rejected ones, and client auth runs innermost so the
// handlers can rely on an identity being present (executor routes authenticate
// themselves).
func (sc *ServerContext) Handler() http.Handler {
	mux := http.NewServeMux()

	// Client surface
	mux.HandleFunc("POST /debug/session", sc.handleCreateSession)
	mux.HandleFunc("GET /debug/session/{id}", sc.handleGetSession)
	mux.HandleFunc("DELETE /debug/session/{id}", sc.handleDeleteSession)
	mux.HandleFunc("POST /debug/execute", sc.handleExecute)
	mux.HandleFunc("GET /debug/clusters", sc.handleListClusters)
	mux.HandleFunc("GET /debug/correlation/{id}/sessions", sc.handleCorrelationSessions)

	// Executor surface
	mux.HandleFunc("GET /executor/stream", sc.handleExecutorStream)
	mux.HandleFunc("POST /executor/results", sc.handleExecutorResults)
	mux.HandleFunc("POST /executor/capabilities", sc.handleExecutorCapabilities)

	// Admin surface
	mux.HandleFunc("GET /admin/agents", sc.handleListAgents)
	mux.HandleFunc("GET /admin/agents/{cluster_id}/status", sc.handleAgentStatus)
	mux.HandleFunc("POST /admin/agents/{cluster_id}/token", sc.handleCreateAgentToken)
	mux.HandleFunc("DELETE /admin/agents/{cluster_id}/token", sc.handleRevokeAgentToken)

	// Probes and discovery
	mux.HandleFunc("GET /healthz", sc.handleHealthz)
	mux.HandleFunc("GET /readyz", sc.handleReadyz)
	mux.HandleFunc("GET /health", sc.handleHealth)
	mux.HandleFunc("GET "+discoveryPath, sc.handleDiscovery)

	if sc.provider != nil {
		mux.Handle("GET /metrics", sc.provider.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.ClientAuth(sc.authenticator, sc.Metrics(), sc.logger)(handler)
	handler = middleware.HTTPMetrics(sc.Metrics())(handler)
	handler = middleware.SecurityHeaders(middleware.SecurityHeadersConfig{})(handler)
	return handler
}
