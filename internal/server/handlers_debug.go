package server

import (
	"net/http"

	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/server/middleware"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
	"github.com/giantswarm/kube-debug-gateway/internal/validation"
)

// Correlation and service-identity headers accepted on the client surface.
const (
	headerCorrelationID   = "X-Correlation-Id"
	headerServiceIdentity = "X-Service-Identity"
)

type createSessionRequest struct {
	ClusterID  string `json:"cluster_id"`
	UserID     string `json:"user_id,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// sessionResponse is the session record plus its derived status.
type sessionResponse struct {
	*session.Session
	Status string `json:"status"`
}

// handleCreateSession implements POST /debug/session.
func (sc *ServerContext) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		sc.writeError(w, err)
		return
	}
	if err := validation.ClusterID(req.ClusterID); err != nil {
		sc.writeError(w, err)
		return
	}

	serviceIdentity := r.Header.Get(headerServiceIdentity)
	if serviceIdentity == "" {
		if id, ok := middleware.IdentityFromContext(r.Context()); ok {
			serviceIdentity = id.ServiceIdentity
		}
	}

	s, err := sc.sessions.Create(r.Context(), session.CreateParams{
		ClusterID:       req.ClusterID,
		UserID:          req.UserID,
		CorrelationID:   r.Header.Get(headerCorrelationID),
		ServiceIdentity: serviceIdentity,
		TTLSeconds:      req.TTLSeconds,
	})
	if err != nil {
		sc.writeError(w, err)
		return
	}

	sc.Metrics().SessionOpened(r.Context())
	sc.writeJSON(w, http.StatusCreated, sessionResponse{Session: s, Status: session.StatusActive})
}

// handleGetSession implements GET /debug/session/{id}.
func (sc *ServerContext) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := sc.sessions.Get(r.Context(), id)
	if err != nil {
		sc.writeError(w, err)
		return
	}
	if s == nil {
		sc.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}

	status, err := sc.sessions.Status(r.Context(), s)
	if err != nil {
		sc.writeError(w, err)
		return
	}
	sc.writeJSON(w, http.StatusOK, sessionResponse{Session: s, Status: status})
}

// handleDeleteSession implements DELETE /debug/session/{id}.
func (sc *ServerContext) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := sc.sessions.End(r.Context(), r.PathValue("id")); err != nil {
		sc.writeError(w, err)
		return
	}
	sc.Metrics().SessionClosed(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type executeRequest struct {
	ClusterID      string   `json:"cluster_id"`
	SessionID      string   `json:"session_id,omitempty"`
	CommandType    string   `json:"command_type"`
	Args           []string `json:"args"`
	Namespace      string   `json:"namespace,omitempty"`
	ExtraArgs      []string `json:"extra_args,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

// handleExecute implements POST /debug/execute. All wire validation happens
// here; nothing rejected below ever reaches the router or the executor
// channel.
func (sc *ServerContext) handleExecute(w http.ResponseWriter, r *http.Request) {
	if sc.config.ExecuteAPIKeyOnly {
		id, ok := middleware.IdentityFromContext(r.Context())
		if !ok || (id.Method != auth.MethodAPIKey && id.Subject != middleware.LoopbackSubject) {
			sc.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "execute requires an api key credential"})
			return
		}
	}

	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		sc.writeError(w, err)
		return
	}
	if err := validation.ClusterID(req.ClusterID); err != nil {
		sc.writeError(w, err)
		return
	}
	if err := validation.CommandType(req.CommandType); err != nil {
		sc.writeError(w, err)
		return
	}
	if err := validation.Args(req.Args); err != nil {
		sc.writeError(w, err)
		return
	}
	if err := validation.ExtraArgs(req.ExtraArgs); err != nil {
		sc.writeError(w, err)
		return
	}

	result, err := sc.router.Execute(r.Context(), router.Request{
		ClusterID:      req.ClusterID,
		SessionID:      req.SessionID,
		CommandType:    req.CommandType,
		Args:           req.Args,
		Namespace:      req.Namespace,
		ExtraArgs:      req.ExtraArgs,
		TimeoutSeconds: req.TimeoutSeconds,
		CorrelationID:  r.Header.Get(headerCorrelationID),
	})
	if err != nil {
		sc.writeError(w, err)
		return
	}

	sc.logger.Debug("execute served",
		logging.Cluster(req.ClusterID),
		logging.Command(result.CommandID),
		logging.Status(result.Status))
	sc.writeJSON(w, http.StatusOK, result)
}

type clustersResponse struct {
	Clusters []string `json:"clusters"`
}

// handleListClusters implements GET /debug/clusters.
func (sc *ServerContext) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := sc.admin.ListClusters(r.Context())
	if err != nil {
		sc.writeError(w, err)
		return
	}
	sc.writeJSON(w, http.StatusOK, clustersResponse{Clusters: clusters})
}

// handleCorrelationSessions implements GET /debug/correlation/{id}/sessions,
// the fan-out lookup multi-agent chains use to find their sibling sessions.
func (sc *ServerContext) handleCorrelationSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := sc.sessions.ByCorrelation(r.Context(), r.PathValue("id"))
	if err != nil {
		sc.writeError(w, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		status, err := sc.sessions.Status(r.Context(), s)
		if err != nil {
			sc.writeError(w, err)
			return
		}
		out = append(out, sessionResponse{Session: s, Status: status})
	}
	sc.writeJSON(w, http.StatusOK, map[string][]sessionResponse{"sessions": out})
}
