package server

import (
	"net/http"

	"github.com/giantswarm/kube-debug-gateway/internal/admin"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/validation"
)

type agentListResponse struct {
	Agents []admin.ExecutorStatus `json:"agents"`
}

// handleListAgents implements GET /admin/agents.
func (sc *ServerContext) handleListAgents(w http.ResponseWriter, r *http.Request) {
	clusters, err := sc.admin.ListClusters(r.Context())
	if err != nil {
		sc.writeError(w, err)
		return
	}

	agents := make([]admin.ExecutorStatus, 0, len(clusters))
	for _, clusterID := range clusters {
		status, err := sc.admin.ExecutorStatusFor(r.Context(), clusterID)
		if err != nil {
			sc.writeError(w, err)
			return
		}
		agents = append(agents, *status)
	}
	sc.writeJSON(w, http.StatusOK, agentListResponse{Agents: agents})
}

// handleAgentStatus implements GET /admin/agents/{cluster_id}/status.
func (sc *ServerContext) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	clusterID := r.PathValue("cluster_id")
	if err := validation.ClusterID(clusterID); err != nil {
		sc.writeError(w, err)
		return
	}
	status, err := sc.admin.ExecutorStatusFor(r.Context(), clusterID)
	if err != nil {
		sc.writeError(w, err)
		return
	}
	sc.writeJSON(w, http.StatusOK, status)
}

type tokenResponse struct {
	ClusterID string `json:"cluster_id"`
	Token     string `json:"token"`
}

// handleCreateAgentToken implements POST /admin/agents/{cluster_id}/token.
// The secret appears in this response and nowhere else; it is not readable
// afterwards.
func (sc *ServerContext) handleCreateAgentToken(w http.ResponseWriter, r *http.Request) {
	clusterID := r.PathValue("cluster_id")
	if err := validation.ClusterID(clusterID); err != nil {
		sc.writeError(w, err)
		return
	}
	token, err := sc.admin.CreateExecutorToken(r.Context(), clusterID)
	if err != nil {
		sc.writeError(w, err)
		return
	}
	sc.logger.Info("executor token created", logging.Cluster(clusterID))
	sc.writeJSON(w, http.StatusCreated, tokenResponse{ClusterID: clusterID, Token: token})
}

// handleRevokeAgentToken implements DELETE /admin/agents/{cluster_id}/token.
func (sc *ServerContext) handleRevokeAgentToken(w http.ResponseWriter, r *http.Request) {
	clusterID := r.PathValue("cluster_id")
	if err := validation.ClusterID(clusterID); err != nil {
		sc.writeError(w, err)
		return
	}
	if err := sc.admin.RevokeExecutorToken(r.Context(), clusterID); err != nil {
		sc.writeError(w, err)
		return
	}
	sc.logger.Info("executor token revoked", logging.Cluster(clusterID))
	w.WriteHeader(http.StatusNoContent)
}
