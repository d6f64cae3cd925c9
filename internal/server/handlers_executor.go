package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/giantswarm/kube-debug-gateway/internal/capability"
	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/validation"
)

// headerClusterID names the cluster an executor claims on its requests.
const headerClusterID = "X-Cluster-Id"

// SSE event names on the executor stream.
const (
	eventConnected = "connected"
	eventCommand   = "command"
	eventKeepalive = "keepalive"
)

// authenticateExecutor validates the executor bearer against the claimed
// cluster. It returns the cluster ID, or writes the error response and
// returns "".
func (sc *ServerContext) authenticateExecutor(w http.ResponseWriter, r *http.Request) string {
	clusterID := r.Header.Get(headerClusterID)
	if err := validation.ClusterID(clusterID); err != nil {
		sc.writeError(w, err)
		return ""
	}

	bearer := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		bearer = strings.TrimPrefix(header, "Bearer ")
	}
	if bearer == "" {
		sc.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "executor bearer token required"})
		return ""
	}

	ok, err := sc.authenticator.AuthenticateExecutor(r.Context(), bearer, clusterID)
	if err != nil {
		sc.writeError(w, err)
		return ""
	}
	if !ok {
		sc.Metrics().RecordAuthAttempt(r.Context(), "executor", false)
		sc.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid executor credentials"})
		return ""
	}
	sc.Metrics().RecordAuthAttempt(r.Context(), "executor", true)
	return clusterID
}

// handleExecutorStream implements GET /executor/stream: the long-lived SSE
// push channel delivering connected, command, and keepalive events.
//
// Disconnect never deletes the cluster_active marker. Multiple executors may
// serve one cluster, and a marker deleted by one disconnecting would falsely
// mark the cluster idle for the others; expiry is TTL-only.
func (sc *ServerContext) handleExecutorStream(w http.ResponseWriter, r *http.Request) {
	clusterID := sc.authenticateExecutor(w, r)
	if clusterID == "" {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sc.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	logger := logging.WithCluster(sc.logger, clusterID)

	// The initial marker write is set-if-absent so an existing window isn't
	// shortened; failure is logged but never fatal to the stream.
	if _, err := sc.store.SetNX(r.Context(), keystore.ClusterActiveKey(clusterID), "1", sc.config.StreamMarkerTTL); err != nil {
		logger.Warn("active marker write failed", logging.SanitizedErr(err))
	}

	// The stream lives until the executor disconnects or the server shuts
	// down, whichever comes first.
	ctx := r.Context()
	sub, err := sc.store.Subscribe(ctx, keystore.ExecutorCommandsChannel(clusterID))
	if err != nil {
		sc.writeError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sc.connectedStreams.Add(1)
	sc.Metrics().StreamConnected(ctx, clusterID)
	logger.Info("executor connected")
	defer func() {
		sc.connectedStreams.Add(-1)
		sc.Metrics().StreamDisconnected(ctx, clusterID)
		logger.Info("executor disconnected")
	}()

	writeEvent(w, eventConnected, fmt.Sprintf(`{"cluster_id":%q}`, clusterID))
	flusher.Flush()

	// Keepalives run on a wall clock, not on subscription wakeups, so
	// intermediaries with idle timeouts see a predictable cadence.
	ticker := time.NewTicker(sc.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sc.ctx.Done():
			return
		case msg, open := <-sub.Messages():
			if !open {
				return
			}
			writeEvent(w, eventCommand, msg)
			flusher.Flush()
			sc.renewClusterActive(ctx, clusterID, logger)
		case <-ticker.C:
			sc.renewClusterActive(ctx, clusterID, logger)
			writeEvent(w, eventKeepalive, fmt.Sprintf(`{"timestamp":%q}`, time.Now().UTC().Format(time.RFC3339)))
			flusher.Flush()
		}
	}
}

// renewClusterActive extends the marker TTL, re-creating the marker when it
// lapsed between heartbeats, and refreshes the capability profile TTL as the
// heartbeat side effect. Failures are logged and swallowed; a missed renewal
// only shortens the activity window.
func (sc *ServerContext) renewClusterActive(ctx context.Context, clusterID string, logger *slog.Logger) {
	renewed, err := sc.store.Expire(ctx, keystore.ClusterActiveKey(clusterID), sc.config.StreamMarkerTTL)
	if err != nil {
		logger.Warn("active marker renewal failed", logging.SanitizedErr(err))
		return
	}
	if !renewed {
		if _, err := sc.store.SetNX(ctx, keystore.ClusterActiveKey(clusterID), "1", sc.config.StreamMarkerTTL); err != nil {
			logger.Warn("active marker rewrite failed", logging.SanitizedErr(err))
		}
	}
	if err := sc.capabilities.Refresh(ctx, clusterID); err != nil {
		logger.Warn("capability refresh failed", logging.SanitizedErr(err))
	}
}

// writeEvent emits one SSE frame.
func writeEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// handleExecutorResults implements POST /executor/results: the short request
// an executor uses to hand back one result.
func (sc *ServerContext) handleExecutorResults(w http.ResponseWriter, r *http.Request) {
	clusterID := sc.authenticateExecutor(w, r)
	if clusterID == "" {
		return
	}

	var result router.Result
	if err := decodeJSON(r, &result); err != nil {
		sc.writeError(w, err)
		return
	}
	if err := sc.router.StoreResult(r.Context(), &result); err != nil {
		sc.writeError(w, err)
		return
	}

	sc.logger.Debug("result accepted",
		logging.Cluster(clusterID),
		logging.Command(result.CommandID),
		logging.Status(result.Status))
	sc.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleExecutorCapabilities implements POST /executor/capabilities: profile
// intake on connect and on heartbeat.
func (sc *ServerContext) handleExecutorCapabilities(w http.ResponseWriter, r *http.Request) {
	clusterID := sc.authenticateExecutor(w, r)
	if clusterID == "" {
		return
	}

	var profile capability.Profile
	if err := decodeJSON(r, &profile); err != nil {
		sc.writeError(w, err)
		return
	}
	// The authenticated cluster wins over whatever the body claims.
	profile.ClusterID = clusterID

	stored, err := sc.capabilities.Store(r.Context(), profile)
	if err != nil {
		sc.writeError(w, err)
		return
	}
	sc.writeJSON(w, http.StatusOK, stored)
}
