package server

import (
	"net/http"
	"time"
)

// handleHealthz implements GET /healthz: liveness only, no dependencies.
func (sc *ServerContext) handleHealthz(w http.ResponseWriter, r *http.Request) {
	sc.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz implements GET /readyz. Readiness requires the listener flag
// and a responsive keystore; a gateway that cannot reach its keystore cannot
// serve anything.
func (sc *ServerContext) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !sc.ready.Load() || sc.IsShutdown() {
		sc.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	if err := sc.store.Ping(r.Context()); err != nil {
		sc.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "keystore unreachable",
		})
		return
	}
	sc.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type healthReport struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Keystore         string `json:"keystore"`
	ActiveSessions   int    `json:"active_sessions"`
	ConnectedStreams int64  `json:"connected_streams"`
}

// handleHealth implements GET /health: the detailed report operators read.
// Unlike readyz this always answers 200 so the body stays inspectable even
// when a dependency is down; Status carries the verdict.
func (sc *ServerContext) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := healthReport{
		Status:           "ok",
		Version:          sc.config.Version,
		UptimeSeconds:    int64(time.Since(sc.startTime) / time.Second),
		Keystore:         "ok",
		ConnectedStreams: sc.ConnectedStreams(),
	}

	if err := sc.store.Ping(r.Context()); err != nil {
		report.Status = "degraded"
		report.Keystore = "unreachable"
	} else if sessions, err := sc.sessions.ActiveSessions(r.Context()); err == nil {
		report.ActiveSessions = len(sessions)
	}

	sc.writeJSON(w, http.StatusOK, report)
}
