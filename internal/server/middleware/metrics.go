package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/giantswarm/kube-debug-gateway/internal/instrumentation"
)

// responseWriter captures the status code while preserving Flusher, which the
// executor SSE stream depends on.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPMetrics records request totals and durations. metrics may be nil.
func HTTPMetrics(metrics *instrumentation.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			metrics.RecordHTTPRequest(r.Context(), r.Method, normalizePath(r.URL.Path), rw.status, time.Since(start))
		})
	}
}

// normalizePath collapses identifier segments so metric cardinality stays
// bounded by the route table, not by session or cluster counts.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/debug/session/"):
		return "/debug/session/{id}"
	case strings.HasPrefix(path, "/admin/agents/"):
		rest := strings.TrimPrefix(path, "/admin/agents/")
		if strings.HasSuffix(rest, "/token") {
			return "/admin/agents/{cluster_id}/token"
		}
		if strings.HasSuffix(rest, "/status") {
			return "/admin/agents/{cluster_id}/status"
		}
		return "/admin/agents/{cluster_id}"
	case strings.HasPrefix(path, "/.well-known/"):
		return "/.well-known"
	default:
		return path
	}
}
