package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
	"github.com/giantswarm/kube-debug-gateway/internal/validation"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status. Encoding failures are logged and
// otherwise dropped; headers are already on the wire.
func (sc *ServerContext) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		sc.logger.Warn("response encoding failed", logging.Err(err))
	}
}

// writeError maps internal error kinds to status codes in one place.
// Validation errors and cluster mismatches are 400, credential failures 401,
// missing sessions/tokens 404, token conflicts 409, keystore loss 503;
// everything else is a logged 500.
func (sc *ServerContext) writeError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &verr), errors.Is(err, router.ErrSessionClusterMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, session.ErrNotFound), errors.Is(err, auth.ErrTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrTokenExists):
		status = http.StatusConflict
	case errors.Is(err, keystore.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		sc.logger.Error("request failed", logging.Err(err))
		sc.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	if status == http.StatusServiceUnavailable {
		sc.logger.Error("keystore unavailable", logging.SanitizedErr(err))
		sc.writeJSON(w, status, errorResponse{Error: "service unavailable"})
		return
	}
	sc.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeJSON decodes a request body into v, rejecting unknown junk sizes.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &validation.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	return nil
}
