package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
)

// Sentinel errors for authentication failures. Checked via errors.Is; the
// frontend maps them to HTTP status codes.
var (
	// ErrInvalidCredentials indicates no supplied credential was accepted.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenExists indicates an executor token is already registered for
	// the cluster. The existing token must be revoked first.
	ErrTokenExists = errors.New("executor token already exists")

	// ErrTokenNotFound indicates no executor token is registered for the
	// cluster.
	ErrTokenNotFound = errors.New("executor token not found")

	// ErrNoAPIKeys is fatal at startup: the gateway refuses to run without
	// at least one configured API key.
	ErrNoAPIKeys = errors.New("no api keys configured")
)

// Method identifies which credential pathway authenticated a caller.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
)

// Identity is the outcome of a successful authentication.
type Identity struct {
	// Subject is the authenticated principal: the bearer token's email or
	// subject for JWT, or the service identity (when present) for API keys.
	Subject string

	// ServiceIdentity is the label attached to the matched API key, empty
	// for anonymous keys and for JWT authentication.
	ServiceIdentity string

	// Method is the credential pathway that succeeded.
	Method Method
}

// TokenVerifier validates a bearer token and returns its subject. Implemented
// by OIDCVerifier; swapped for a stub in tests.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (subject string, err error)
}

// Authenticator validates caller credentials and manages executor tokens.
type Authenticator struct {
	keys     []APIKey
	verifier TokenVerifier
	store    keystore.Store
	audit    *AuditLog
	logger   *slog.Logger
}

// New builds an Authenticator. keys must be non-empty; verifier may be nil
// when no bearer-token provider is configured.
func New(store keystore.Store, keys []APIKey, verifier TokenVerifier, logger *slog.Logger) (*Authenticator, error) {
	if len(keys) == 0 {
		return nil, ErrNoAPIKeys
	}
	return &Authenticator{
		keys:     keys,
		verifier: verifier,
		store:    store,
		audit:    NewAuditLog(store, DefaultAuditLimit),
		logger:   logger,
	}, nil
}

// BearerEnabled reports whether a bearer-token verifier is configured.
func (a *Authenticator) BearerEnabled() bool { return a.verifier != nil }

// Audit exposes the audit ring for the admin surface.
func (a *Authenticator) Audit() *AuditLog { return a.audit }

// Authenticate validates the supplied credentials. When both are present the
// bearer token is tried first; on bearer failure the API key is the fallback.
// remote is recorded in the audit ring only.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey, bearer, remote string) (Identity, error) {
	if bearer != "" && a.verifier != nil {
		subject, err := a.verifier.Verify(ctx, bearer)
		if err == nil {
			id := Identity{Subject: subject, Method: MethodJWT}
			a.record(ctx, id.Method, id.Subject, remote, true, "")
			return id, nil
		}
		a.record(ctx, MethodJWT, "", remote, false, err.Error())
		a.logger.Debug("bearer verification failed, falling back to api key", logging.Err(err))
	}

	if apiKey != "" {
		if match, ok := a.matchAPIKey(apiKey); ok {
			id := Identity{
				Subject:         match.Service,
				ServiceIdentity: match.Service,
				Method:          MethodAPIKey,
			}
			a.record(ctx, id.Method, id.Subject, remote, true, "")
			return id, nil
		}
		a.record(ctx, MethodAPIKey, "", remote, false, "unknown api key")
	}

	return Identity{}, ErrInvalidCredentials
}

// matchAPIKey compares the candidate against every configured key in constant
// time. Scanning all keys regardless of an early match keeps the comparison
// count independent of which key was supplied.
func (a *Authenticator) matchAPIKey(candidate string) (APIKey, bool) {
	var matched APIKey
	found := 0
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(k.Key), []byte(candidate)) == 1 {
			matched = k
			found = 1
		}
	}
	return matched, found == 1
}

// AuthenticateExecutor validates an executor's bearer against the stored token
// for the claimed cluster. Comparison is constant-time.
func (a *Authenticator) AuthenticateExecutor(ctx context.Context, bearer, clusterID string) (bool, error) {
	stored, ok, err := a.store.Get(ctx, keystore.ExecutorTokenKey(clusterID))
	if err != nil {
		return false, err
	}
	if !ok {
		a.record(ctx, "executor", clusterID, "", false, "no token registered")
		return false, nil
	}
	valid := subtle.ConstantTimeCompare([]byte(stored), []byte(bearer)) == 1
	a.record(ctx, "executor", clusterID, "", valid, "")
	return valid, nil
}

// CreateExecutorToken mints and registers a new executor token for the
// cluster. Exactly one token may exist per cluster; a second create fails with
// ErrTokenExists until the first is revoked. The token is returned once and
// never readable again through the admin surface.
func (a *Authenticator) CreateExecutorToken(ctx context.Context, clusterID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating executor token: %w", err)
	}

	ok, err := a.store.SetNX(ctx, keystore.ExecutorTokenKey(clusterID), token, 0)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: cluster %s", ErrTokenExists, clusterID)
	}

	a.logger.Info("executor token created", logging.Cluster(clusterID))
	return token, nil
}

// RevokeExecutorToken removes the cluster's executor token.
func (a *Authenticator) RevokeExecutorToken(ctx context.Context, clusterID string) error {
	exists, err := a.store.Exists(ctx, keystore.ExecutorTokenKey(clusterID))
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: cluster %s", ErrTokenNotFound, clusterID)
	}
	if err := a.store.Del(ctx, keystore.ExecutorTokenKey(clusterID)); err != nil {
		return err
	}
	a.logger.Info("executor token revoked", logging.Cluster(clusterID))
	return nil
}

// HasExecutorToken reports whether a token is registered for the cluster.
func (a *Authenticator) HasExecutorToken(ctx context.Context, clusterID string) (bool, error) {
	return a.store.Exists(ctx, keystore.ExecutorTokenKey(clusterID))
}

func (a *Authenticator) record(ctx context.Context, method Method, identity, remote string, success bool, reason string) {
	if err := a.audit.Record(ctx, Event{
		Method:   string(method),
		Identity: identity,
		Remote:   remote,
		Success:  success,
		Reason:   reason,
	}); err != nil {
		// Auditing must not take down the request path.
		a.logger.Warn("audit record failed", logging.Err(err))
	}
}

// generateToken returns a 256-bit hex-encoded secret.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
