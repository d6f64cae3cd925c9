// Package session implements the debugging-session registry: session records
// with TTL, the per-cluster fast-attention marker, and the correlation-ID
// index used by multi-agent chains.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
)

// TTL bounds for sessions, in seconds. Requests outside the range are clamped
// at the frontend; the registry enforces them again for internal callers.
const (
	MinTTLSeconds     = 60
	MaxTTLSeconds     = 3600
	DefaultTTLSeconds = 300
)

// ActiveMarkerTTL is the rolling TTL the router and executor stream apply to
// the cluster_active marker outside of session writes.
const ActiveMarkerTTL = 60 * time.Second

// ErrNotFound indicates the session does not exist (expired or ended). Plain
// lookups return a nil session instead; ErrNotFound is reserved for operations
// that require the session to be present.
var ErrNotFound = errors.New("session not found")

// Status values observable by clients.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
)

// Session is one ephemeral debugging session against a cluster.
type Session struct {
	ID              string    `json:"session_id"`
	ClusterID       string    `json:"cluster_id"`
	UserID          string    `json:"user_id,omitempty"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
	ServiceIdentity string    `json:"service_identity,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
	CommandCount    int       `json:"command_count"`
	TTLSeconds      int       `json:"ttl_seconds"`
}

// Event is published on the session_events channel for lifecycle transitions.
type Event struct {
	Type          string    `json:"type"`
	SessionID     string    `json:"session_id"`
	ClusterID     string    `json:"cluster_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Event types.
const (
	EventCreated = "session.created"
	EventEnded   = "session.ended"
)

// CreateParams are the inputs to Create. TTLSeconds of zero means the default.
type CreateParams struct {
	ClusterID       string
	UserID          string
	CorrelationID   string
	ServiceIdentity string
	TTLSeconds      int
}

// Registry owns every session key, the cluster_session and cluster_active
// indices, the active membership set, and the correlation index.
type Registry struct {
	store      keystore.Store
	logger     *slog.Logger
	defaultTTL int
}

// NewRegistry builds a session registry over the given store.
// defaultTTLSeconds is applied when a create request carries no TTL; zero
// keeps DefaultTTLSeconds.
func NewRegistry(store keystore.Store, logger *slog.Logger, defaultTTLSeconds int) *Registry {
	return &Registry{store: store, logger: logger, defaultTTL: defaultTTLSeconds}
}

// Create writes a new session and all of its indices with identical TTL, so
// the cluster_active marker can never expire before a session that references
// it.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*Session, error) {
	ttl := r.clampTTL(p.TTLSeconds)
	now := time.Now().UTC()
	s := &Session{
		ID:              uuid.NewString(),
		ClusterID:       p.ClusterID,
		UserID:          p.UserID,
		CorrelationID:   p.CorrelationID,
		ServiceIdentity: p.ServiceIdentity,
		CreatedAt:       now,
		LastActivity:    now,
		TTLSeconds:      ttl,
	}

	if err := r.write(ctx, s); err != nil {
		return nil, err
	}
	if err := r.store.SAdd(ctx, keystore.SessionsActiveKey, s.ID); err != nil {
		return nil, err
	}

	r.publishEvent(ctx, EventCreated, s)
	r.logger.Info("session created",
		logging.Session(s.ID),
		logging.Cluster(s.ClusterID),
		logging.Correlation(s.CorrelationID),
		slog.Int("ttl_seconds", ttl))
	return s, nil
}

// write persists the session record and refreshes every index that must not
// outlive it: cluster_session, cluster_active, and the correlation set.
func (r *Registry) write(ctx context.Context, s *Session) error {
	ttl := time.Duration(s.TTLSeconds) * time.Second

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := r.store.SetEx(ctx, keystore.SessionKey(s.ID), string(payload), ttl); err != nil {
		return err
	}
	if err := r.store.SetEx(ctx, keystore.ClusterSessionKey(s.ClusterID), s.ID, ttl); err != nil {
		return err
	}
	if err := r.store.SetEx(ctx, keystore.ClusterActiveKey(s.ClusterID), s.ID, ttl); err != nil {
		return err
	}
	if s.CorrelationID != "" {
		corrKey := keystore.CorrelationSessionsKey(s.CorrelationID)
		if err := r.store.SAdd(ctx, corrKey, s.ID); err != nil {
			return err
		}
		if _, err := r.store.Expire(ctx, corrKey, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the session, or nil when it no longer exists. A missing session
// is not an error on plain lookup.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	raw, ok, err := r.store.Get(ctx, keystore.SessionKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &s, nil
}

// KeepAlive reloads the session, bumps its activity counters, and re-writes it
// and every index with a refreshed TTL in one logical step.
func (r *Registry) KeepAlive(ctx context.Context, id string) (*Session, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.CommandCount++
	s.LastActivity = time.Now().UTC()
	if err := r.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// End deletes the session and all of its indices. The cluster_active marker is
// left to expire on its own so concurrent investigations aren't cut short;
// executor tokens are untouched.
func (r *Registry) End(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := r.store.Del(ctx,
		keystore.SessionKey(s.ID),
		keystore.ClusterSessionKey(s.ClusterID),
	); err != nil {
		return err
	}
	if err := r.store.SRem(ctx, keystore.SessionsActiveKey, s.ID); err != nil {
		return err
	}
	if s.CorrelationID != "" {
		if err := r.store.SRem(ctx, keystore.CorrelationSessionsKey(s.CorrelationID), s.ID); err != nil {
			return err
		}
	}

	r.publishEvent(ctx, EventEnded, s)
	r.logger.Info("session ended", logging.Session(s.ID), logging.Cluster(s.ClusterID))
	return nil
}

// IsClusterActive reports whether the cluster's fast-attention marker is
// present. Hot path: a single existence check.
func (r *Registry) IsClusterActive(ctx context.Context, clusterID string) (bool, error) {
	return r.store.Exists(ctx, keystore.ClusterActiveKey(clusterID))
}

// MarkClusterActive refreshes the cluster's fast-attention marker with the
// given TTL, creating it when absent. value is the session ID when one is
// known, "1" otherwise.
func (r *Registry) MarkClusterActive(ctx context.Context, clusterID, value string, ttl time.Duration) error {
	if value == "" {
		value = "1"
	}
	return r.store.SetEx(ctx, keystore.ClusterActiveKey(clusterID), value, ttl)
}

// Status derives the client-observable state of a session: active while the
// cluster's marker is present, idle once it has lapsed.
func (r *Registry) Status(ctx context.Context, s *Session) (string, error) {
	active, err := r.IsClusterActive(ctx, s.ClusterID)
	if err != nil {
		return "", err
	}
	if active {
		return StatusActive, nil
	}
	return StatusIdle, nil
}

// ActiveSessions scans the membership set, purging stale entries it
// encounters, and returns the live sessions.
func (r *Registry) ActiveSessions(ctx context.Context) ([]*Session, error) {
	ids, err := r.store.SMembers(ctx, keystore.SessionsActiveKey)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, ids, keystore.SessionsActiveKey)
}

// ByCorrelation returns the live sessions registered under a correlation ID,
// purging stale entries from the index as it goes.
func (r *Registry) ByCorrelation(ctx context.Context, correlationID string) ([]*Session, error) {
	key := keystore.CorrelationSessionsKey(correlationID)
	ids, err := r.store.SMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, ids, key)
}

func (r *Registry) resolve(ctx context.Context, ids []string, setKey string) ([]*Session, error) {
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			// Expired entry still in the set; purge it.
			if err := r.store.SRem(ctx, setKey, id); err != nil {
				return nil, err
			}
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// CleanupExpired sweeps the membership set against the presence of the session
// keys and returns how many stale entries were removed.
func (r *Registry) CleanupExpired(ctx context.Context) (int, error) {
	ids, err := r.store.SMembers(ctx, keystore.SessionsActiveKey)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		exists, err := r.store.Exists(ctx, keystore.SessionKey(id))
		if err != nil {
			return removed, err
		}
		if exists {
			continue
		}
		if err := r.store.SRem(ctx, keystore.SessionsActiveKey, id); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		r.logger.Debug("purged expired sessions", slog.Int("count", removed))
	}
	return removed, nil
}

func (r *Registry) publishEvent(ctx context.Context, eventType string, s *Session) {
	payload, err := json.Marshal(Event{
		Type:          eventType,
		SessionID:     s.ID,
		ClusterID:     s.ClusterID,
		CorrelationID: s.CorrelationID,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return
	}
	// Event delivery is best-effort; a lost event never fails the operation.
	if err := r.store.Publish(ctx, keystore.SessionEventsChannel, string(payload)); err != nil {
		r.logger.Warn("session event publish failed", logging.Err(err))
	}
}

func (r *Registry) clampTTL(seconds int) int {
	if seconds == 0 {
		seconds = r.defaultTTL
	}
	switch {
	case seconds == 0:
		return DefaultTTLSeconds
	case seconds < MinTTLSeconds:
		return MinTTLSeconds
	case seconds > MaxTTLSeconds:
		return MaxTTLSeconds
	default:
		return seconds
	}
}
