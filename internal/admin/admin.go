// Package admin implements the operator surface: executor token lifecycle,
// cluster discovery across the keystore namespaces, and per-cluster executor
// status.
package admin

import (
	"context"
	"log/slog"
	"sort"

	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
)

// ExecutorStatus reports what the gateway knows about one cluster's executor.
// Connected mirrors the presence of the fast-attention marker, which every
// live stream keeps refreshed.
type ExecutorStatus struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
	HasToken  bool   `json:"hasToken"`
}

// Service exposes the admin operations. Tokens are minted and revoked through
// the authenticator so secret handling stays in one place.
type Service struct {
	store  keystore.Store
	auth   *auth.Authenticator
	logger *slog.Logger
}

// NewService builds the admin service.
func NewService(store keystore.Store, authenticator *auth.Authenticator, logger *slog.Logger) *Service {
	return &Service{store: store, auth: authenticator, logger: logger}
}

// CreateExecutorToken mints a token for the cluster. The secret is returned
// once and only once; a second create fails with auth.ErrTokenExists.
func (s *Service) CreateExecutorToken(ctx context.Context, clusterID string) (string, error) {
	return s.auth.CreateExecutorToken(ctx, clusterID)
}

// RevokeExecutorToken removes the cluster's token and its active marker, so a
// revoked executor drops off the fast path immediately.
func (s *Service) RevokeExecutorToken(ctx context.Context, clusterID string) error {
	if err := s.auth.RevokeExecutorToken(ctx, clusterID); err != nil {
		return err
	}
	if err := s.store.Del(ctx, keystore.ClusterActiveKey(clusterID)); err != nil {
		s.logger.Warn("active marker cleanup failed", logging.Cluster(clusterID), logging.Err(err))
	}
	return nil
}

// ListClusters returns the deduplicated, sorted union of every cluster the
// gateway has seen: active markers, session indices, and registered tokens.
func (s *Service) ListClusters(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, pattern := range []string{
		keystore.ClusterActivePattern,
		keystore.ClusterSessionPattern,
		keystore.ExecutorTokenPattern,
	} {
		keys, err := s.store.Keys(ctx, pattern)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if id, ok := keystore.StripPrefix(key, pattern); ok {
				seen[id] = struct{}{}
			}
		}
	}

	clusters := make([]string, 0, len(seen))
	for id := range seen {
		clusters = append(clusters, id)
	}
	sort.Strings(clusters)
	return clusters, nil
}

// ExecutorStatusFor reports connectivity and token registration for one
// cluster.
func (s *Service) ExecutorStatusFor(ctx context.Context, clusterID string) (*ExecutorStatus, error) {
	connected, err := s.store.Exists(ctx, keystore.ClusterActiveKey(clusterID))
	if err != nil {
		return nil, err
	}
	hasToken, err := s.auth.HasExecutorToken(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	return &ExecutorStatus{ID: clusterID, Connected: connected, HasToken: hasToken}, nil
}
