package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
)

func newTestRegistry(t *testing.T) (*Registry, keystore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := keystore.NewRedisStoreFromClient(client)
	t.Cleanup(func() { _ = store.Close() })
	logger := slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRegistry(store, logger, 0), store, mr
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestCreateWritesAllIndices(t *testing.T) {
	r, store, mr := newTestRegistry(t)
	ctx := context.Background()

	s, err := r.Create(ctx, CreateParams{
		ClusterID:       "prod-us-1",
		UserID:          "dev@example.com",
		CorrelationID:   "corr-42",
		ServiceIdentity: "billing",
		TTLSeconds:      120,
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, 120, s.TTLSeconds)

	// Session record.
	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "prod-us-1", got.ClusterID)
	assert.Equal(t, "billing", got.ServiceIdentity)

	// Indices carry the session ID.
	val, _, err := store.Get(ctx, keystore.ClusterSessionKey("prod-us-1"))
	require.NoError(t, err)
	assert.Equal(t, s.ID, val)
	val, _, err = store.Get(ctx, keystore.ClusterActiveKey("prod-us-1"))
	require.NoError(t, err)
	assert.Equal(t, s.ID, val)

	// The marker TTL is never shorter than the session TTL.
	sessionTTL := mr.TTL(keystore.SessionKey(s.ID))
	markerTTL := mr.TTL(keystore.ClusterActiveKey("prod-us-1"))
	assert.GreaterOrEqual(t, markerTTL, sessionTTL)

	members, err := store.SMembers(ctx, keystore.SessionsActiveKey)
	require.NoError(t, err)
	assert.Contains(t, members, s.ID)

	corr, err := store.SMembers(ctx, keystore.CorrelationSessionsKey("corr-42"))
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, corr)
}

func TestCreateClampsTTL(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero means default", 0, DefaultTTLSeconds},
		{"below minimum", 10, MinTTLSeconds},
		{"above maximum", 100000, MaxTTLSeconds},
		{"in range", 600, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Create(ctx, CreateParams{ClusterID: "c", TTLSeconds: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.TTLSeconds)
		})
	}
}

func TestCreateUsesConfiguredDefaultTTL(t *testing.T) {
	_, store, _ := newTestRegistry(t)
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	ctx := context.Background()

	r := NewRegistry(store, logger, 600)
	s, err := r.Create(ctx, CreateParams{ClusterID: "c"})
	require.NoError(t, err)
	assert.Equal(t, 600, s.TTLSeconds)

	// An explicit request TTL overrides the configured default.
	s, err = r.Create(ctx, CreateParams{ClusterID: "c", TTLSeconds: 120})
	require.NoError(t, err)
	assert.Equal(t, 120, s.TTLSeconds)

	// The configured default is clamped like any other TTL.
	low := NewRegistry(store, logger, 10)
	s, err = low.Create(ctx, CreateParams{ClusterID: "c"})
	require.NoError(t, err)
	assert.Equal(t, MinTTLSeconds, s.TTLSeconds)
}

func TestGetMissingSessionIsNotAnError(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	s, err := r.Get(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestKeepAliveExtendsEverything(t *testing.T) {
	r, _, mr := newTestRegistry(t)
	ctx := context.Background()

	s, err := r.Create(ctx, CreateParams{ClusterID: "c1", CorrelationID: "corr-1", TTLSeconds: 120})
	require.NoError(t, err)

	// Let some TTL elapse, then keep alive.
	mr.FastForward(60 * time.Second)
	kept, err := r.KeepAlive(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, kept.CommandCount)
	assert.True(t, kept.LastActivity.After(s.LastActivity) || kept.LastActivity.Equal(s.LastActivity))

	// All TTLs are back to the full window.
	assert.Equal(t, 120*time.Second, mr.TTL(keystore.SessionKey(s.ID)))
	assert.Equal(t, 120*time.Second, mr.TTL(keystore.ClusterActiveKey("c1")))
	assert.Equal(t, 120*time.Second, mr.TTL(keystore.ClusterSessionKey("c1")))
	assert.Equal(t, 120*time.Second, mr.TTL(keystore.CorrelationSessionsKey("corr-1")))

	_, err = r.KeepAlive(ctx, "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndLeavesNoResidualKeys(t *testing.T) {
	r, store, _ := newTestRegistry(t)
	ctx := context.Background()

	// Executor token for the same cluster must survive session teardown.
	require.NoError(t, store.Set(ctx, keystore.ExecutorTokenKey("c1"), "tok"))

	s, err := r.Create(ctx, CreateParams{ClusterID: "c1", CorrelationID: "corr-9"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = r.KeepAlive(ctx, s.ID)
		require.NoError(t, err)
	}
	require.NoError(t, r.End(ctx, s.ID))

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := store.Exists(ctx, keystore.ClusterSessionKey("c1"))
	require.NoError(t, err)
	assert.False(t, exists)

	members, err := store.SMembers(ctx, keystore.SessionsActiveKey)
	require.NoError(t, err)
	assert.NotContains(t, members, s.ID)

	corr, err := store.SMembers(ctx, keystore.CorrelationSessionsKey("corr-9"))
	require.NoError(t, err)
	assert.Empty(t, corr)

	exists, err = store.Exists(ctx, keystore.ExecutorTokenKey("c1"))
	require.NoError(t, err)
	assert.True(t, exists, "executor token unaffected by end_session")

	assert.ErrorIs(t, r.End(ctx, s.ID), ErrNotFound)
}

func TestCorrelationFanOut(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s1, err := r.Create(ctx, CreateParams{ClusterID: "c1", CorrelationID: "corr-42"})
	require.NoError(t, err)
	s2, err := r.Create(ctx, CreateParams{ClusterID: "c2", CorrelationID: "corr-42"})
	require.NoError(t, err)

	sessions, err := r.ByCorrelation(ctx, "corr-42")
	require.NoError(t, err)
	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, ids)

	// Ending one leaves the other in the index.
	require.NoError(t, r.End(ctx, s1.ID))
	sessions, err = r.ByCorrelation(ctx, "corr-42")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, s2.ID, sessions[0].ID)
}

func TestActiveSessionsPurgesStaleEntries(t *testing.T) {
	r, store, mr := newTestRegistry(t)
	ctx := context.Background()

	s1, err := r.Create(ctx, CreateParams{ClusterID: "c1", TTLSeconds: 60})
	require.NoError(t, err)
	s2, err := r.Create(ctx, CreateParams{ClusterID: "c2", TTLSeconds: 3600})
	require.NoError(t, err)

	// Expire s1's record; its membership entry lingers until swept.
	mr.FastForward(61 * time.Second)

	sessions, err := r.ActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, s2.ID, sessions[0].ID)

	members, err := store.SMembers(ctx, keystore.SessionsActiveKey)
	require.NoError(t, err)
	assert.NotContains(t, members, s1.ID, "stale entry purged during scan")
}

func TestCleanupExpired(t *testing.T) {
	r, _, mr := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, CreateParams{ClusterID: "c1", TTLSeconds: 60})
	require.NoError(t, err)
	_, err = r.Create(ctx, CreateParams{ClusterID: "c2", TTLSeconds: 3600})
	require.NoError(t, err)

	mr.FastForward(61 * time.Second)

	removed, err := r.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = r.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestClusterActiveMarker(t *testing.T) {
	r, _, mr := newTestRegistry(t)
	ctx := context.Background()

	active, err := r.IsClusterActive(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, r.MarkClusterActive(ctx, "c1", "", ActiveMarkerTTL))
	active, err = r.IsClusterActive(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, ActiveMarkerTTL, mr.TTL(keystore.ClusterActiveKey("c1")))

	mr.FastForward(ActiveMarkerTTL + time.Second)
	active, err = r.IsClusterActive(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, active, "marker expiry is TTL-only")
}

func TestSessionStatus(t *testing.T) {
	r, _, mr := newTestRegistry(t)
	ctx := context.Background()

	s, err := r.Create(ctx, CreateParams{ClusterID: "c1", TTLSeconds: 60})
	require.NoError(t, err)

	status, err := r.Status(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	// Drop only the marker: the session turns idle.
	mr.Del(keystore.ClusterActiveKey("c1"))
	status, err = r.Status(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
}

func TestSessionEventsPublished(t *testing.T) {
	r, store, _ := newTestRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := store.Subscribe(ctx, keystore.SessionEventsChannel)
	require.NoError(t, err)
	defer sub.Close()

	s, err := r.Create(ctx, CreateParams{ClusterID: "c1"})
	require.NoError(t, err)

	select {
	case msg := <-sub.Messages():
		assert.Contains(t, msg, EventCreated)
		assert.Contains(t, msg, s.ID)
	case <-ctx.Done():
		t.Fatal("no session.created event")
	}

	require.NoError(t, r.End(ctx, s.ID))
	select {
	case msg := <-sub.Messages():
		assert.Contains(t, msg, EventEnded)
	case <-ctx.Done():
		t.Fatal("no session.ended event")
	}
}
