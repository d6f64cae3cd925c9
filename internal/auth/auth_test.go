package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
)

func newTestStore(t *testing.T) keystore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := keystore.NewRedisStoreFromClient(client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

// stubVerifier lets tests drive the bearer pathway without a provider.
type stubVerifier struct {
	subject string
	err     error
}

func (s *stubVerifier) Verify(_ context.Context, _ string) (string, error) {
	return s.subject, s.err
}

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []APIKey
		wantErr bool
	}{
		{
			name: "bare key",
			raw:  "secret-1",
			want: []APIKey{{Key: "secret-1"}},
		},
		{
			name: "service qualified",
			raw:  "billing:secret-1",
			want: []APIKey{{Service: "billing", Key: "secret-1"}},
		},
		{
			name: "mixed list with whitespace",
			raw:  "billing:secret-1, secret-2",
			want: []APIKey{{Service: "billing", Key: "secret-1"}, {Key: "secret-2"}},
		},
		{name: "empty", raw: "", wantErr: true},
		{name: "blank entry", raw: "a,,b", wantErr: true},
		{name: "missing key after colon", raw: "billing:", wantErr: true},
		{name: "missing service before colon", raw: ":secret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAPIKeys(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRequiresAPIKeys(t *testing.T) {
	_, err := New(newTestStore(t), nil, nil, testLogger())
	assert.ErrorIs(t, err, ErrNoAPIKeys)
}

func TestAuthenticateAPIKey(t *testing.T) {
	a, err := New(newTestStore(t), []APIKey{
		{Service: "billing", Key: "key-billing"},
		{Key: "key-anon"},
	}, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := a.Authenticate(ctx, "key-billing", "", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, MethodAPIKey, id.Method)
	assert.Equal(t, "billing", id.ServiceIdentity)
	assert.Equal(t, "billing", id.Subject)

	id, err = a.Authenticate(ctx, "key-anon", "", "")
	require.NoError(t, err)
	assert.Empty(t, id.ServiceIdentity)

	_, err = a.Authenticate(ctx, "wrong", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(ctx, "", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateBearerPreferredOverAPIKey(t *testing.T) {
	a, err := New(newTestStore(t), []APIKey{{Service: "svc", Key: "k"}},
		&stubVerifier{subject: "dev@example.com"}, testLogger())
	require.NoError(t, err)

	id, err := a.Authenticate(context.Background(), "k", "some-jwt", "")
	require.NoError(t, err)
	assert.Equal(t, MethodJWT, id.Method)
	assert.Equal(t, "dev@example.com", id.Subject)
}

func TestAuthenticateBearerFailureFallsBackToAPIKey(t *testing.T) {
	a, err := New(newTestStore(t), []APIKey{{Service: "svc", Key: "k"}},
		&stubVerifier{err: errors.New("expired")}, testLogger())
	require.NoError(t, err)

	id, err := a.Authenticate(context.Background(), "k", "bad-jwt", "")
	require.NoError(t, err)
	assert.Equal(t, MethodAPIKey, id.Method)

	_, err = a.Authenticate(context.Background(), "", "bad-jwt", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestExecutorTokenLifecycle(t *testing.T) {
	store := newTestStore(t)
	a, err := New(store, []APIKey{{Key: "k"}}, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	token, err := a.CreateExecutorToken(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, token, 64, "256-bit hex token")

	// Second create must conflict.
	_, err = a.CreateExecutorToken(ctx, "c1")
	assert.ErrorIs(t, err, ErrTokenExists)

	ok, err := a.AuthenticateExecutor(ctx, token, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.AuthenticateExecutor(ctx, "not-the-token", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.AuthenticateExecutor(ctx, token, "other-cluster")
	require.NoError(t, err)
	assert.False(t, ok, "token is bound to one cluster")

	require.NoError(t, a.RevokeExecutorToken(ctx, "c1"))
	assert.ErrorIs(t, a.RevokeExecutorToken(ctx, "c1"), ErrTokenNotFound)

	// Create works again after revoke, with a fresh secret.
	token2, err := a.CreateExecutorToken(ctx, "c1")
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestAuthenticationIsAudited(t *testing.T) {
	store := newTestStore(t)
	a, err := New(store, []APIKey{{Service: "svc", Key: "k"}}, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = a.Authenticate(ctx, "k", "", "10.1.2.3")
	_, _ = a.Authenticate(ctx, "wrong", "", "10.1.2.3")

	events, err := a.Audit().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	assert.False(t, events[0].Success)
	assert.True(t, events[1].Success)
	assert.Equal(t, "svc", events[1].Identity)
	assert.Equal(t, "10.1.2.3", events[1].Remote)
}
