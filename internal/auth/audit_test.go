package auth

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRingTrimsOnWrite(t *testing.T) {
	store := newTestStore(t)
	log := NewAuditLog(store, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, log.Record(ctx, Event{
			Method:   "api_key",
			Identity: fmt.Sprintf("id-%d", i),
			Success:  true,
		}))
	}

	n, err := log.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	events, err := log.Recent(ctx, 100)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "id-7", events[0].Identity, "newest entry first")
	assert.Equal(t, "id-3", events[4].Identity, "oldest surviving entry last")
}

func TestAuditRecentSkipsUndecodableEntries(t *testing.T) {
	store := newTestStore(t)
	log := NewAuditLog(store, 10)
	ctx := context.Background()

	require.NoError(t, log.Record(ctx, Event{Method: "jwt", Success: false}))
	require.NoError(t, store.LPush(ctx, "auth_audit", "not-json"))

	events, err := log.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "jwt", events[0].Method)
}

func TestAuditRecordStampsTimestamp(t *testing.T) {
	store := newTestStore(t)
	log := NewAuditLog(store, 10)

	require.NoError(t, log.Record(context.Background(), Event{Method: "executor"}))

	events, err := log.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}
