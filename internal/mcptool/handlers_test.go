package mcptool

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kube-debug-gateway/internal/admin"
	"github.com/giantswarm/kube-debug-gateway/internal/auth"
	"github.com/giantswarm/kube-debug-gateway/internal/capability"
	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/server"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
)

func newTestContext(t *testing.T) *server.ServerContext {
	t.Helper()

	mr := miniredis.RunT(t)
	store := keystore.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authenticator, err := auth.New(store, []auth.APIKey{{Service: "test", Key: "key-1234567890"}}, nil, logger)
	require.NoError(t, err)

	sessions := session.NewRegistry(store, logger, 0)
	rt := router.New(store, sessions, logger, nil, router.Config{
		PollInitial: 10 * time.Millisecond,
		PollMax:     50 * time.Millisecond,
	})

	sc, err := server.NewServerContext(context.Background(),
		server.WithKeystore(store),
		server.WithAuthenticator(authenticator),
		server.WithSessionRegistry(sessions),
		server.WithRouter(rt),
		server.WithCapabilityRegistry(capability.NewRegistry(store, logger, 0)),
		server.WithAdminService(admin.NewService(store, authenticator, logger)),
		server.WithLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	textContent, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return textContent.Text
}

func callWith(args map[string]interface{}) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func TestSessionToolLifecycle(t *testing.T) {
	sc := newTestContext(t)
	ctx := context.Background()

	result, err := handleCreateSession(ctx, callWith(map[string]interface{}{
		"clusterId": "prod-eu",
		"userId":    "alice",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var created session.Session
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "mcp", created.ServiceIdentity)

	result, err = handleGetSession(ctx, callWith(map[string]interface{}{
		"sessionId": created.ID,
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), `"status": "active"`)

	result, err = handleEndSession(ctx, callWith(map[string]interface{}{
		"sessionId": created.ID,
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = handleGetSession(ctx, callWith(map[string]interface{}{
		"sessionId": created.ID,
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExecuteToolRejectsForbiddenVerb(t *testing.T) {
	sc := newTestContext(t)

	result, err := handleExecuteCommand(context.Background(), callWith(map[string]interface{}{
		"clusterId":   "prod-eu",
		"commandType": "delete",
		"args":        "pod,web-1",
	}), sc)
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "forbidden")
}

func TestExecuteToolTimesOutWithoutExecutor(t *testing.T) {
	sc := newTestContext(t)

	result, err := handleExecuteCommand(context.Background(), callWith(map[string]interface{}{
		"clusterId":      "prod-eu",
		"commandType":    "get",
		"args":           "pods",
		"timeoutSeconds": 1.0,
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var res router.Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &res))
	assert.Equal(t, router.StatusTimeout, res.Status)
}

func TestListClustersTool(t *testing.T) {
	sc := newTestContext(t)
	ctx := context.Background()

	_, err := sc.Admin().CreateExecutorToken(ctx, "prod-eu")
	require.NoError(t, err)

	result, err := handleListClusters(ctx, callWith(nil), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "prod-eu")
}

func TestClusterCapabilitiesTool(t *testing.T) {
	sc := newTestContext(t)
	ctx := context.Background()

	result, err := handleClusterCapabilities(ctx, callWith(map[string]interface{}{
		"clusterId": "prod-eu",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	_, err = sc.Capabilities().Store(ctx, capability.Profile{ClusterID: "prod-eu", Mode: capability.ModeFullAccess})
	require.NoError(t, err)

	result, err = handleClusterCapabilities(ctx, callWith(map[string]interface{}{
		"clusterId": "prod-eu",
	}), sc)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "fullAccess")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"pods", "web-1"}, splitList("pods, web-1"))
	assert.Equal(t, []string{"-o", "json"}, splitList("-o,json,"))
}
