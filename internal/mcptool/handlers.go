package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/kube-debug-gateway/internal/router"
	"github.com/giantswarm/kube-debug-gateway/internal/server"
	"github.com/giantswarm/kube-debug-gateway/internal/session"
	"github.com/giantswarm/kube-debug-gateway/internal/validation"
)

// splitList turns a comma-separated tool argument into a slice, dropping
// empty segments.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleExecuteCommand(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	clusterID, _ := args["clusterId"].(string)
	commandType, _ := args["commandType"].(string)
	argList := splitList(stringArg(args, "args"))
	extraArgs := splitList(stringArg(args, "extraArgs"))
	namespace := stringArg(args, "namespace")
	sessionID := stringArg(args, "sessionId")

	timeoutSeconds := 0
	if v, ok := args["timeoutSeconds"].(float64); ok {
		timeoutSeconds = int(v)
	}

	// The facade honors the same gate as the HTTP surface; a forbidden verb
	// or flag never reaches a cluster from here either.
	if err := validation.ClusterID(clusterID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validation.CommandType(commandType); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validation.Args(argList); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validation.ExtraArgs(extraArgs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := sc.Router().Execute(ctx, router.Request{
		ClusterID:      clusterID,
		SessionID:      sessionID,
		CommandType:    commandType,
		Args:           argList,
		Namespace:      namespace,
		ExtraArgs:      extraArgs,
		TimeoutSeconds: timeoutSeconds,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Command routing failed: %v", err)), nil
	}
	return jsonResult(result)
}

func handleCreateSession(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	clusterID, _ := args["clusterId"].(string)
	if err := validation.ClusterID(clusterID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ttlSeconds := 0
	if v, ok := args["ttlSeconds"].(float64); ok {
		ttlSeconds = int(v)
	}

	s, err := sc.Sessions().Create(ctx, session.CreateParams{
		ClusterID:       clusterID,
		UserID:          stringArg(args, "userId"),
		CorrelationID:   stringArg(args, "correlationId"),
		ServiceIdentity: "mcp",
		TTLSeconds:      ttlSeconds,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create session: %v", err)), nil
	}
	return jsonResult(s)
}

func handleGetSession(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "sessionId")

	s, err := sc.Sessions().Get(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up session: %v", err)), nil
	}
	if s == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Session %s not found", sessionID)), nil
	}

	status, err := sc.Sessions().Status(ctx, s)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to derive session status: %v", err)), nil
	}
	return jsonResult(struct {
		*session.Session
		Status string `json:"status"`
	}{Session: s, Status: status})
}

func handleEndSession(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "sessionId")

	if err := sc.Sessions().End(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to end session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s ended", sessionID)), nil
}

func handleListClusters(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusters, err := sc.Admin().ListClusters(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list clusters: %v", err)), nil
	}
	return jsonResult(map[string][]string{"clusters": clusters})
}

func handleClusterCapabilities(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	clusterID := stringArg(request.GetArguments(), "clusterId")
	if err := validation.ClusterID(clusterID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	profile, err := sc.Capabilities().Get(ctx, clusterID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read capabilities: %v", err)), nil
	}
	if profile == nil {
		return mcp.NewToolResultError(fmt.Sprintf("No capability profile reported for cluster %s", clusterID)), nil
	}
	return jsonResult(profile)
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}
