// Package mcptool exposes the gateway's debug operations as MCP tools, so an
// assistant wired to this process over stdio can drive the same router and
// session registry the HTTP surface uses.
package mcptool

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/server"
)

// handlerFunc is the shape of a gateway tool handler before server context
// binding.
type handlerFunc func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// RegisterDebugTools registers the debug tool set with the MCP server.
func RegisterDebugTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	executeTool := mcp.NewTool("debug_execute_command",
		mcp.WithDescription("Run a read-only kubectl command on a target cluster and return its output"),
		mcp.WithString("clusterId",
			mcp.Required(),
			mcp.Description("Target cluster identifier"),
		),
		mcp.WithString("commandType",
			mcp.Required(),
			mcp.Description("kubectl verb to run (e.g. 'get', 'describe', 'logs')"),
		),
		mcp.WithString("args",
			mcp.Description("Command arguments, comma-separated (e.g. 'pods,web-1')"),
		),
		mcp.WithString("namespace",
			mcp.Description("Namespace to scope the command to (optional)"),
		),
		mcp.WithString("extraArgs",
			mcp.Description("Extra flags from the allowlist, comma-separated (e.g. '-o,json') (optional)"),
		),
		mcp.WithString("sessionId",
			mcp.Description("Session to attribute the command to (optional)"),
		),
		mcp.WithNumber("timeoutSeconds",
			mcp.Description("Per-command timeout in seconds (optional, default 10, max 30)"),
		),
	)
	s.AddTool(executeTool, wrap("debug_execute_command", handleExecuteCommand, sc))

	createSessionTool := mcp.NewTool("debug_create_session",
		mcp.WithDescription("Open a debugging session against a cluster"),
		mcp.WithString("clusterId",
			mcp.Required(),
			mcp.Description("Target cluster identifier"),
		),
		mcp.WithString("userId",
			mcp.Description("Human or agent the session is for (optional)"),
		),
		mcp.WithString("correlationId",
			mcp.Description("Correlation identifier shared across a multi-agent investigation (optional)"),
		),
		mcp.WithNumber("ttlSeconds",
			mcp.Description("Session TTL in seconds (optional, 60-3600, default 300)"),
		),
	)
	s.AddTool(createSessionTool, wrap("debug_create_session", handleCreateSession, sc))

	getSessionTool := mcp.NewTool("debug_get_session",
		mcp.WithDescription("Look up a debugging session and its derived status"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	s.AddTool(getSessionTool, wrap("debug_get_session", handleGetSession, sc))

	endSessionTool := mcp.NewTool("debug_end_session",
		mcp.WithDescription("End a debugging session"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	s.AddTool(endSessionTool, wrap("debug_end_session", handleEndSession, sc))

	listClustersTool := mcp.NewTool("debug_list_clusters",
		mcp.WithDescription("List every cluster the gateway knows about"),
	)
	s.AddTool(listClustersTool, wrap("debug_list_clusters", handleListClusters, sc))

	capabilitiesTool := mcp.NewTool("debug_cluster_capabilities",
		mcp.WithDescription("Show the capability profile a cluster's executor advertised"),
		mcp.WithString("clusterId",
			mcp.Required(),
			mcp.Description("Target cluster identifier"),
		),
	)
	s.AddTool(capabilitiesTool, wrap("debug_cluster_capabilities", handleClusterCapabilities, sc))

	return nil
}

// wrap binds the server context and logs each invocation with its duration.
func wrap(name string, handler handlerFunc, sc *server.ServerContext) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request, sc)

		logger := sc.Logger().With(
			slog.String("tool", name),
			slog.Duration("duration", time.Since(start)),
		)
		switch {
		case err != nil:
			logger.Error("tool invocation failed", logging.Err(err))
		case result != nil && result.IsError:
			logger.Warn("tool invocation rejected")
		default:
			logger.Debug("tool invocation served")
		}
		return result, err
	}
}
