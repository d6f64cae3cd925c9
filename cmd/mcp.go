package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kube-debug-gateway/internal/logging"
	"github.com/giantswarm/kube-debug-gateway/internal/mcptool"
)

// newMCPCmd creates the Cobra command exposing the gateway's debug operations
// as MCP tools over stdio. It runs the same routing stack as serve, minus the
// HTTP frontend, so an assistant can be pointed at a keystore directly.
func newMCPCmd() *cobra.Command {
	config := ServeConfig{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP stdio server exposing the debug tools",
		Long: `Start a Model Context Protocol server over standard input/output.

The server exposes debug_execute_command, session management, cluster listing
and capability lookup as MCP tools backed by the same command router the HTTP
frontend uses. Requires the same keystore and API key configuration as serve.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.loadEnvVars()
			// Logs must not corrupt the stdio transport.
			if config.LogFormat == "" {
				config.LogFormat = "json"
			}
			if config.RedisAddr == "" {
				config.RedisAddr = "localhost:6379"
			}

			sc, err := buildServerContext(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer func() {
				if err := sc.Shutdown(); err != nil {
					sc.Logger().Warn("shutdown error", logging.Err(err))
				}
			}()

			mcpSrv := mcpserver.NewMCPServer("kube-debug-gateway", rootCmd.Version,
				mcpserver.WithToolCapabilities(true),
			)
			if err := mcptool.RegisterDebugTools(mcpSrv, sc); err != nil {
				return err
			}
			return mcpserver.ServeStdio(mcpSrv)
		},
	}

	cmd.Flags().StringVar(&config.RedisAddr, "redis-addr", "", "Address of the Redis-protocol keystore")
	cmd.Flags().StringVar(&config.RedisPassword, "redis-password", "", "Keystore password (prefer KDG_REDIS_PASSWORD)")
	cmd.Flags().IntVar(&config.RedisDB, "redis-db", 0, "Keystore logical database")
	cmd.Flags().StringVar(&config.APIKeys, "api-keys", "", "Accepted API keys, 'service:key,key,...' (prefer KDG_API_KEYS)")
	cmd.Flags().StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().IntVar(&config.CommandTimeoutSeconds, "command-timeout", 10, "Default per-command timeout in seconds")

	return cmd
}
