// Package cmd provides the command-line interface for kube-debug-gateway.
//
// This package implements a Cobra-based CLI with multiple subcommands:
//   - serve: Starts the gateway HTTP frontend (default behavior when no
//     subcommand is provided)
//   - mcp: Starts an MCP server over stdio exposing the debug tools
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// Command Structure:
//
//	kube-debug-gateway [flags]                 # Starts the gateway (default)
//	kube-debug-gateway serve [flags]           # Explicitly starts the gateway
//	kube-debug-gateway mcp [flags]             # MCP stdio facade
//	kube-debug-gateway version                 # Shows version information
//	kube-debug-gateway self-update             # Updates to latest release
//	kube-debug-gateway help [command]          # Shows help information
//
// The serve command reads its configuration from flags, with KDG_* environment
// variables as fallbacks for values not set explicitly.
package cmd
