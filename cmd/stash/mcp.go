package main

import (
	stashmcp "github.com/hyperengineering/stash/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

This allows coding agents to save, search, and sync articles directly.

Configuration example:

  {
    "mcpServers": {
      "stash": {
        "command": "stash",
        "args": ["mcp"],
        "env": {
          "STASH_DB_PATH": "/path/to/stash.db"
        }
      }
    }
  }

Environment variables:
  STASH_DB_PATH     Path to local SQLite database
  STASH_SHEETS_URL  Remote tabular store URL (optional, enables sync)
  STASH_TOKEN       Static bearer token
  STASH_TOKEN_URL   Token exchange endpoint for redirect auth`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	server := stashmcp.NewServer(client)
	return server.Run()
}
