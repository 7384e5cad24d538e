package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run quill as an MCP (Model Context Protocol) server",
		Long: `Start an MCP server that exposes quill functionality over stdio.

The MCP server allows AI tools (Continue.dev, Cursor, Cline, Windsurf,
GitHub Copilot) to invoke quill tools directly:

  • quill_correct - Correct grammar and spelling in text
  • quill_diff    - Compute a word-level diff between two texts
  • quill_protect - Replace sensitive tokens with placeholders

The server communicates via JSON-RPC 2.0 over stdin/stdout, following
the Model Context Protocol specification.

Example usage in Continue.dev config.json:

  {
    "mcpServers": {
      "quill": {
        "command": "quill",
        "args": ["mcp-server"]
      }
    }
  }
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			// Create MCP server
			server, err := mcp.NewServer(&mcp.Config{
				Name:       "quill",
				Version:    version,
				ConfigPath: configPath,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			// Run server (blocks until client disconnects or SIGTERM/SIGINT)
			if err := server.Run(context.Background()); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}

			return nil
		},
	}

	return cmd
}
