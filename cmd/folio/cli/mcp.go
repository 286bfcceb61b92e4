package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	fmcp "github.com/foliodb/folio/internal/mcp"
	"github.com/foliodb/folio/internal/site"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that gives AI agents read-only
access to the public tables: schema discovery, filtered queries, counts and
engine statistics. Supports stdio (default) and streamable HTTP transports.

In stdio mode the server speaks JSON-RPC over stdin/stdout, suitable for
clients that launch folio as a subprocess. Logs go to stderr.`,
		Example: `  folio mcp --db site.db                          # stdio mode
  folio mcp --db site.db --transport http --port 8081`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport mode: stdio or http (default: mcp.transport)")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port, only used with --transport http (default: mcp.port)")

	return cmd
}

func runMCP(cmd *cobra.Command, transport string, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.MCP.Transport
	}
	if port == 0 {
		port = cfg.MCP.Port
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDB(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	mcpSrv := fmcp.NewMCPServer(db, site.PublicTables, versionString(), logger)

	switch transport {
	case "", "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
