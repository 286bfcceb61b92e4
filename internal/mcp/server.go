package mcp

import (
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/foliodb/folio/internal/orm"
)

// MCPServer wraps the mcp-go server with folio's tool and resource
// registrations. It gives AI agents read access to the registered tables:
// they can discover schemas, search and count records and read engine
// statistics.
type MCPServer struct {
	db     *orm.DB
	tables []string
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer limited to tables. The returned server
// is ready to serve over stdio or HTTP.
func NewMCPServer(db *orm.DB, tables []string, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		db:     db,
		tables: tables,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"Folio",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// folio as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// Handler returns the Streamable HTTP transport as an http.Handler so it
// can be mounted on the API router.
func (s *MCPServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.server)
}

// ServeHTTP starts a standalone Streamable HTTP listener on addr
// (e.g. ":8081").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
