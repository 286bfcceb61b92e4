package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/foliodb/folio/internal/model"
)

const (
	schemaURI       = "folio://schema"
	schemaURIPrefix = schemaURI + "/"
)

// registerResources adds the read-only schema resources LLM clients can
// load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// folio://schema: every exposed table
	srv.AddResource(
		mcp.NewResource(
			schemaURI,
			"Folio Schema",
			mcp.WithResourceDescription(
				"Definitions of every table exposed by folio, including columns, "+
					"constraints and relation aliases.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleSchemaResource,
	)

	// folio://schema/{table}: a single table
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			schemaURIPrefix+"{table}",
			"Table Schema",
			mcp.WithTemplateDescription("Definition of a single folio table."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleTableSchemaResource,
	)
}

// handleSchemaResource returns the definitions of all exposed tables.
func (s *MCPServer) handleSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	schemas := make([]model.TableSchema, 0, len(s.tables))
	for _, name := range s.tables {
		if t, ok := s.db.Table(name); ok {
			schemas = append(schemas, model.DescribeTable(t))
		}
	}
	return jsonContents(schemaURI, schemas)
}

// handleTableSchemaResource returns one table's definition.
func (s *MCPServer) handleTableSchemaResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	name := strings.TrimPrefix(uri, schemaURIPrefix)
	if name == "" || name == uri {
		return nil, fmt.Errorf("invalid schema URI %q: expected %s{table}", uri, schemaURIPrefix)
	}
	t, ok := s.db.Table(name)
	if !ok || !slices.Contains(s.tables, name) {
		return nil, fmt.Errorf("table %q not found (available: %v)", name, s.tables)
	}
	return jsonContents(uri, model.DescribeTable(t))
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
