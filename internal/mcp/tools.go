package mcp

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/query"
)

const (
	defaultLimit = 25
	maxLimit     = 1000
)

// registerTools registers all folio MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("list_tables",
			mcp.WithDescription(
				"List the tables available in folio with their live row counts and "+
					"relation aliases. Use this first to discover what data exists.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListTables,
	)

	srv.AddTool(
		mcp.NewTool("describe_table",
			mcp.WithDescription(
				"Get the full definition of one table: columns with their types, "+
					"constraints, defaults and references, plus the relations that can be "+
					"passed to include. Use this before writing filters.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table to describe"),
			),
		),
		s.handleDescribeTable,
	)

	// ----- Query tools -----

	srv.AddTool(
		mcp.NewTool("find_records",
			mcp.WithDescription(
				"Find records in a table with optional filtering, ordering, eager "+
					"loading and pagination. Returns results as JSON.\n\n"+
					"Filter syntax is a JSON object:\n"+
					"  - Equality: {\"slug\": \"atlas\"}\n"+
					"  - Operators: {\"year\": {\"$gte\": 2020}}, $eq $ne $gt $gte $lt $lte\n"+
					"  - Lists: {\"id\": {\"$in\": [1, 2]}}, $notIn\n"+
					"  - Patterns: {\"name\": {\"$like\": \"%brand%\"}}, $ilike $notLike\n"+
					"  - Ranges: {\"year\": {\"$between\": [2020, 2023]}}\n"+
					"  - Logic: {\"$or\": [{\"homepage\": true}, {\"year\": 2024}]}\n\n"+
					"Order syntax: 'column ASC, other_column DESC'",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table to query"),
			),
			mcp.WithString("where",
				mcp.Description("Filter as a JSON object (e.g. {\"homepage\": true})"),
			),
			mcp.WithArray("fields",
				mcp.Description("List of column names to return. Omit for all columns."),
				mcp.WithStringItems(),
			),
			mcp.WithString("order",
				mcp.Description("Order clause (e.g. \"year DESC, name ASC\")"),
			),
			mcp.WithString("include",
				mcp.Description("Comma-separated relation aliases to attach (e.g. \"media,tags\")"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of records to return (default 25, max 1000)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of records to skip for pagination"),
			),
		),
		s.handleFindRecords,
	)

	srv.AddTool(
		mcp.NewTool("count_records",
			mcp.WithDescription("Count the records of a table that match an optional JSON filter."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table to count"),
			),
			mcp.WithString("where",
				mcp.Description("Filter as a JSON object, same syntax as find_records"),
			),
		),
		s.handleCountRecords,
	)

	srv.AddTool(
		mcp.NewTool("get_record",
			mcp.WithDescription("Fetch one record by primary key, optionally with relations attached."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("table",
				mcp.Required(),
				mcp.Description("Name of the table"),
			),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("Primary key value"),
			),
			mcp.WithString("include",
				mcp.Description("Comma-separated relation aliases to attach"),
			),
		),
		s.handleGetRecord,
	)

	// ----- Engine tools -----

	srv.AddTool(
		mcp.NewTool("db_stats",
			mcp.WithDescription(
				"Report engine statistics: schema version, per-table row and "+
					"soft-deleted counts, cached statements and file size.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleDBStats,
	)
}

// handleListTables lists the exposed tables with row counts.
func (s *MCPServer) handleListTables(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	type tableInfo struct {
		Name      string   `json:"name"`
		Rows      int64    `json:"rows"`
		Paranoid  bool     `json:"paranoid,omitempty"`
		Relations []string `json:"relations,omitempty"`
	}

	tables := make([]tableInfo, 0, len(s.tables))
	for _, name := range s.tables {
		t, ok := s.db.Table(name)
		if !ok {
			continue
		}
		n, err := s.db.Count(ctx, name, nil)
		if err != nil {
			return toolError("Failed to count %q: %v", name, err)
		}
		info := tableInfo{Name: name, Rows: n, Paranoid: t.Options.Paranoid}
		for alias := range t.Relations {
			info.Relations = append(info.Relations, alias)
		}
		slices.Sort(info.Relations)
		tables = append(tables, info)
	}

	return successJSON(tables)
}

// handleDescribeTable returns the definition of one table.
func (s *MCPServer) handleDescribeTable(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	t, res := s.lookupTable(request)
	if res != nil {
		return res, nil
	}
	return successJSON(model.DescribeTable(t))
}

// handleFindRecords queries records from a table.
func (s *MCPServer) handleFindRecords(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	t, res := s.lookupTable(request)
	if res != nil {
		return res, nil
	}

	where, err := query.ParseWhereJSON(optionalString(request, "where"))
	if err != nil {
		return toolError("Invalid where: %v\n\n"+
			"Filter syntax: a JSON object such as {\"year\": {\"$gte\": 2020}}", err)
	}

	var fields []string
	if f := optionalStringSlice(request, "fields"); len(f) > 0 {
		fields, err = query.ParseFieldSelection(strings.Join(f, ","))
		if err != nil {
			return toolError("Invalid fields: %v\n\nAvailable columns: %v", err, columnNames(t))
		}
	}

	var orderBy []orm.Order
	if o := optionalString(request, "order"); o != "" {
		clauses, err := query.ParseOrderClause(o)
		if err != nil {
			return toolError("Invalid order clause: %v\n\n"+
				"Order syntax: column [ASC|DESC], ...\n"+
				"  Example: year DESC, name ASC", err)
		}
		for _, c := range clauses {
			orderBy = append(orderBy, orm.Order{Column: c.Column, Desc: c.Desc})
		}
	}

	include, res := includeArg(t, request)
	if res != nil {
		return res, nil
	}

	limit := clamp(optionalInt(request, "limit", defaultLimit), 1, maxLimit)
	offset := max(optionalInt(request, "offset", 0), 0)

	records, err := s.db.FindAll(ctx, t.Name, orm.FindOptions{
		Where:   where,
		Columns: fields,
		OrderBy: orderBy,
		Include: include,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return engineError(t, err)
	}

	return successJSON(map[string]any{
		"records": records,
		"count":   len(records),
		"limit":   limit,
		"offset":  offset,
	})
}

// handleCountRecords counts matching records.
func (s *MCPServer) handleCountRecords(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	t, res := s.lookupTable(request)
	if res != nil {
		return res, nil
	}
	where, err := query.ParseWhereJSON(optionalString(request, "where"))
	if err != nil {
		return toolError("Invalid where: %v", err)
	}
	n, err := s.db.Count(ctx, t.Name, where)
	if err != nil {
		return engineError(t, err)
	}
	return successJSON(map[string]any{"table": t.Name, "count": n})
}

// handleGetRecord fetches one record by primary key.
func (s *MCPServer) handleGetRecord(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	t, res := s.lookupTable(request)
	if res != nil {
		return res, nil
	}
	id := optionalInt(request, "id", 0)
	if id <= 0 {
		return toolError("Parameter \"id\" must be a positive integer")
	}
	include, res := includeArg(t, request)
	if res != nil {
		return res, nil
	}

	rec, err := s.db.FindByPK(ctx, t.Name, int64(id), orm.FindOptions{Include: include})
	if errors.Is(err, orm.ErrNotFound) {
		return toolError("No %s record with %s = %d", t.Name, t.PrimaryKey(), id)
	}
	if err != nil {
		return engineError(t, err)
	}
	return successJSON(rec)
}

// handleDBStats reports engine statistics.
func (s *MCPServer) handleDBStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	stats, err := s.db.Stats(ctx)
	if err != nil {
		return toolError("Failed to read stats: %v", err)
	}
	// Only report the tables agents can see.
	visible := stats.Tables[:0]
	for _, ts := range stats.Tables {
		if slices.Contains(s.tables, ts.Name) {
			visible = append(visible, ts)
		}
	}
	stats.Tables = visible
	return successJSON(stats)
}

// lookupTable resolves the "table" argument against the exposed tables.
// A non-nil result is the error to hand back to the client.
func (s *MCPServer) lookupTable(request mcp.CallToolRequest) (*orm.Table, *mcp.CallToolResult) {
	name, err := requireString(request, "table")
	if err != nil {
		res, _ := toolError("%v. Available tables: %v", err, s.tables)
		return nil, res
	}
	t, ok := s.db.Table(name)
	if !ok || !slices.Contains(s.tables, name) {
		res, _ := toolError("Table %q not found. Available tables: %v", name, s.tables)
		return nil, res
	}
	return t, nil
}

// includeArg parses the "include" argument and checks every alias exists.
func includeArg(t *orm.Table, request mcp.CallToolRequest) ([]orm.Include, *mcp.CallToolResult) {
	raw := optionalString(request, "include")
	if raw == "" {
		return nil, nil
	}
	aliases, err := query.ParseIncludeList(raw)
	if err != nil {
		res, _ := toolError("Invalid include: %v", err)
		return nil, res
	}
	for _, a := range aliases {
		if _, ok := t.Relations[a]; !ok {
			known := make([]string, 0, len(t.Relations))
			for k := range t.Relations {
				known = append(known, k)
			}
			slices.Sort(known)
			res, _ := toolError("Table %q has no relation %q. Available relations: %v", t.Name, a, known)
			return nil, res
		}
	}
	return orm.With(aliases...), nil
}

// engineError turns an engine failure into a tool error the model can act
// on; validation failures list the offending fields.
func engineError(t *orm.Table, err error) (*mcp.CallToolResult, error) {
	var verr *orm.ValidationError
	if errors.As(err, &verr) {
		return toolError("Invalid request for %q: %v\n\nAvailable columns: %v", t.Name, verr, columnNames(t))
	}
	return toolError("Query on %q failed: %v", t.Name, err)
}

func columnNames(t *orm.Table) []string {
	cols := t.AllColumns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
