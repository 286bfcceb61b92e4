package handler

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
)

// SchemaHandler exposes the registry descriptions of the public tables.
type SchemaHandler struct {
	db     *orm.DB
	tables []string
}

// NewSchemaHandler creates a SchemaHandler limited to tables.
func NewSchemaHandler(db *orm.DB, tables []string) *SchemaHandler {
	return &SchemaHandler{db: db, tables: tables}
}

// ListTables returns the description of every public table.
// GET /api/_schema
func (h *SchemaHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	out := make([]model.TableSchema, 0, len(h.tables))
	for _, name := range h.tables {
		if t, ok := h.db.Table(name); ok {
			out = append(out, model.DescribeTable(t))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource": out})
}

// GetTableSchema returns the description of one public table.
// GET /api/_schema/{table}
func (h *SchemaHandler) GetTableSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	t, ok := h.db.Table(name)
	if !ok || !slices.Contains(h.tables, name) {
		writeError(w, http.StatusNotFound, "Table not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, model.DescribeTable(t))
}
