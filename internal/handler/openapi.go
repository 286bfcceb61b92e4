package handler

import (
	"net/http"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/openapi"
	"github.com/foliodb/folio/internal/orm"
)

// OpenAPIHandler serves an OpenAPI 3 document generated from the registry,
// so the description always matches the models the server was started with.
type OpenAPIHandler struct {
	db       *orm.DB
	tables   []string
	readOnly map[string]bool
	info     openapi.Info
}

// NewOpenAPIHandler creates a new OpenAPIHandler. Tables listed in readOnly
// are described without write operations.
func NewOpenAPIHandler(db *orm.DB, tables, readOnly []string, info openapi.Info) *OpenAPIHandler {
	ro := make(map[string]bool, len(readOnly))
	for _, t := range readOnly {
		ro[t] = true
	}
	return &OpenAPIHandler{db: db, tables: tables, readOnly: ro, info: info}
}

// ServeSpec writes the document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	info := h.info
	if info.BaseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		info.BaseURL = scheme + "://" + r.Host
	}
	writeJSON(w, http.StatusOK, openapi.Generate(h.Resources(), info))
}

// Resources describes the exposed tables for the generator.
func (h *OpenAPIHandler) Resources() []openapi.Resource {
	out := make([]openapi.Resource, 0, len(h.tables))
	for _, name := range h.tables {
		t, ok := h.db.Table(name)
		if !ok {
			continue
		}
		out = append(out, openapi.Resource{Schema: model.DescribeTable(t), Writable: !h.readOnly[name]})
	}
	return out
}
