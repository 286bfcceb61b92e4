package handler

import (
	"net/http"
	"time"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/query"
	"github.com/foliodb/folio/internal/server/middleware"
)

const (
	defaultLimit = 25
	maxLimit     = 1000
)

// TableHandler serves the REST resource of one registered table.
type TableHandler struct {
	db    *orm.DB
	table string
}

// NewTableHandler creates a TableHandler for table.
func NewTableHandler(db *orm.DB, table string) *TableHandler {
	return &TableHandler{db: db, table: table}
}

// List retrieves records with optional filtering, sorting, eager loading,
// column selection and pagination.
// GET /api/{table}
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	opts, ok := h.findOptions(w, r)
	if !ok {
		return
	}
	where, err := query.ParseWhereJSON(queryString(r, "where"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid where parameter: "+err.Error())
		return
	}
	orderBy, err := parseOrder(queryString(r, "order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order parameter: "+err.Error())
		return
	}
	opts.Where = where
	opts.OrderBy = orderBy
	opts.Limit = clampInt(queryInt(r, "limit", defaultLimit), 1, maxLimit)
	opts.Offset = max(queryInt(r, "offset", 0), 0)
	opts.Distinct = queryBool(r, "distinct")

	h.writeList(w, r, opts, start)
}

// writeList runs opts and writes the list envelope. The total is only
// counted when the client asks for it with include_count.
func (h *TableHandler) writeList(w http.ResponseWriter, r *http.Request, opts orm.FindOptions, start time.Time) {
	records, err := h.db.FindAll(r.Context(), h.table, opts)
	if err != nil {
		writeORMError(w, err)
		return
	}

	var total *int64
	if queryBool(r, "include_count") {
		n, err := h.db.CountBy(r.Context(), h.table, orm.CountOptions{Where: opts.Where, WithDeleted: opts.WithDeleted})
		if err != nil {
			writeORMError(w, err)
			return
		}
		total = &n
	}

	if records == nil {
		records = []orm.Record{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: records,
		Meta: &model.ResponseMeta{
			Count:  len(records),
			Total:  total,
			Limit:  opts.Limit,
			Offset: opts.Offset,
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// Get retrieves one record by primary key.
// GET /api/{table}/{id}
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, ok := h.findOptions(w, r)
	if !ok {
		return
	}
	rec, err := h.db.FindByPK(r.Context(), h.table, id, opts)
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create inserts one record.
// POST /api/{table}
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	rec, err := readRecord(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	h.stripReadOnly(rec)

	created, err := h.db.Create(r.Context(), h.table, rec)
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Record)
}

// Update changes the supplied fields of one record.
// PATCH /api/{table}/{id}
func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := readRecord(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	h.stripReadOnly(rec)

	n, err := h.db.Update(r.Context(), h.table, rec, h.byID(id))
	if err != nil {
		writeORMError(w, err)
		return
	}
	h.writeAffected(w, n)
}

// Delete removes one record. Paranoid tables are soft-deleted unless
// force=true is given.
// DELETE /api/{table}/{id}
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.db.Delete(r.Context(), h.table, h.byID(id), orm.DeleteOptions{Force: queryBool(r, "force")})
	if err != nil {
		writeORMError(w, err)
		return
	}
	h.writeAffected(w, n)
}

// Restore clears the deletion mark of a soft-deleted record.
// POST /api/{table}/{id}/restore
func (h *TableHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.db.Restore(r.Context(), h.table, h.byID(id))
	if err != nil {
		writeORMError(w, err)
		return
	}
	h.writeAffected(w, n)
}

// findOptions parses the parameters shared by list and single-record reads:
// fields, include and with_deleted. It writes the error response itself.
func (h *TableHandler) findOptions(w http.ResponseWriter, r *http.Request) (orm.FindOptions, bool) {
	var opts orm.FindOptions

	if s := queryString(r, "fields"); s != "" {
		fields, err := query.ParseFieldSelection(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid fields parameter: "+err.Error())
			return opts, false
		}
		opts.Columns = fields
	}
	if s := queryString(r, "include"); s != "" {
		aliases, err := query.ParseIncludeList(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid include parameter: "+err.Error())
			return opts, false
		}
		if t, ok := h.db.Table(h.table); ok {
			for _, a := range aliases {
				if _, known := t.Relations[a]; !known {
					writeError(w, http.StatusBadRequest, "Unknown relation "+a+" on "+h.table)
					return opts, false
				}
			}
		}
		opts.Include = orm.With(aliases...)
	}
	if queryBool(r, "with_deleted") {
		if middleware.GetPrincipal(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "with_deleted requires authentication")
			return opts, false
		}
		opts.WithDeleted = true
	}
	return opts, true
}

func (h *TableHandler) byID(id int64) orm.Where {
	pk := "id"
	if t, ok := h.db.Table(h.table); ok {
		pk = t.PrimaryKey()
	}
	return orm.Where{pk: id}
}

// stripReadOnly drops generated keys and engine-maintained columns so
// clients cannot set them.
func (h *TableHandler) stripReadOnly(rec orm.Record) {
	t, ok := h.db.Table(h.table)
	if !ok {
		return
	}
	for _, c := range t.AllColumns() {
		if model.IsReadOnly(c) {
			delete(rec, c.Name)
		}
	}
}

func (h *TableHandler) writeAffected(w http.ResponseWriter, n int64) {
	if n == 0 {
		writeError(w, http.StatusNotFound, "No matching "+h.table+" record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected": n})
}

// parseOrder converts "year DESC, name" into engine order terms.
func parseOrder(s string) ([]orm.Order, error) {
	clauses, err := query.ParseOrderClause(s)
	if err != nil {
		return nil, err
	}
	out := make([]orm.Order, len(clauses))
	for i, c := range clauses {
		out[i] = orm.Order{Column: c.Column, Desc: c.Desc}
	}
	return out, nil
}
