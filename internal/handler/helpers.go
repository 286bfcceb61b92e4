package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]any) {
	var ctxMap map[string]any
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeORMError maps an engine error onto an HTTP status: validation
// failures are 400 with the failing fields, missing records and tables 404,
// constraint violations 409, and anything else 500.
func writeORMError(w http.ResponseWriter, err error) {
	status, ctx := classifyORMError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal error"
	}
	writeError(w, status, msg, ctx)
}

func classifyORMError(err error) (int, map[string]any) {
	ctx := map[string]any{}
	if code := orm.ErrorCode(err); code != "" {
		ctx["type"] = string(code)
	}

	var verr *orm.ValidationError
	switch {
	case errors.As(err, &verr):
		ctx["type"] = string(orm.CodeValidation)
		ctx["table"] = verr.Table
		ctx["fields"] = verr.Fields
		return http.StatusBadRequest, ctx
	case errors.Is(err, orm.ErrNotFound), errors.Is(err, orm.ErrModelNotFound):
		return http.StatusNotFound, ctx
	case errors.Is(err, orm.ErrConstraint):
		return http.StatusConflict, ctx
	default:
		return http.StatusInternalServerError, ctx
	}
}

// readJSON decodes the request body as JSON into v, keeping numbers exact.
// The body is closed after decoding regardless of success or failure.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// readRecord decodes a JSON object body into a record.
func readRecord(r *http.Request) (orm.Record, error) {
	var rec map[string]any
	if err := readJSON(r, &rec); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	if rec == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return orm.Record(rec), nil
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return id, nil
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
