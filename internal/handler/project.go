package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/site"
)

// ProjectHandler serves the portfolio endpoints that go beyond plain table
// CRUD: the homepage feed, slug lookup, a project's media and tag links.
type ProjectHandler struct {
	db *orm.DB
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(db *orm.DB) *ProjectHandler {
	return &ProjectHandler{db: db}
}

// Homepage lists the projects flagged for the homepage, newest first, with
// their media and tags attached.
// GET /api/projects/homepage
func (h *ProjectHandler) Homepage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	records, err := h.db.FindAll(r.Context(), site.Projects, orm.FindOptions{
		Where:   orm.Where{"homepage": true},
		Include: orm.With("media", "tags"),
		OrderBy: []orm.Order{orm.Desc("year"), orm.Asc("name")},
	})
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeRecords(w, records, start)
}

// BySlug retrieves one project by its slug.
// GET /api/projects/slug/{slug}
func (h *ProjectHandler) BySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	rec, err := h.db.FindOne(r.Context(), site.Projects, orm.FindOptions{
		Where:   orm.Where{"slug": site.Slugify(slug)},
		Include: orm.With("media", "tags"),
	})
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Media lists the media of one project.
// GET /api/projects/{id}/media
func (h *ProjectHandler) Media(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.projectExists(w, r, id) {
		return
	}
	records, err := h.db.FindAll(r.Context(), site.Media, orm.FindOptions{
		Where:   orm.Where{"project_id": id},
		OrderBy: []orm.Order{orm.Asc("id")},
	})
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeRecords(w, records, start)
}

// tagRequest names the tag to link either by id or by name. A name that
// does not exist yet creates the tag.
type tagRequest struct {
	TagID int64  `json:"tag_id"`
	Name  string `json:"name"`
}

// Tag links a tag to a project.
// POST /api/projects/{id}/tags
func (h *ProjectHandler) Tag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req tagRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.TagID == 0 && req.Name == "" {
		writeError(w, http.StatusBadRequest, "tag_id or name is required")
		return
	}
	if !h.projectExists(w, r, id) {
		return
	}

	tagID := req.TagID
	err = h.db.Transaction(r.Context(), func(tx *orm.DB) error {
		if tagID == 0 {
			var err error
			if tagID, err = findOrCreateTag(r, tx, req.Name); err != nil {
				return err
			}
		}
		return site.TagProject(r.Context(), tx, id, tagID)
	})
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"project_id": id, "tag_id": tagID})
}

// Untag removes the link between a project and a tag.
// DELETE /api/projects/{id}/tags/{tagID}
func (h *ProjectHandler) Untag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tagID, err := pathID(r, "tagID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := site.UntagProject(r.Context(), h.db, id, tagID)
	if err != nil {
		writeORMError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Project is not tagged with this tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) projectExists(w http.ResponseWriter, r *http.Request, id int64) bool {
	ok, err := h.db.Exists(r.Context(), site.Projects, orm.Where{"id": id})
	if err != nil {
		writeORMError(w, err)
		return false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Project not found")
		return false
	}
	return true
}

func findOrCreateTag(r *http.Request, tx *orm.DB, name string) (int64, error) {
	rec, err := tx.FindOne(r.Context(), site.Tags, orm.FindOptions{Where: orm.Where{"name": name}})
	if err == nil {
		id, _ := rec["id"].(int64)
		return id, nil
	}
	if !errors.Is(err, orm.ErrNotFound) {
		return 0, err
	}
	created, err := tx.Create(r.Context(), site.Tags, orm.Record{"name": name})
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// writeRecords writes an unpaginated list envelope.
func writeRecords(w http.ResponseWriter, records []orm.Record, start time.Time) {
	if records == nil {
		records = []orm.Record{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: records,
		Meta: &model.ResponseMeta{
			Count:  len(records),
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}
