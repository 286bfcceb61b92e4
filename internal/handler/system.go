package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/server/middleware"
	"github.com/foliodb/folio/internal/service"
	"github.com/foliodb/folio/internal/site"
)

// SystemHandler serves authentication, user management and engine
// maintenance endpoints.
type SystemHandler struct {
	db      *orm.DB
	authSvc *service.AuthService
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(db *orm.DB, authSvc *service.AuthService) *SystemHandler {
	return &SystemHandler{db: db, authSvc: authSvc}
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// Login exchanges an email and password for a bearer token.
// POST /api/auth/login
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	resp, err := h.authSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me returns the user behind the bearer token.
// GET /api/auth/me
func (h *SystemHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	u, err := h.authSvc.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// createUserRequest is the payload for CreateUser.
type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ListUsers returns every user without password hashes.
// GET /api/users
func (h *SystemHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authSvc.ListUsers(r.Context())
	if err != nil {
		writeORMError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource": users})
}

// CreateUser adds a user. The role defaults to editor.
// POST /api/users
func (h *SystemHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Role == "" {
		req.Role = site.RoleEditor
	}

	u, err := h.authSvc.CreateUser(r.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, service.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ---------------------------------------------------------------------------
// Maintenance
// ---------------------------------------------------------------------------

// Stats reports per-table row counts, the schema version and file size.
// GET /api/_stats
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := h.db.Stats(r.Context())
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   stats,
		"took_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// Drift compares the declared models with the tables stored in the file.
// GET /api/_drift
func (h *SystemHandler) Drift(w http.ResponseWriter, r *http.Request) {
	report, err := h.db.Drift(r.Context())
	if err != nil {
		writeORMError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
