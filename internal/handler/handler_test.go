package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/server/middleware"
	"github.com/foliodb/folio/internal/service"
	"github.com/foliodb/folio/internal/site"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	db      *orm.DB
	authSvc *service.AuthService
	router  chi.Router
}

// newTestEnv creates a migrated in-memory database and a Chi router with
// every handler mounted the way the server mounts them.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := orm.Open(orm.Config{LogLevel: "silent"})
	if err != nil {
		t.Fatalf("orm.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := site.Migrate(context.Background(), db); err != nil {
		t.Fatalf("site.Migrate: %v", err)
	}

	authSvc := service.NewAuthService(db, testJWTSecret, time.Hour)
	sys := NewSystemHandler(db, authSvc)
	proj := NewProjectHandler(db)
	projects := NewTableHandler(db, site.Projects)
	media := NewTableHandler(db, site.Media)
	tags := NewTableHandler(db, site.Tags)
	schema := NewSchemaHandler(db, site.PublicTables)

	requireAuth := middleware.Authenticate(authSvc)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(authSvc))

		r.Post("/auth/login", sys.Login)
		r.With(requireAuth).Get("/auth/me", sys.Me)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projects.List)
			r.Get("/homepage", proj.Homepage)
			r.Get("/slug/{slug}", proj.BySlug)
			r.Get("/{id}", projects.Get)
			r.Get("/{id}/media", proj.Media)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", projects.Create)
				r.Patch("/{id}", projects.Update)
				r.Delete("/{id}", projects.Delete)
				r.Post("/{id}/restore", projects.Restore)
				r.Post("/{id}/tags", proj.Tag)
				r.Delete("/{id}/tags/{tagID}", proj.Untag)
			})
		})
		r.Route("/media", func(r chi.Router) {
			r.Get("/", media.List)
			r.Get("/{id}", media.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", media.Create)
				r.Patch("/{id}", media.Update)
				r.Delete("/{id}", media.Delete)
			})
		})
		r.Get("/tags", tags.List)
		r.Get("/_schema", schema.ListTables)
		r.Get("/_schema/{table}", schema.GetTableSchema)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/_stats", sys.Stats)
			r.Get("/_drift", sys.Drift)
			r.With(middleware.RequireAdmin()).Get("/users", sys.ListUsers)
			r.With(middleware.RequireAdmin()).Post("/users", sys.CreateUser)
		})
	})

	return &testEnv{db: db, authSvc: authSvc, router: r}
}

// seedUser creates a user and returns a bearer token for it.
func (e *testEnv) seedUser(t *testing.T, email, role string) string {
	t.Helper()
	ctx := context.Background()
	u, err := e.authSvc.CreateUser(ctx, email, testPassword, role)
	if err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	token, _, err := e.authSvc.IssueJWT(ctx, *u)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	return token
}

// seedProject inserts a project directly through the engine.
func (e *testEnv) seedProject(t *testing.T, rec orm.Record) int64 {
	t.Helper()
	c, err := e.db.Create(context.Background(), site.Projects, rec)
	if err != nil {
		t.Fatalf("seedProject: %v", err)
	}
	return c.ID
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, token ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(token) > 0 && token[0] != "" {
		req.Header.Set("Authorization", "Bearer "+token[0])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// listBody is the decoded list envelope.
type listBody struct {
	Resource []map[string]any `json:"resource"`
	Meta     struct {
		Count  int    `json:"count"`
		Total  *int64 `json:"total"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	} `json:"meta"`
}
