package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foliodb/folio/internal/config"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/service"
	"github.com/foliodb/folio/internal/site"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testJWTSecret = "test-secret-for-jwt-integration-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server  *Server
	db      *orm.DB
	authSvc *service.AuthService
}

// newTestEnv creates a migrated in-memory database and a fully wired Server.
// mutate adjusts the server config before the router is built.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
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
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return &testEnv{
		server:  New(cfg, db, authSvc, logger),
		db:      db,
		authSvc: authSvc,
	}
}

// seedAdmin creates the default admin account.
func (e *testEnv) seedAdmin(t *testing.T) {
	t.Helper()
	if _, err := e.authSvc.CreateUser(context.Background(), "admin@example.com", testPassword, site.RoleAdmin); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
}

// adminToken logs in through the API and returns the bearer token.
func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	body := jsonBody(t, map[string]string{
		"email":    "admin@example.com",
		"password": testPassword,
	})
	rr := e.do(t, "POST", "/api/auth/login", body, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Token string `json:"token"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Token == "" {
		t.Fatal("adminToken: got empty token from login")
	}
	return resp.Token
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAuth executes an authenticated HTTP request.
func (e *testEnv) doAuth(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health check tests
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("readyz = %+v", resp)
	}
	if resp.Checks["schema_version"] != float64(site.Latest) {
		t.Errorf("schema_version = %v, want %d", resp.Checks["schema_version"], site.Latest)
	}
}

func TestReadyz_DatabaseClosed(t *testing.T) {
	env := newTestEnv(t)
	env.db.Close()

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

// ---------------------------------------------------------------------------
// Authentication tests
// ---------------------------------------------------------------------------

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)

	token := env.adminToken(t)
	rr := env.doAuth(t, "GET", "/api/auth/me", nil, token)
	assertStatus(t, rr, http.StatusOK)

	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	decodeJSON(t, rr, &me)
	if me.Email != "admin@example.com" || me.Role != site.RoleAdmin {
		t.Errorf("me = %+v", me)
	}
}

func TestProtectedEndpoints_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/projects"},
		{"PATCH", "/api/projects/1"},
		{"DELETE", "/api/projects/1"},
		{"POST", "/api/projects/1/restore"},
		{"POST", "/api/projects/1/tags"},
		{"DELETE", "/api/projects/1/tags/1"},
		{"POST", "/api/media"},
		{"GET", "/api/_stats"},
		{"GET", "/api/_drift"},
		{"GET", "/api/users"},
		{"GET", "/api/auth/me"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			rr := env.do(t, ep.method, ep.path, strings.NewReader("{}"), nil)
			assertStatus(t, rr, http.StatusUnauthorized)
		})
	}
}

func TestProtectedEndpoints_ExpiredJWT(t *testing.T) {
	env := newTestEnv(t)

	past := time.Now().Add(-time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":   1,
		"email": "admin@example.com",
		"role":  site.RoleAdmin,
		"iss":   "folio",
		"iat":   past.Add(-time.Hour).Unix(),
		"exp":   past.Unix(),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rr := env.doAuth(t, "GET", "/api/_stats", nil, token)
	assertStatus(t, rr, http.StatusUnauthorized)
	if !strings.Contains(rr.Body.String(), "Token expired") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestUsers_EditorForbidden(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.authSvc.CreateUser(context.Background(), "editor@example.com", testPassword, site.RoleEditor); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	rr := env.do(t, "POST", "/api/auth/login", jsonBody(t, map[string]string{
		"email": "editor@example.com", "password": testPassword,
	}), nil)
	var resp struct {
		Token string `json:"token"`
	}
	decodeJSON(t, rr, &resp)

	assertStatus(t, env.doAuth(t, "GET", "/api/users", nil, resp.Token), http.StatusForbidden)
	assertStatus(t, env.doAuth(t, "GET", "/api/_stats", nil, resp.Token), http.StatusOK)
}

// ---------------------------------------------------------------------------
// Full workflow: login -> create project -> add media and tags -> homepage
// ---------------------------------------------------------------------------

func TestFullWorkflow(t *testing.T) {
	env := newTestEnv(t)
	env.seedAdmin(t)
	token := env.adminToken(t)

	rr := env.doAuth(t, "POST", "/api/projects", jsonBody(t, map[string]any{
		"name":     "Harbor Identity",
		"slug":     "Harbor Identity",
		"year":     2024,
		"homepage": true,
	}), token)
	assertStatus(t, rr, http.StatusCreated)
	var project struct {
		ID   int64  `json:"id"`
		Slug string `json:"slug"`
	}
	decodeJSON(t, rr, &project)
	if project.Slug != "harbor-identity" {
		t.Errorf("slug = %q", project.Slug)
	}

	rr = env.doAuth(t, "POST", "/api/media", jsonBody(t, map[string]any{
		"name":       "Poster",
		"path":       "/uploads/poster.jpg",
		"project_id": project.ID,
	}), token)
	assertStatus(t, rr, http.StatusCreated)

	rr = env.doAuth(t, "POST", fmt.Sprintf("/api/projects/%d/tags", project.ID), jsonBody(t, map[string]string{"name": "branding"}), token)
	assertStatus(t, rr, http.StatusCreated)

	rr = env.do(t, "GET", "/api/projects/homepage", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	var home struct {
		Resource []struct {
			Slug  string           `json:"slug"`
			Media []map[string]any `json:"media"`
			Tags  []map[string]any `json:"tags"`
		} `json:"resource"`
	}
	decodeJSON(t, rr, &home)
	if len(home.Resource) != 1 || len(home.Resource[0].Media) != 1 || len(home.Resource[0].Tags) != 1 {
		t.Fatalf("homepage = %+v", home)
	}

	// Deleting the project hides it; its media stays until a forced delete.
	assertStatus(t, env.doAuth(t, "DELETE", fmt.Sprintf("/api/projects/%d", project.ID), nil, token), http.StatusOK)
	assertStatus(t, env.do(t, "GET", "/api/projects/slug/harbor-identity", nil, nil), http.StatusNotFound)

	assertStatus(t, env.doAuth(t, "DELETE", fmt.Sprintf("/api/projects/%d?force=true", project.ID), nil, token), http.StatusOK)
	rr = env.do(t, "GET", "/api/media", nil, nil)
	var media struct {
		Resource []map[string]any `json:"resource"`
	}
	decodeJSON(t, rr, &media)
	if len(media.Resource) != 0 {
		t.Errorf("media survived a forced project delete: %v", media.Resource)
	}
}

// ---------------------------------------------------------------------------
// OpenAPI, CORS and transport behavior
// ---------------------------------------------------------------------------

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Servers []struct{ URL string }    `json:"servers"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	decodeJSON(t, rr, &doc)
	if doc.OpenAPI != "3.0.3" {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	if len(doc.Servers) == 0 || doc.Servers[0].URL != "http://example.com" {
		t.Errorf("servers = %+v", doc.Servers)
	}
	if _, ok := doc.Paths["/api/projects"]["post"]; !ok {
		t.Error("projects should be writable")
	}
	if _, ok := doc.Paths["/api/tags"]["post"]; ok {
		t.Error("tags should be read-only")
	}
	if _, ok := doc.Paths["/api/users"]; ok {
		t.Error("users must not be described")
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/api/projects", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "PATCH",
		"Access-Control-Request-Headers": "Authorization,Content-Type",
	})

	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	// PATCH /healthz is not defined.
	rr := env.do(t, "PATCH", "/healthz", nil, nil)
	if rr.Code != http.StatusMethodNotAllowed && rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 405 or 404", rr.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	env := newTestEnv(t)

	body := bytes.NewBufferString("{invalid json")
	rr := env.do(t, "POST", "/api/auth/login", body, nil)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestMaxBodySize(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodySize = 64 })
	env.seedAdmin(t)

	body := fmt.Sprintf(`{"email":"admin@example.com","password":%q}`, strings.Repeat("x", 200))
	rr := env.do(t, "POST", "/api/auth/login", strings.NewReader(body), nil)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.LoginRateLimit = 2 })

	body := `{"email":"nobody@example.com","password":"whatever"}`
	for i := 0; i < 2; i++ {
		rr := env.do(t, "POST", "/api/auth/login", strings.NewReader(body), nil)
		assertStatus(t, rr, http.StatusUnauthorized)
	}
	rr := env.do(t, "POST", "/api/auth/login", strings.NewReader(body), nil)
	assertStatus(t, rr, http.StatusTooManyRequests)

	// Other endpoints keep working.
	assertStatus(t, env.do(t, "GET", "/api/tags", nil, nil), http.StatusOK)
}

func TestMount(t *testing.T) {
	env := newTestEnv(t)
	env.server.Mount("/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	assertStatus(t, env.do(t, "POST", "/mcp", nil, nil), http.StatusTeapot)
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Host = "127.0.0.1"
		c.Port = 0
		c.ShutdownTimeout = time.Second
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := env.db.Ping(context.Background()); err == nil {
		t.Error("database should be closed after shutdown")
	}
}

// ---------------------------------------------------------------------------
// Config conversion
// ---------------------------------------------------------------------------

func TestFromConfig(t *testing.T) {
	c := config.Default().Server
	c.Port = 9090
	c.MaxBodySize = "1MB"
	c.ShutdownTimeout = "5s"
	c.RateLimit.Requests = 0
	c.CORS.Origins = []string{"https://folio.example"}

	got := FromConfig(c)
	if got.Port != 9090 || got.MaxBodySize != 1024*1024 || got.ShutdownTimeout != 5*time.Second {
		t.Errorf("FromConfig = %+v", got)
	}
	if got.RateLimit != 0 || got.LoginRateLimit != 10 || got.RateWindow != time.Minute {
		t.Errorf("rate limits = %d/%d per %s", got.RateLimit, got.LoginRateLimit, got.RateWindow)
	}
	if len(got.CORSOrigins) != 1 || got.CORSOrigins[0] != "https://folio.example" {
		t.Errorf("origins = %v", got.CORSOrigins)
	}
}
