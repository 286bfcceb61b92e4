package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foliodb/folio/internal/config"
	"github.com/foliodb/folio/internal/handler"
	"github.com/foliodb/folio/internal/openapi"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/server/middleware"
	"github.com/foliodb/folio/internal/service"
	"github.com/foliodb/folio/internal/site"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CORSMethods     []string
	MaxBodySize     int64 // bytes
	RateLimit       int   // requests per RateWindow per client IP; 0 disables
	LoginRateLimit  int
	RateWindow      time.Duration
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		CORSMethods:     []string{"GET", "POST", "PATCH", "DELETE"},
		MaxBodySize:     10 * 1024 * 1024, // 10MB
		RateLimit:       300,
		LoginRateLimit:  10,
		RateWindow:      time.Minute,
		Version:         "dev",
	}
}

// FromConfig converts the file configuration into a server Config. Values
// that fail to parse fall back to the defaults; config.Validate has already
// rejected them at load time.
func FromConfig(c config.ServerConfig) Config {
	cfg := DefaultConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.ShutdownTimeout = config.Duration(c.ShutdownTimeout, cfg.ShutdownTimeout)
	if len(c.CORS.Origins) > 0 {
		cfg.CORSOrigins = c.CORS.Origins
	}
	if len(c.CORS.Methods) > 0 {
		cfg.CORSMethods = c.CORS.Methods
	}
	if n, err := config.ParseSize(c.MaxBodySize); err == nil && n > 0 {
		cfg.MaxBodySize = n
	}
	cfg.RateLimit = c.RateLimit.Requests
	cfg.LoginRateLimit = c.RateLimit.LoginRequests
	cfg.RateWindow = config.Duration(c.RateLimit.Window, cfg.RateWindow)
	return cfg
}

// Server is the top-level HTTP server for folio. It owns the Chi router,
// the database handle and the authentication service.
type Server struct {
	cfg        Config
	router     chi.Router
	db         *orm.DB
	authSvc    *service.AuthService
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, db *orm.DB, authSvc *service.AuthService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		db:      db,
		authSvc: authSvc,
		logger:  logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger, "/healthz", "/readyz"))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   append([]string{"OPTIONS"}, s.cfg.CORSMethods...),
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	r.Use(chimw.RequestSize(s.cfg.MaxBodySize))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI document (no auth required) ---
	openAPIHandler := handler.NewOpenAPIHandler(s.db, site.PublicTables, []string{site.Tags}, openapi.Info{
		Title:   "Folio API",
		Version: s.cfg.Version,
	})
	r.Get("/openapi.json", openAPIHandler.ServeSpec)

	sysHandler := handler.NewSystemHandler(s.db, s.authSvc)
	projHandler := handler.NewProjectHandler(s.db)
	projects := handler.NewTableHandler(s.db, site.Projects)
	media := handler.NewTableHandler(s.db, site.Media)
	tags := handler.NewTableHandler(s.db, site.Tags)
	schemaHandler := handler.NewSchemaHandler(s.db, site.PublicTables)

	requireAuth := middleware.Authenticate(s.authSvc)

	// --- API routes ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimit, s.cfg.RateWindow))
		r.Use(middleware.OptionalAuth(s.authSvc))

		// Session endpoints
		r.With(middleware.RateLimitLogin(s.cfg.LoginRateLimit, s.cfg.RateWindow)).Post("/auth/login", sysHandler.Login)
		r.With(requireAuth).Get("/auth/me", sysHandler.Me)

		// Projects: public reads, authenticated writes
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projects.List)
			r.Get("/homepage", projHandler.Homepage)
			r.Get("/slug/{slug}", projHandler.BySlug)
			r.Get("/{id}", projects.Get)
			r.Get("/{id}/media", projHandler.Media)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", projects.Create)
				r.Patch("/{id}", projects.Update)
				r.Delete("/{id}", projects.Delete)
				r.Post("/{id}/restore", projects.Restore)
				r.Post("/{id}/tags", projHandler.Tag)
				r.Delete("/{id}/tags/{tagID}", projHandler.Untag)
			})
		})

		// Media
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

		// Tags are managed through project links
		r.Get("/tags", tags.List)
		r.Get("/tags/{id}", tags.Get)

		// Schema introspection
		r.Get("/_schema", schemaHandler.ListTables)
		r.Get("/_schema/{table}", schemaHandler.GetTableSchema)

		// Maintenance and user management
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/_stats", sysHandler.Stats)
			r.Get("/_drift", sysHandler.Drift)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Get("/users", sysHandler.ListUsers)
				r.Post("/users", sysHandler.CreateUser)
			})
		})
	})

	s.router = r
}

// Mount attaches an extra handler, such as the MCP endpoint, under pattern.
// It must be called before the server starts.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the database answers
// and reports the applied schema version, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["database"] = "ok"
	}
	if v, err := s.db.Version(r.Context()); err == nil {
		checks["schema_version"] = v
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the database.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
