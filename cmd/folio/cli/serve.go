package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foliodb/folio/internal/config"
	"github.com/foliodb/folio/internal/contract"
	fmcp "github.com/foliodb/folio/internal/mcp"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/server"
	"github.com/foliodb/folio/internal/service"
	"github.com/foliodb/folio/internal/site"
)

const banner = `
  __       _ _
 / _| ___ | (_) ___
| |_ / _ \| | |/ _ \
|  _| (_) | | | (_) |
|_|  \___/|_|_|\___/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
		seed bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Folio API server",
		Long: `Start the HTTP server. The database is migrated to the latest schema version
and checked for drift before the first request is accepted.`,
		Example: `  folio serve --db site.db
  folio serve --dev --seed   # development secret, load fixtures from seed.dir`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), dev, seed)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, generated JWT secret)")
	cmd.Flags().BoolVar(&seed, "seed", false, "Load seed fixtures into an empty database before serving")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, dev, seed bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dev {
		cfg.Logging.Level = "debug"
	}
	logger := stderrLogger(cfg)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if !dev {
			return fmt.Errorf("%w: set FOLIO_AUTH_JWT_SECRET or run with --dev", config.ErrNoSecret)
		}
		// Tokens die with the process in development mode.
		secret = uuid.NewString()
		logger.Warn("using a generated JWT secret; tokens will not survive a restart")
	}

	fmt.Print(banner)
	fmt.Println()

	// 1. Open the database and bring it to the latest version
	db, err := openDB(ctx, cfg, true)
	if err != nil {
		return err
	}
	version, _ := db.Version(ctx)
	logger.Info("database ready", "path", db.Path(), "schema_version", version)

	// 2. Compare declared and live schemas
	if err := checkDrift(ctx, db, contract.Policy(cfg.Database.DriftPolicy), logger); err != nil {
		db.Close()
		return err
	}

	// 3. Seed fixtures into an empty database
	if seed || cfg.Seed.OnStart {
		if err := seedIfEmpty(ctx, db, cfg.Seed.Dir, logger); err != nil {
			db.Close()
			return err
		}
	}

	// 4. Initialize auth service
	authSvc := service.NewAuthService(db, secret, config.Duration(cfg.Auth.JWTExpiry, 24*time.Hour))

	admins, err := db.Count(ctx, site.Users, orm.Where{"role": site.RoleAdmin})
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if admins == 0 {
		logger.Warn("no admin account found - run: folio user create --role admin")
	}

	// 5. Build the HTTP server
	srvCfg := server.FromConfig(cfg.Server)
	srvCfg.Version = versionString()
	srv := server.New(srvCfg, db, authSvc, logger)

	mcpMounted := cfg.MCP.Enabled && cfg.MCP.Transport == "http"
	if mcpMounted {
		mcpSrv := fmcp.NewMCPServer(db, site.PublicTables, versionString(), logger)
		srv.Mount("/mcp", mcpSrv.Handler())
	}

	fmt.Printf("→ Folio %s\n", versionString())
	fmt.Printf("→ Listening on http://%s\n", cfg.Server.Addr())
	fmt.Printf("→ OpenAPI:    http://%s/openapi.json\n", cfg.Server.Addr())
	fmt.Printf("→ Health:     http://%s/healthz\n", cfg.Server.Addr())
	if mcpMounted {
		fmt.Printf("→ MCP:        http://%s/mcp\n", cfg.Server.Addr())
	}
	fmt.Printf("→ Database:   %s (schema v%d)\n", db.Path(), version)
	fmt.Println()

	return srv.ListenAndServe()
}

// checkDrift applies the configured drift policy to the live database.
func checkDrift(ctx context.Context, db *orm.DB, policy contract.Policy, logger *slog.Logger) error {
	if policy == contract.PolicyIgnore {
		return nil
	}
	report, err := db.Drift(ctx)
	if err != nil {
		return fmt.Errorf("check schema drift: %w", err)
	}
	for _, t := range report.Tables {
		for _, item := range t.Items {
			logger.Warn("schema drift", "table", t.TableName, "type", item.Type, "detail", item.Description)
		}
	}
	if policy == contract.PolicyFail && report.HasBreaking() {
		return fmt.Errorf("schema drift: %d breaking changes in %d tables (drift_policy is fail)",
			report.BreakingCount, report.DriftedTables)
	}
	return nil
}

// seedIfEmpty loads fixtures only when no users or projects exist yet, so
// restarts do not trip unique constraints.
func seedIfEmpty(ctx context.Context, db *orm.DB, dir string, logger *slog.Logger) error {
	if dir == "" {
		return fmt.Errorf("seeding requested but seed.dir is not set")
	}
	for _, table := range []string{site.Users, site.Projects} {
		n, err := db.CountBy(ctx, table, orm.CountOptions{WithDeleted: true})
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("database already has data, skipping seed", "table", table, "rows", n)
			return nil
		}
	}
	counts, err := site.Seed(ctx, db, dir)
	if err != nil {
		return err
	}
	for table, n := range counts {
		logger.Info("seeded", "table", table, "rows", n)
	}
	return nil
}
