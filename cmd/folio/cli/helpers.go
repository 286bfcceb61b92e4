package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/foliodb/folio/internal/config"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/site"
)

// loadConfig resolves the effective configuration: defaults, then the
// config file viper found, then FOLIO_* environment variables and flags.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies the keys that may be set from the environment
// (FOLIO_SERVER_PORT, FOLIO_AUTH_JWT_SECRET, ...) or bound flags.
func applyOverrides(cfg *config.Config) {
	strs := map[string]*string{
		"server.host":           &cfg.Server.Host,
		"database.path":         &cfg.Database.Path,
		"database.log_level":    &cfg.Database.LogLevel,
		"database.drift_policy": &cfg.Database.DriftPolicy,
		"auth.jwt_secret":       &cfg.Auth.JWTSecret,
		"auth.jwt_expiry":       &cfg.Auth.JWTExpiry,
		"seed.dir":              &cfg.Seed.Dir,
		"mcp.transport":         &cfg.MCP.Transport,
		"logging.level":         &cfg.Logging.Level,
		"logging.format":        &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	ints := map[string]*int{
		"server.port": &cfg.Server.Port,
		"mcp.port":    &cfg.MCP.Port,
	}
	for key, dst := range ints {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}
	if viper.IsSet("mcp.enabled") {
		cfg.MCP.Enabled = viper.GetBool("mcp.enabled")
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
}

// newLogger builds the process logger from the logging section. Logs go
// to stderr so stdout stays usable for command output and MCP stdio.
func newLogger(c config.LoggingConfig, w io.Writer) *slog.Logger {
	level, ok := orm.ParseLogLevel(c.Level)
	if !ok {
		return slog.New(slog.DiscardHandler)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openDB opens the configured database and defines the site tables. When
// migrate is set, pending migrations are applied as well.
func openDB(ctx context.Context, cfg *config.Config, migrate bool) (*orm.DB, error) {
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("database.path is not set (use --db or FOLIO_DATABASE_PATH)")
	}
	db, err := orm.Open(cfg.ORMConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if migrate {
		err = site.Migrate(ctx, db)
	} else {
		err = site.Define(ctx, db)
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}

func stderrLogger(cfg *config.Config) *slog.Logger {
	return newLogger(cfg.Logging, os.Stderr)
}
