package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/foliodb/folio/internal/config"
	"github.com/foliodb/folio/internal/contract"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/site"
)

func TestApplyOverrides(t *testing.T) {
	t.Cleanup(func() {
		viper.Reset()
		dbPath = ""
	})
	viper.Set("server.port", 9999)
	viper.Set("auth.jwt_secret", "from-env")
	viper.Set("mcp.enabled", false)
	dbPath = "/tmp/override.db"

	cfg := config.Default()
	applyOverrides(cfg)

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.MCP.Enabled {
		t.Error("mcp.enabled should be overridden")
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("path = %q, --db should win", cfg.Database.Path)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unset keys keep defaults, host = %q", cfg.Server.Host)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.LoggingConfig
		want   string
		silent bool
	}{
		{"text", config.LoggingConfig{Level: "info", Format: "text"}, "msg=hello", false},
		{"json", config.LoggingConfig{Level: "info", Format: "JSON"}, `"msg":"hello"`, false},
		{"silent", config.LoggingConfig{Level: "silent"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newLogger(tt.cfg, &buf).Info("hello")
			if tt.silent {
				if buf.Len() != 0 {
					t.Errorf("silent logger wrote %q", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q should contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{10 << 20, "10.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenDBMigrates(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "site.db")
	cfg.Database.LogLevel = "silent"

	db, err := openDB(t.Context(), cfg, true)
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()

	v, err := db.Version(t.Context())
	if err != nil || v != site.Latest {
		t.Errorf("version = %d, %v; want %d", v, err, site.Latest)
	}
}

func TestCheckDrift(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "site.db")
	cfg.Database.LogLevel = "silent"
	db, err := openDB(t.Context(), cfg, true)
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	defer db.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, p := range []contract.Policy{contract.PolicyIgnore, contract.PolicyWarn, contract.PolicyFail} {
		if err := checkDrift(t.Context(), db, p, logger); err != nil {
			t.Errorf("policy %s on a clean database: %v", p, err)
		}
	}

	// Dropping a declared table is breaking drift.
	if _, err := db.RawQuery(t.Context(), "DROP TABLE "+site.ProjectTags, nil); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := checkDrift(t.Context(), db, contract.PolicyWarn, logger); err != nil {
		t.Errorf("warn policy should not fail: %v", err)
	}
	if err := checkDrift(t.Context(), db, contract.PolicyFail, logger); err == nil {
		t.Error("fail policy should refuse breaking drift")
	}
}

func TestSeedIfEmpty(t *testing.T) {
	db, err := orm.Open(orm.Config{LogLevel: "silent"})
	if err != nil {
		t.Fatalf("orm.Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := site.Migrate(ctx, db); err != nil {
		t.Fatalf("site.Migrate: %v", err)
	}

	dir := t.TempDir()
	fixture := `[{"name":"Atlas","slug":"atlas"}]`
	if err := os.WriteFile(filepath.Join(dir, site.Projects+".json"), []byte(fixture), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := seedIfEmpty(ctx, db, "", logger); err == nil {
		t.Error("expected an error without a seed dir")
	}
	// The second run sees data and skips.
	for range 2 {
		if err := seedIfEmpty(ctx, db, dir, logger); err != nil {
			t.Fatalf("seedIfEmpty: %v", err)
		}
	}
	n, err := db.Count(ctx, site.Projects, nil)
	if err != nil || n != 1 {
		t.Errorf("projects = %d, %v; want 1", n, err)
	}
}
