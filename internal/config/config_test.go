package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "folio.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("FOLIO_TEST_SECRET", "s3cret")
	path := writeFile(t, `
server:
  port: 9090
database:
  path: /tmp/folio.db
auth:
  jwt_secret: ${FOLIO_TEST_SECRET}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("jwt_secret = %q, env not expanded", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Auth.JWTExpiry != "24h" {
		t.Errorf("defaults lost: host=%q expiry=%q", cfg.Server.Host, cfg.Auth.JWTExpiry)
	}
	if cfg.Database.DriftPolicy != "warn" {
		t.Errorf("drift_policy = %q", cfg.Database.DriftPolicy)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "server: [", "parse config file"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad size", "server:\n  max_body_size: lots\n", "max_body_size"},
		{"bad duration", "auth:\n  jwt_expiry: forever\n", "auth.jwt_expiry"},
		{"bad policy", "database:\n  drift_policy: panic\n", "drift_policy"},
		{"bad transport", "mcp:\n  transport: carrier-pigeon\n", "mcp.transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.MCP.Transport != "stdio" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"512", 512, false},
		{"512B", 512, false},
		{"64KB", 64 << 10, false},
		{"10MB", 10 << 20, false},
		{"1gb", 1 << 30, false},
		{"ten", 0, true},
		{"-1MB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Errorf("empty = %v", got)
	}
	if got := Duration("nope", time.Second); got != time.Second {
		t.Errorf("invalid = %v", got)
	}
	if got := Duration("2m", time.Second); got != 2*time.Minute {
		t.Errorf("2m = %v", got)
	}
}

func TestORMConfig(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/data/folio.db"
	cfg.Database.BusyTimeout = "250ms"

	oc := cfg.ORMConfig()
	if oc.Path != "/data/folio.db" || oc.BusyTimeout != 250*time.Millisecond || oc.LogLevel != "warn" {
		t.Errorf("orm config = %+v", oc)
	}
}
