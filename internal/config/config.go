// Package config loads the folio configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foliodb/folio/internal/contract"
	"github.com/foliodb/folio/internal/orm"
)

// Config represents the top-level folio configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Seed     SeedConfig     `yaml:"seed"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	MaxBodySize     string          `yaml:"max_body_size"`
	ShutdownTimeout string          `yaml:"shutdown_timeout"`
	CORS            CORSConfig      `yaml:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// RateLimitConfig caps requests per client IP. Zero disables a limit.
type RateLimitConfig struct {
	Requests      int    `yaml:"requests"`
	Window        string `yaml:"window"`
	LoginRequests int    `yaml:"login_requests"`
}

// DatabaseConfig is handed to the engine at startup.
type DatabaseConfig struct {
	Path        string            `yaml:"path"`
	LogLevel    string            `yaml:"log_level"`
	BusyTimeout string            `yaml:"busy_timeout"`
	JournalMode string            `yaml:"journal_mode"`
	Pragmas     map[string]string `yaml:"pragmas,omitempty"`
	DriftPolicy string            `yaml:"drift_policy"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry string `yaml:"jwt_expiry"`
}

// SeedConfig points at the JSON fixtures loaded by "folio seed".
type SeedConfig struct {
	Dir     string `yaml:"dir"`
	OnStart bool   `yaml:"on_start"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
	Port      int    `yaml:"port"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML configuration file on top of the defaults.
// Environment variables referenced as ${VAR_NAME} in the file are expanded
// before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config pre-filled with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "10MB",
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PATCH", "DELETE"},
			},
			RateLimit: RateLimitConfig{
				Requests:      300,
				Window:        "1m",
				LoginRequests: 10,
			},
		},
		Database: DatabaseConfig{
			Path:        "folio.db",
			LogLevel:    "warn",
			BusyTimeout: "5s",
			DriftPolicy: string(contract.PolicyWarn),
		},
		Auth: AuthConfig{
			JWTExpiry: "24h",
		},
		MCP: MCPConfig{
			Enabled:   true,
			Transport: "stdio",
			Port:      8081,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := ParseSize(c.Server.MaxBodySize); err != nil {
		return fmt.Errorf("server.max_body_size: %w", err)
	}
	for name, d := range map[string]string{
		"server.shutdown_timeout":  c.Server.ShutdownTimeout,
		"server.rate_limit.window": c.Server.RateLimit.Window,
		"database.busy_timeout":    c.Database.BusyTimeout,
		"auth.jwt_expiry":          c.Auth.JWTExpiry,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if p := c.Database.DriftPolicy; p != "" && !contract.ValidPolicy(p) {
		return fmt.Errorf("database.drift_policy %q must be ignore, warn or fail", p)
	}
	switch c.MCP.Transport {
	case "", "stdio", "http":
	default:
		return fmt.Errorf("mcp.transport %q must be stdio or http", c.MCP.Transport)
	}
	return nil
}

// ORMConfig translates the database section for orm.Open.
func (c *Config) ORMConfig() orm.Config {
	return orm.Config{
		Path:        c.Database.Path,
		LogLevel:    c.Database.LogLevel,
		BusyTimeout: Duration(c.Database.BusyTimeout, 5*time.Second),
		JournalMode: c.Database.JournalMode,
		Pragmas:     c.Database.Pragmas,
	}
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Duration parses s, falling back to def when s is empty or invalid.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ParseSize parses sizes such as "512", "64KB" or "10MB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

// WriteDefault writes the default configuration to a YAML file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
