// Package orm is an embedded object-relational mapping layer over SQLite.
//
// Tables are declared in Go with typed columns, relations and lifecycle
// hooks. Records are maps keyed by column name: values are validated and
// coerced on the way in, converted back to native Go values on the way out,
// and every condition is compiled into SQL with bound parameters only.
package orm

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

const metaTable = "_meta"

// Config is accepted at construction.
type Config struct {
	// Path is the database file. Empty opens a private in-memory database.
	Path string
	// LogLevel is one of debug, info, warn, error or silent.
	LogLevel string
	// BusyTimeout is how long a locked database is retried. Defaults to 5s.
	BusyTimeout time.Duration
	// JournalMode defaults to WAL for file databases.
	JournalMode string
	// Pragmas are passed through to every connection.
	Pragmas map[string]string
	// Logger overrides the logger built from LogLevel.
	Logger *slog.Logger
	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// DB is an engine instance. A DB returned by Transaction is bound to that
// transaction and shares the registry and statement cache of its parent.
type DB struct {
	db    *sqlx.DB
	tx    *sqlx.Tx
	reg   *Registry
	stmts *stmtCache
	log   *slog.Logger
	now   func() time.Time
	path  string
}

func init() {
	// fold lower-cases Unicode text so ILIKE works beyond ASCII.
	err := sqlite.RegisterDeterministicScalarFunction("fold", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
	if err != nil {
		panic(fmt.Sprintf("orm: register fold function: %v", err))
	}
}

// Open connects to the database, applies pragmas and prepares the meta table.
func Open(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger(cfg.LogLevel, os.Stderr)
	}

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, newError(CodeInitialization, err, "create data dir")
		}
	}

	db, err := sqlx.Connect("sqlite", buildDSN(cfg))
	if err != nil {
		return nil, newError(CodeInitialization, err, "open database %q", cfg.Path)
	}

	// One connection: SQLite serialises writers, and an in-memory database
	// only exists on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	d := &DB{
		db:    db,
		reg:   newRegistry(),
		stmts: newStmtCache(),
		log:   logger,
		now:   now,
		path:  cfg.Path,
	}

	if err := d.initMeta(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database opened", "path", displayPath(cfg.Path))
	return d, nil
}

func buildDSN(cfg Config) string {
	base := ":memory:"
	if cfg.Path != "" {
		base = cfg.Path
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))

	journal := cfg.JournalMode
	if journal == "" && cfg.Path != "" {
		journal = "WAL"
	}
	if journal != "" {
		q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", journal))
	}

	keys := make([]string, 0, len(cfg.Pragmas))
	for k := range cfg.Pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Add("_pragma", fmt.Sprintf("%s(%s)", k, cfg.Pragmas[k]))
	}

	return base + "?" + q.Encode()
}

func (d *DB) initMeta(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL DEFAULT 0,
			last_updated TEXT DEFAULT CURRENT_TIMESTAMP,
			migration_history TEXT NOT NULL DEFAULT '[]'
		)`,
		`INSERT OR IGNORE INTO _meta (id, version) VALUES (1, 0)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return newError(CodeInitialization, err, "initialize meta table")
		}
	}
	return nil
}

// NewLogger builds a text logger at the given level. "silent" discards
// everything; unknown levels fall back to info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl, ok := ParseLogLevel(level)
	if !ok {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// ParseLogLevel maps a level name to slog. The boolean is false for "silent".
func ParseLogLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "silent", "off", "none":
		return 0, false
	default:
		return slog.LevelInfo, true
	}
}

// Registry exposes the table catalog.
func (d *DB) Registry() *Registry { return d.reg }

// Table returns the named table definition.
func (d *DB) Table(name string) (*Table, bool) { return d.reg.Get(name) }

// Tables returns every defined table in definition order.
func (d *DB) Tables() []*Table { return d.reg.Tables() }

// Path returns the database file path, empty for in-memory databases.
func (d *DB) Path() string { return d.path }

// Logger returns the engine logger.
func (d *DB) Logger() *slog.Logger { return d.log }

// InTransaction reports whether d is bound to a transaction.
func (d *DB) InTransaction() bool { return d.tx != nil }

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) table(name string) (*Table, error) {
	t, ok := d.reg.Get(name)
	if !ok {
		return nil, modelNotFound(name)
	}
	return t, nil
}

func (d *DB) timestamp() string {
	return d.now().Format(TimestampLayout)
}

func displayPath(p string) string {
	if p == "" {
		return ":memory:"
	}
	return p
}
