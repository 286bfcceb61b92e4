package orm

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"
)

// stmtCache memoizes prepared statements by SQL text. Entries are dropped
// only by clear, which ClearCache and Close call.
type stmtCache struct {
	mu    sync.Mutex
	stmts map[string]*sqlx.NamedStmt
}

func newStmtCache() *stmtCache {
	return &stmtCache{stmts: map[string]*sqlx.NamedStmt{}}
}

// get returns the cached statement for query, preparing it on a miss.
// Preparing waits for the pool's only connection, which an open transaction
// may hold, so it runs without c.mu; the transaction's own lookups must not
// queue behind it. A statement prepared concurrently by another caller wins
// and the duplicate is closed.
func (c *stmtCache) get(ctx context.Context, db *sqlx.DB, query string) (*sqlx.NamedStmt, error) {
	if st, ok := c.lookup(query); ok {
		return st, nil
	}
	st, err := db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.stmts[query]; ok {
		st.Close() //nolint:errcheck
		return existing, nil
	}
	c.stmts[query] = st
	return st, nil
}

func (c *stmtCache) lookup(query string) (*sqlx.NamedStmt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.stmts[query]
	return st, ok
}

func (c *stmtCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stmts)
}

func (c *stmtCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, st := range c.stmts {
		st.Close() //nolint:errcheck
	}
	c.stmts = map[string]*sqlx.NamedStmt{}
}

// prepared returns a statement usable on d's connection or transaction and
// a release func. Inside a transaction a cached statement is rebound to the
// transaction; a miss is prepared on the transaction itself, because the
// pool's only connection is held by it.
func (d *DB) prepared(ctx context.Context, query string) (*sqlx.NamedStmt, func(), error) {
	if d.tx == nil {
		st, err := d.stmts.get(ctx, d.db, query)
		return st, func() {}, err
	}
	if st, ok := d.stmts.lookup(query); ok {
		return d.tx.NamedStmtContext(ctx, st), func() {}, nil
	}
	st, err := d.tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil //nolint:errcheck
}

func (d *DB) exec(ctx context.Context, query string, args map[string]any) (sql.Result, error) {
	d.log.Debug("exec", "sql", query)
	st, release, err := d.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	defer release()
	return st.ExecContext(ctx, args)
}

// queryRecords runs a SELECT and returns raw storage values per column.
func (d *DB) queryRecords(ctx context.Context, query string, args map[string]any) ([]Record, error) {
	d.log.Debug("query", "sql", query)
	st, release, err := d.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := st.QueryxContext(ctx, args)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// queryUncached runs ad-hoc SQL without preparing it into the cache.
func (d *DB) queryUncached(ctx context.Context, query string, args map[string]any) ([]Record, error) {
	d.log.Debug("query", "sql", query, "cached", false)
	rows, err := sqlx.NamedQueryContext(ctx, d.ext(), query, args)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func scanRecords(rows *sqlx.Rows) ([]Record, error) {
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		out = append(out, Record(m))
	}
	return out, rows.Err()
}

// ext is the transaction when d is bound to one, else the pool.
func (d *DB) ext() sqlx.ExtContext {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// execDDL runs a statement that takes no parameters and is not cached.
func (d *DB) execDDL(ctx context.Context, stmt string) error {
	d.log.Debug("ddl", "sql", stmt)
	_, err := d.ext().ExecContext(ctx, stmt)
	return err
}

// ClearCache closes and forgets every cached prepared statement.
func (d *DB) ClearCache() {
	d.stmts.clear()
	d.log.Info("statement cache cleared")
}
