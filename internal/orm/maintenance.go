package orm

import (
	"context"
	"os"
	"path/filepath"

	"github.com/foliodb/folio/internal/contract"
)

// TableStats is the row count of one table.
type TableStats struct {
	Name    string `json:"name"`
	Rows    int64  `json:"rows"`
	Deleted int64  `json:"deleted,omitempty"`
}

// Stats describes the engine and its data file.
type Stats struct {
	Path             string       `json:"path"`
	Version          int          `json:"version"`
	Tables           []TableStats `json:"tables"`
	CachedStatements int          `json:"cached_statements"`
	SizeBytes        int64        `json:"size_bytes"`
}

// RawQuery runs sql with ":name" parameters bound from params and returns
// any rows it produces. Values are returned as stored. Raw statements are
// not added to the statement cache.
func (d *DB) RawQuery(ctx context.Context, sql string, params map[string]any) ([]Record, error) {
	if params == nil {
		params = map[string]any{}
	}
	rows, err := d.queryUncached(ctx, sql, params)
	if err != nil {
		d.log.Error("raw query failed", "error", err)
		return nil, newError(CodeRawQuery, err, "raw query")
	}
	for _, r := range rows {
		for k, v := range r {
			if b, ok := v.([]byte); ok {
				r[k] = string(b)
			}
		}
	}
	return rows, nil
}

// Backup writes a consistent copy of the database to dest, which must not
// already exist.
func (d *DB) Backup(ctx context.Context, dest string) error {
	if d.tx != nil {
		return newError(CodeBackup, nil, "backup cannot run inside a transaction")
	}
	if dest == "" {
		return newError(CodeBackup, nil, "backup destination is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return newError(CodeBackup, err, "create backup dir")
	}
	if _, err := d.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return newError(CodeBackup, err, "backup to %q", dest)
	}
	d.log.Info("database backed up", "dest", dest)
	return nil
}

// Vacuum rebuilds the database file, reclaiming free pages.
func (d *DB) Vacuum(ctx context.Context) error {
	if d.tx != nil {
		return newError(CodeVacuum, nil, "vacuum cannot run inside a transaction")
	}
	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		return newError(CodeVacuum, err, "vacuum")
	}
	d.log.Info("database vacuumed")
	return nil
}

// Stats counts rows per defined table and reports the cache and file size.
func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	version, err := d.Version(ctx)
	if err != nil {
		return nil, err
	}
	s := &Stats{
		Path:             displayPath(d.path),
		Version:          version,
		Tables:           []TableStats{},
		CachedStatements: d.stmts.len(),
	}

	for _, t := range d.Tables() {
		live, err := d.CountBy(ctx, t.Name, CountOptions{})
		if err != nil {
			return nil, err
		}
		ts := TableStats{Name: t.Name, Rows: live}
		if t.Options.Paranoid {
			all, err := d.CountBy(ctx, t.Name, CountOptions{WithDeleted: true})
			if err != nil {
				return nil, err
			}
			ts.Deleted = all - live
		}
		s.Tables = append(s.Tables, ts)
	}

	rows, err := d.queryRecords(ctx,
		"SELECT page_count * page_size AS size FROM pragma_page_count(), pragma_page_size()", nil)
	if err != nil {
		return nil, newError(CodeQuery, err, "read database size")
	}
	if len(rows) > 0 {
		s.SizeBytes, _ = parseInt(rows[0]["size"])
	}
	return s, nil
}

// TableExists reports whether name exists in the database. Lookup
// failures are logged and reported as false.
func (d *DB) TableExists(ctx context.Context, name string) bool {
	rows, err := d.queryRecords(ctx,
		"SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'table' AND name = :name",
		map[string]any{"name": name})
	if err != nil {
		d.log.Warn("table lookup failed", "table", name, "error", err)
		return false
	}
	n, _ := parseInt(rows[0]["n"])
	return n > 0
}

// LiveColumns reads the stored shape of a table.
func (d *DB) LiveColumns(ctx context.Context, table string) ([]contract.ColumnShape, error) {
	rows, err := d.queryRecords(ctx,
		`SELECT name, type, "notnull" AS nn, pk FROM pragma_table_info(:table) ORDER BY cid`,
		map[string]any{"table": table})
	if err != nil {
		return nil, newError(CodeQuery, err, "read columns of %q", table)
	}
	out := make([]contract.ColumnShape, 0, len(rows))
	for _, r := range rows {
		name, _ := toText(r["name"]).(string)
		typ, _ := toText(r["type"]).(string)
		nn, _ := parseInt(r["nn"])
		pk, _ := parseInt(r["pk"])
		out = append(out, contract.ColumnShape{Name: name, Type: typ, Nullable: nn == 0 && pk == 0})
	}
	return out, nil
}

// Shape is the storage-level view of a defined table, as Define creates it.
func (t *Table) Shape() contract.TableShape {
	shape := contract.TableShape{Name: t.Name}
	for _, c := range t.all {
		typ := c.Type.SQLType()
		if c.Type == AutoID {
			typ = "INTEGER"
		}
		shape.Columns = append(shape.Columns, contract.ColumnShape{
			Name:     c.Name,
			Type:     typ,
			Nullable: !(c.Required || c.PrimaryKey || c.Type == AutoID),
		})
	}
	return shape
}

// Drift compares every defined table with the table stored in the file.
// Define never alters an existing table, so a model changed after its table
// was created shows up here.
func (d *DB) Drift(ctx context.Context) (contract.SchemaReport, error) {
	declared := []contract.TableShape{}
	live := map[string]contract.TableShape{}
	for _, t := range d.Tables() {
		declared = append(declared, t.Shape())
		if !d.TableExists(ctx, t.Name) {
			continue
		}
		cols, err := d.LiveColumns(ctx, t.Name)
		if err != nil {
			return contract.SchemaReport{}, err
		}
		live[t.Name] = contract.TableShape{Name: t.Name, Columns: cols}
	}
	return contract.DiffSchema(declared, live), nil
}

// Close releases cached statements and the connection.
func (d *DB) Close() error {
	if d.tx != nil {
		return newError(CodeTransaction, nil, "cannot close a transaction-bound handle")
	}
	d.stmts.clear()
	if err := d.db.Close(); err != nil {
		return err
	}
	d.log.Info("database closed", "path", displayPath(d.path))
	return nil
}
