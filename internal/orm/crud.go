package orm

import (
	"context"
	"strconv"
	"strings"

	"github.com/foliodb/folio/internal/query"
)

// Created is the result of a successful insert. ID is the generated key for
// AutoID and Integer keys and zero otherwise; Record always holds the key.
type Created struct {
	ID     int64  `json:"id"`
	Record Record `json:"record"`
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Asc orders by col ascending.
func Asc(col string) Order { return Order{Column: col} }

// Desc orders by col descending.
func Desc(col string) Order { return Order{Column: col, Desc: true} }

// Include requests eager loading of the relation registered under As.
type Include struct {
	As          string
	Where       Where
	Columns     []string
	OrderBy     []Order
	WithDeleted bool
	Include     []Include
}

// With is shorthand for including relations by alias with no options.
func With(aliases ...string) []Include {
	out := make([]Include, len(aliases))
	for i, a := range aliases {
		out[i] = Include{As: a}
	}
	return out
}

// FindOptions controls FindAll, FindOne and FindByPK.
type FindOptions struct {
	Where       Where
	Include     []Include
	Limit       int
	Offset      int
	OrderBy     []Order
	Columns     []string
	Distinct    bool
	WithDeleted bool
}

// CountOptions controls CountBy.
type CountOptions struct {
	Where       Where
	WithDeleted bool
}

// DeleteOptions controls Delete. Force removes rows of paranoid tables
// physically, including rows already soft-deleted.
type DeleteOptions struct {
	Force bool
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

// Create validates data, runs the create hooks and inserts one row.
func (d *DB) Create(ctx context.Context, table string, data Record) (*Created, error) {
	t, err := d.table(table)
	if err != nil {
		return nil, err
	}

	clean, err := validateRecord(t, data, false)
	if err != nil {
		return nil, err
	}
	if h := t.Options.Hooks.BeforeCreate; h != nil {
		if err := h(ctx, clean); err != nil {
			return nil, newError(CodeCreate, err, "before create hook on %q", table)
		}
	}

	rec := t.declared(clean)
	if t.Options.Timestamps {
		now := d.timestamp()
		rec[ColCreatedAt] = now
		rec[ColUpdatedAt] = now
	}

	cols, params := t.storageArgs(rec)
	var q string
	if len(cols) == 0 {
		q = "INSERT INTO " + query.Quote(t.Name) + " DEFAULT VALUES"
	} else {
		quoted := make([]string, len(cols))
		holders := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = query.Quote(c)
			holders[i] = ":v_" + c
		}
		q = "INSERT INTO " + query.Quote(t.Name) + " (" + strings.Join(quoted, ", ") +
			") VALUES (" + strings.Join(holders, ", ") + ")"
	}

	res, err := d.exec(ctx, q, params)
	if err != nil {
		d.log.Error("create failed", "table", table, "error", err)
		return nil, classify(CodeCreate, err, "create %s", table)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newError(CodeCreate, err, "create %s: read generated id", table)
	}
	pk := t.PrimaryKey()
	switch t.fieldType(pk) {
	case AutoID, Integer:
		// INTEGER PRIMARY KEY columns alias the rowid.
		rec[pk] = id
	default:
		id = 0
	}

	if h := t.Options.Hooks.AfterCreate; h != nil {
		if err := h(ctx, rec); err != nil {
			return nil, newError(CodeCreate, err, "after create hook on %q", table)
		}
	}
	return &Created{ID: id, Record: rec}, nil
}

// BulkCreate inserts every record in one transaction; either all are
// stored or none are.
func (d *DB) BulkCreate(ctx context.Context, table string, records []Record) ([]*Created, error) {
	if _, err := d.table(table); err != nil {
		return nil, err
	}
	out := make([]*Created, 0, len(records))
	err := d.atomic(ctx, func(tx *DB) error {
		for _, r := range records {
			c, err := tx.Create(ctx, table, r)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Read
// ---------------------------------------------------------------------------

// FindAll selects rows, converts them to native values, loads includes and
// runs the AfterFind hook on each row.
func (d *DB) FindAll(ctx context.Context, table string, opts FindOptions) ([]Record, error) {
	t, err := d.table(table)
	if err != nil {
		return nil, err
	}

	rels := make([]Relation, len(opts.Include))
	for i, inc := range opts.Include {
		rel, ok := d.reg.relation(t.Name, inc.As)
		if !ok {
			return nil, newError(CodeModelNotFound, nil, "table %q has no relation %q", table, inc.As)
		}
		rels[i] = rel
	}

	q, params, err := d.selectSQL(t, opts, rels)
	if err != nil {
		return nil, err
	}

	rows, err := d.queryRecords(ctx, q, params)
	if err != nil {
		return nil, newError(CodeQuery, err, "find %s", table)
	}
	for _, row := range rows {
		t.fromStorage(row)
	}

	for i, inc := range opts.Include {
		if err := d.attach(ctx, t, rows, rels[i], inc); err != nil {
			return nil, err
		}
	}

	if h := t.Options.Hooks.AfterFind; h != nil {
		for _, row := range rows {
			if err := h(ctx, row); err != nil {
				return nil, newError(CodeQuery, err, "after find hook on %q", table)
			}
		}
	}
	return rows, nil
}

// FindOne returns the first matching row or ErrNotFound.
func (d *DB) FindOne(ctx context.Context, table string, opts FindOptions) (Record, error) {
	opts.Limit = 1
	rows, err := d.FindAll(ctx, table, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, newError(CodeNotFound, nil, "no %s record matches", table)
	}
	return rows[0], nil
}

// FindByPK returns the row whose primary key equals id.
func (d *DB) FindByPK(ctx context.Context, table string, id any, opts FindOptions) (Record, error) {
	t, err := d.table(table)
	if err != nil {
		return nil, err
	}
	byKey := Where{t.PrimaryKey(): id}
	if query.IsEmpty(opts.Where) {
		opts.Where = byKey
	} else {
		opts.Where = query.And(opts.Where, byKey)
	}
	return d.FindOne(ctx, table, opts)
}

func (d *DB) selectSQL(t *Table, opts FindOptions, rels []Relation) (string, map[string]any, error) {
	cols := "*"
	if len(opts.Columns) > 0 {
		want := append([]string(nil), opts.Columns...)
		for _, rel := range rels {
			want = appendMissing(want, keyColumnFor(t, rel))
		}
		for _, c := range want {
			if !t.HasColumn(c) {
				return "", nil, invalidOption(t.Name, "columns", "unknown column "+c)
			}
		}
		quoted, err := query.QuoteIdentifiers(want)
		if err != nil {
			return "", nil, invalidOption(t.Name, "columns", err.Error())
		}
		cols = quoted
	}

	frag, _, err := d.whereFor(t, opts.Where, opts.WithDeleted)
	if err != nil {
		return "", nil, err
	}

	clauses := make([]query.OrderClause, len(opts.OrderBy))
	for i, o := range opts.OrderBy {
		if !t.HasColumn(o.Column) {
			return "", nil, invalidOption(t.Name, "order", "unknown column "+o.Column)
		}
		clauses[i] = query.OrderClause{Column: o.Column, Desc: o.Desc}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if opts.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(query.Quote(t.Name))
	if frag.SQL != "" {
		b.WriteString(" WHERE ")
		b.WriteString(frag.SQL)
	}
	if order := query.OrderBy(clauses); order != "" {
		b.WriteString(" ")
		b.WriteString(order)
	}
	if lo := query.LimitOffset(opts.Limit, opts.Offset, frag.Params); lo != "" {
		b.WriteString(" ")
		b.WriteString(lo)
	}
	return b.String(), frag.Params, nil
}

// Count returns the number of live rows matching where.
func (d *DB) Count(ctx context.Context, table string, where Where) (int64, error) {
	return d.CountBy(ctx, table, CountOptions{Where: where})
}

// CountBy is Count with options.
func (d *DB) CountBy(ctx context.Context, table string, opts CountOptions) (int64, error) {
	t, err := d.table(table)
	if err != nil {
		return 0, err
	}
	frag, _, err := d.whereFor(t, opts.Where, opts.WithDeleted)
	if err != nil {
		return 0, err
	}
	q := "SELECT COUNT(*) AS n FROM " + query.Quote(t.Name)
	if frag.SQL != "" {
		q += " WHERE " + frag.SQL
	}
	rows, err := d.queryRecords(ctx, q, frag.Params)
	if err != nil {
		return 0, newError(CodeQuery, err, "count %s", table)
	}
	n, _ := parseInt(rows[0]["n"])
	return n, nil
}

// Exists reports whether any live row matches where.
func (d *DB) Exists(ctx context.Context, table string, where Where) (bool, error) {
	n, err := d.Count(ctx, table, where)
	return n > 0, err
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// Update validates data as a partial record and applies it to every live
// row matching where. An empty where is rejected.
func (d *DB) Update(ctx context.Context, table string, data Record, where Where) (int64, error) {
	t, err := d.table(table)
	if err != nil {
		return 0, err
	}
	if query.IsEmpty(where) {
		return 0, emptyWhere(table, "update")
	}

	clean, err := validateRecord(t, data, true)
	if err != nil {
		return 0, err
	}
	frag, hasCond, err := d.whereFor(t, where, false)
	if err != nil {
		return 0, err
	}
	if !hasCond {
		return 0, emptyWhere(table, "update")
	}

	if h := t.Options.Hooks.BeforeUpdate; h != nil {
		if err := h(ctx, clean, where); err != nil {
			return 0, newError(CodeUpdate, err, "before update hook on %q", table)
		}
	}

	rec := t.declared(clean)
	if len(rec) == 0 {
		verr := &ValidationError{Table: table}
		verr.add("data", "update has no columns to set")
		return 0, verr
	}
	if t.Options.Timestamps {
		rec[ColUpdatedAt] = d.timestamp()
	}

	cols, params := t.storageArgs(rec)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = query.Quote(c) + " = :v_" + c
	}
	for k, v := range frag.Params {
		params[k] = v
	}

	q := "UPDATE " + query.Quote(t.Name) + " SET " + strings.Join(sets, ", ") + " WHERE " + frag.SQL
	res, err := d.exec(ctx, q, params)
	if err != nil {
		d.log.Error("update failed", "table", table, "error", err)
		return 0, classify(CodeUpdate, err, "update %s", table)
	}
	n, _ := res.RowsAffected()

	if h := t.Options.Hooks.AfterUpdate; h != nil {
		if err := h(ctx, rec, n); err != nil {
			return 0, newError(CodeUpdate, err, "after update hook on %q", table)
		}
	}
	return n, nil
}

// Restore clears the deletion instant of soft-deleted rows matching where.
func (d *DB) Restore(ctx context.Context, table string, where Where) (int64, error) {
	t, err := d.table(table)
	if err != nil {
		return 0, err
	}
	if !t.Options.Paranoid {
		return 0, newError(CodeUpdate, nil, "table %q does not soft-delete", table)
	}
	if query.IsEmpty(where) {
		return 0, emptyWhere(table, "restore")
	}
	frag, hasCond, err := d.whereFor(t, where, true)
	if err != nil {
		return 0, err
	}
	if !hasCond {
		return 0, emptyWhere(table, "restore")
	}

	sets := query.Quote(ColDeletedAt) + " = NULL"
	if t.Options.Timestamps {
		sets += ", " + query.Quote(ColUpdatedAt) + " = :v_updated_at"
		frag.Params["v_updated_at"] = d.timestamp()
	}
	q := "UPDATE " + query.Quote(t.Name) + " SET " + sets +
		" WHERE (" + frag.SQL + ") AND " + query.Quote(ColDeletedAt) + " IS NOT NULL"
	res, err := d.exec(ctx, q, frag.Params)
	if err != nil {
		return 0, classify(CodeUpdate, err, "restore %s", table)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ---------------------------------------------------------------------------
// Delete
// ---------------------------------------------------------------------------

// Delete removes rows matching where. Paranoid tables are soft-deleted
// unless opts.Force is set. To-many relations declared with Cascade are
// deleted along with their parents in the same transaction.
func (d *DB) Delete(ctx context.Context, table string, where Where, opts DeleteOptions) (int64, error) {
	t, err := d.table(table)
	if err != nil {
		return 0, err
	}
	if query.IsEmpty(where) {
		return 0, emptyWhere(table, "delete")
	}
	frag, hasCond, err := d.whereFor(t, where, opts.Force)
	if err != nil {
		return 0, err
	}
	if !hasCond {
		return 0, emptyWhere(table, "delete")
	}

	if h := t.Options.Hooks.BeforeDelete; h != nil {
		if err := h(ctx, where); err != nil {
			return 0, newError(CodeDelete, err, "before delete hook on %q", table)
		}
	}

	var n int64
	run := func(db *DB) error {
		if err := db.cascade(ctx, t, frag, opts); err != nil {
			return err
		}
		var err error
		n, err = db.deleteRows(ctx, t, frag, opts.Force)
		return err
	}
	if len(d.cascades(t)) > 0 {
		err = d.atomic(ctx, run)
	} else {
		err = run(d)
	}
	if err != nil {
		return 0, err
	}

	if h := t.Options.Hooks.AfterDelete; h != nil {
		if err := h(ctx, where, n); err != nil {
			return 0, newError(CodeDelete, err, "after delete hook on %q", table)
		}
	}
	return n, nil
}

func (d *DB) deleteRows(ctx context.Context, t *Table, frag query.Fragment, force bool) (int64, error) {
	params := make(map[string]any, len(frag.Params)+1)
	for k, v := range frag.Params {
		params[k] = v
	}

	var q string
	if t.Options.Paranoid && !force {
		params["v_deleted_at"] = d.timestamp()
		q = "UPDATE " + query.Quote(t.Name) + " SET " + query.Quote(ColDeletedAt) + " = :v_deleted_at WHERE " + frag.SQL
	} else {
		q = "DELETE FROM " + query.Quote(t.Name) + " WHERE " + frag.SQL
	}

	res, err := d.exec(ctx, q, params)
	if err != nil {
		d.log.Error("delete failed", "table", t.Name, "error", err)
		return 0, classify(CodeDelete, err, "delete %s", t.Name)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (d *DB) cascades(t *Table) []Relation {
	var out []Relation
	for _, rel := range d.reg.relations(t.Name) {
		if rel.Kind == ToMany && rel.Cascade {
			out = append(out, rel)
		}
	}
	return out
}

// cascade deletes children of the rows selected by frag. A soft delete only
// reaches children that can themselves be soft-deleted.
func (d *DB) cascade(ctx context.Context, t *Table, frag query.Fragment, opts DeleteOptions) error {
	rels := d.cascades(t)
	if len(rels) == 0 {
		return nil
	}

	pk := t.PrimaryKey()
	q := "SELECT " + query.Quote(pk) + " AS pk FROM " + query.Quote(t.Name) + " WHERE " + frag.SQL
	rows, err := d.queryRecords(ctx, q, frag.Params)
	if err != nil {
		return newError(CodeDelete, err, "select %s rows for cascade", t.Name)
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]any, len(rows))
	for i, r := range rows {
		ids[i] = r["pk"]
	}

	soft := t.Options.Paranoid && !opts.Force
	for _, rel := range rels {
		child, err := d.table(rel.Target)
		if err != nil {
			return err
		}
		if soft && !child.Options.Paranoid {
			continue
		}
		if _, err := d.Delete(ctx, rel.Target, Where{rel.ForeignKey: query.In(ids...)}, DeleteOptions{Force: !soft}); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// whereFor compiles where against t. hasCond reports whether the caller's
// own conditions produced any SQL, before the soft-delete clause is added.
func (d *DB) whereFor(t *Table, where Where, withDeleted bool) (query.Fragment, bool, error) {
	frag, err := query.BuildWhere(where, query.WhereOptions{
		Columns:   t.ColumnSet(),
		Normalize: t.normalize,
	})
	if err != nil {
		return query.Fragment{}, false, invalidOption(t.Name, "where", err.Error())
	}
	hasCond := frag.SQL != ""

	if sd := t.softDeleteColumn(); sd != "" && !withDeleted {
		clause := query.Quote(sd) + " IS NULL"
		if hasCond {
			frag.SQL = "(" + frag.SQL + ") AND " + clause
		} else {
			frag.SQL = clause
		}
	}
	return frag, hasCond, nil
}

// normalize binds condition literals the way the column stores them. Text
// compared against a numeric column converts only when it is a whole number,
// so LIKE patterns such as "20%" stay text.
func (t *Table) normalize(col string, v any) any {
	if f, ok := t.Field(col); ok {
		if s, isText := v.(string); isText && f.Type.IsNumeric() {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return Normalize(ToStorage(n, f.Type))
			}
			return s
		}
		if s := ToStorage(v, f.Type); s != nil {
			return Normalize(s)
		}
	}
	return Normalize(v)
}

func (t *Table) fieldType(col string) FieldType {
	f, _ := t.Field(col)
	return f.Type
}

// declared keeps only declared columns; hooks may have added other keys.
func (t *Table) declared(rec Record) Record {
	out := make(Record, len(rec))
	for _, c := range t.Columns {
		if v, ok := rec[c.Name]; ok {
			out[c.Name] = v
		}
	}
	return out
}

// storageArgs lists the columns present in rec in table order and binds
// their storage values as v_<column>.
func (t *Table) storageArgs(rec Record) ([]string, map[string]any) {
	cols := make([]string, 0, len(rec))
	params := make(map[string]any, len(rec))
	for _, c := range t.all {
		v, ok := rec[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.Name)
		params["v_"+c.Name] = ToStorage(v, c.Type)
	}
	return cols, params
}

func (t *Table) fromStorage(row Record) {
	for k, v := range row {
		if f, ok := t.Field(k); ok {
			row[k] = FromStorage(v, f.Type)
		} else if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}

func (d *DB) atomic(ctx context.Context, fn func(tx *DB) error) error {
	if d.tx != nil {
		return fn(d)
	}
	return d.Transaction(ctx, fn)
}

func emptyWhere(table, op string) error {
	verr := &ValidationError{Table: table}
	verr.add("where", "%s requires a non-empty where condition", op)
	return verr
}

func invalidOption(table, field, msg string) error {
	verr := &ValidationError{Table: table}
	verr.add(field, "%s", msg)
	return verr
}

func appendMissing(list []string, col string) []string {
	if col == "" {
		return list
	}
	for _, c := range list {
		if c == col {
			return list
		}
	}
	return append(list, col)
}
