package orm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/foliodb/folio/internal/query"
)

// Define registers a table and creates it (and its indexes) if missing.
// Calling it again with the same definition is a no-op at the storage
// level; a different definition replaces the registry entry with a warning.
func (d *DB) Define(ctx context.Context, name string, cols []Column, opts TableOptions) error {
	t, err := checkDefinition(name, cols, opts)
	if err != nil {
		return err
	}

	stmts := []string{createTableSQL(t)}
	for _, idx := range opts.Indexes {
		stmts = append(stmts, createIndexSQL(name, idx))
	}
	for _, stmt := range stmts {
		if err := d.execDDL(ctx, stmt); err != nil {
			d.log.Error("define table failed", "table", name, "error", err)
			return newError(CodeModelDefinition, err, "define table %q", name)
		}
	}

	if replaced := d.reg.put(t); replaced {
		d.log.Warn("table already defined, overwriting", "table", name)
	} else {
		d.log.Info("table defined", "table", name)
	}
	return nil
}

func checkDefinition(name string, cols []Column, opts TableOptions) (*Table, error) {
	if err := query.ValidateIdentifier(name); err != nil {
		return nil, newError(CodeModelDefinition, err, "invalid table name")
	}
	if name == metaTable {
		return nil, newError(CodeModelDefinition, nil, "table name %q is reserved", name)
	}
	if len(cols) == 0 {
		return nil, newError(CodeModelDefinition, nil, "table %q has no columns", name)
	}

	seen := map[string]bool{}
	keys := 0
	for _, c := range cols {
		if err := query.ValidateIdentifier(c.Name); err != nil {
			return nil, newError(CodeModelDefinition, err, "table %q: invalid column name", name)
		}
		if seen[c.Name] {
			return nil, newError(CodeModelDefinition, nil, "table %q: duplicate column %q", name, c.Name)
		}
		if _, ok := fieldTypeNames[c.Type]; !ok {
			return nil, newError(CodeModelDefinition, nil, "table %q: column %q has no type", name, c.Name)
		}
		if c.Type == AutoID || c.PrimaryKey {
			keys++
		}
		if r := c.References; r != nil {
			if err := query.ValidateIdentifiers([]string{r.Table, r.Column}); err != nil {
				return nil, newError(CodeModelDefinition, err, "table %q: invalid reference on %q", name, c.Name)
			}
			if err := checkAction(r.OnDelete); err != nil {
				return nil, newError(CodeModelDefinition, err, "table %q: column %q", name, c.Name)
			}
			if err := checkAction(r.OnUpdate); err != nil {
				return nil, newError(CodeModelDefinition, err, "table %q: column %q", name, c.Name)
			}
		}
		seen[c.Name] = true
	}
	switch {
	case keys == 0:
		return nil, newError(CodeModelDefinition, nil, "table %q: needs an AutoID or primary key column", name)
	case keys > 1:
		return nil, newError(CodeModelDefinition, nil, "table %q: more than one primary key column", name)
	}

	managed := []string{}
	if opts.Timestamps {
		managed = append(managed, ColCreatedAt, ColUpdatedAt)
	}
	if opts.Paranoid {
		managed = append(managed, ColDeletedAt)
	}
	for _, m := range managed {
		if seen[m] {
			return nil, newError(CodeModelDefinition, nil, "table %q: column %q is maintained by the engine", name, m)
		}
	}

	t := newTable(name, cols, opts)
	for _, idx := range opts.Indexes {
		if len(idx.Columns) == 0 {
			return nil, newError(CodeModelDefinition, nil, "table %q: index without columns", name)
		}
		for _, col := range idx.Columns {
			if !t.HasColumn(col) {
				return nil, newError(CodeModelDefinition, nil, "table %q: index on unknown column %q", name, col)
			}
		}
	}
	return t, nil
}

var referenceActions = map[string]bool{
	"": true, "CASCADE": true, "SET NULL": true, "SET DEFAULT": true, "RESTRICT": true, "NO ACTION": true,
}

func checkAction(a string) error {
	if !referenceActions[strings.ToUpper(a)] {
		return fmt.Errorf("unsupported referential action %q", a)
	}
	return nil
}

func createTableSQL(t *Table) string {
	defs := make([]string, 0, len(t.all))
	for _, c := range t.Columns {
		defs = append(defs, columnSQL(c))
	}
	if t.Options.Timestamps {
		defs = append(defs,
			query.Quote(ColCreatedAt)+" TEXT DEFAULT CURRENT_TIMESTAMP",
			query.Quote(ColUpdatedAt)+" TEXT DEFAULT CURRENT_TIMESTAMP")
	}
	if t.Options.Paranoid {
		defs = append(defs, query.Quote(ColDeletedAt)+" TEXT")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", query.Quote(t.Name), strings.Join(defs, ",\n\t"))
}

func columnSQL(c Column) string {
	var b strings.Builder
	b.WriteString(query.Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type.SQLType())

	if c.PrimaryKey && c.Type != AutoID {
		b.WriteString(" PRIMARY KEY")
	}
	if c.Required && c.Type != AutoID {
		b.WriteString(" NOT NULL")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if c.Default != nil {
		if lit, ok := defaultLiteral(c.Default, c.Type); ok {
			b.WriteString(" DEFAULT ")
			b.WriteString(lit)
		}
	}
	if r := c.References; r != nil {
		fmt.Fprintf(&b, " REFERENCES %s(%s)", query.Quote(r.Table), query.Quote(r.Column))
		if r.OnDelete != "" {
			b.WriteString(" ON DELETE " + strings.ToUpper(r.OnDelete))
		}
		if r.OnUpdate != "" {
			b.WriteString(" ON UPDATE " + strings.ToUpper(r.OnUpdate))
		}
	}
	return b.String()
}

// defaultLiteral renders a static default for DDL. Generated defaults are
// applied at insert time instead.
func defaultLiteral(v any, t FieldType) (string, bool) {
	switch s := ToStorage(v, t).(type) {
	case nil:
		return "", false
	case string:
		return query.QuoteLiteral(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	case bool:
		if s {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(s), true
	}
	return "", false
}

func indexName(table string, idx Index) string {
	return "idx_" + table + "_" + strings.Join(idx.Columns, "_")
}

func createIndexSQL(table string, idx Index) string {
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = query.Quote(c)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, query.Quote(indexName(table, idx)), query.Quote(table), strings.Join(cols, ", "))
}

// ---------------------------------------------------------------------------
// Relations
// ---------------------------------------------------------------------------

// ToManyOptions configures DeclareToMany. As defaults to the target table
// name and ForeignKey to "<source>_id".
type ToManyOptions struct {
	As         string
	ForeignKey string
	Cascade    bool
}

// ToOneOptions configures DeclareToOne. As defaults to the target table
// name and ForeignKey to "<target>_id".
type ToOneOptions struct {
	As         string
	ForeignKey string
}

// ManyToManyOptions configures DeclareManyToMany. Through defaults to
// "<a>_<b>", the keys to "<a>_id" and "<b>_id", and the aliases to the
// opposite table names.
type ManyToManyOptions struct {
	Through   string
	SourceKey string
	TargetKey string
	As        string
	InverseAs string
}

// DeclareToMany records that one source row owns many target rows.
func (d *DB) DeclareToMany(ctx context.Context, source, target string, opts ToManyOptions) error {
	src, err := d.table(source)
	if err != nil {
		return err
	}
	dst, err := d.table(target)
	if err != nil {
		return err
	}
	rel := Relation{
		Kind:       ToMany,
		As:         orDefault(opts.As, target),
		Target:     target,
		ForeignKey: orDefault(opts.ForeignKey, source+"_id"),
		Cascade:    opts.Cascade,
	}
	if !dst.HasColumn(rel.ForeignKey) {
		return newError(CodeModelDefinition, nil, "table %q has no column %q", target, rel.ForeignKey)
	}
	if err := checkAlias(src, rel.As); err != nil {
		return err
	}
	d.reg.addRelation(source, rel)
	return nil
}

// DeclareToOne records that each source row references one target row.
func (d *DB) DeclareToOne(ctx context.Context, source, target string, opts ToOneOptions) error {
	src, err := d.table(source)
	if err != nil {
		return err
	}
	if _, err := d.table(target); err != nil {
		return err
	}
	rel := Relation{
		Kind:       ToOne,
		As:         orDefault(opts.As, target),
		Target:     target,
		ForeignKey: orDefault(opts.ForeignKey, target+"_id"),
	}
	if !src.HasColumn(rel.ForeignKey) {
		return newError(CodeModelDefinition, nil, "table %q has no column %q", source, rel.ForeignKey)
	}
	if err := checkAlias(src, rel.As); err != nil {
		return err
	}
	d.reg.addRelation(source, rel)
	return nil
}

// DeclareManyToMany defines the join table and registers the relation on
// both sides.
func (d *DB) DeclareManyToMany(ctx context.Context, a, b string, opts ManyToManyOptions) error {
	ta, err := d.table(a)
	if err != nil {
		return err
	}
	tb, err := d.table(b)
	if err != nil {
		return err
	}

	through := orDefault(opts.Through, a+"_"+b)
	aKey := orDefault(opts.SourceKey, a+"_id")
	bKey := orDefault(opts.TargetKey, b+"_id")
	if aKey == bKey {
		return newError(CodeModelDefinition, nil, "join keys of %q must differ", through)
	}

	cols := []Column{
		Col("id", Field{Type: AutoID}),
		Col(aKey, Field{Type: Integer, Required: true, References: &Reference{
			Table: a, Column: ta.PrimaryKey(), OnDelete: "CASCADE",
		}}),
		Col(bKey, Field{Type: Integer, Required: true, References: &Reference{
			Table: b, Column: tb.PrimaryKey(), OnDelete: "CASCADE",
		}}),
	}
	err = d.Define(ctx, through, cols, TableOptions{
		Indexes: []Index{{Columns: []string{aKey, bKey}, Unique: true}},
	})
	if err != nil {
		return err
	}

	forward := Relation{Kind: ManyToMany, As: orDefault(opts.As, b), Target: b, Through: through, SourceKey: aKey, TargetKey: bKey}
	inverse := Relation{Kind: ManyToMany, As: orDefault(opts.InverseAs, a), Target: a, Through: through, SourceKey: bKey, TargetKey: aKey}
	if err := checkAlias(ta, forward.As); err != nil {
		return err
	}
	if err := checkAlias(tb, inverse.As); err != nil {
		return err
	}
	d.reg.addRelation(a, forward)
	d.reg.addRelation(b, inverse)
	return nil
}

// checkAlias keeps relation aliases from shadowing columns, since both end
// up as keys of the same record.
func checkAlias(t *Table, alias string) error {
	if err := query.ValidateIdentifier(alias); err != nil {
		return newError(CodeModelDefinition, err, "invalid relation alias")
	}
	if t.HasColumn(alias) {
		return newError(CodeModelDefinition, nil, "relation alias %q collides with a column of %q", alias, t.Name)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
