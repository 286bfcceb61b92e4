package orm

import "context"

// Columns maintained by the engine when the matching option is set.
const (
	ColCreatedAt = "created_at"
	ColUpdatedAt = "updated_at"
	ColDeletedAt = "deleted_at"
)

// Hooks are optional lifecycle callbacks. Before hooks may mutate the record
// or return an error to abort the operation.
type Hooks struct {
	BeforeCreate func(ctx context.Context, rec Record) error
	AfterCreate  func(ctx context.Context, rec Record) error
	BeforeUpdate func(ctx context.Context, rec Record, where Where) error
	AfterUpdate  func(ctx context.Context, rec Record, affected int64) error
	BeforeDelete func(ctx context.Context, where Where) error
	AfterDelete  func(ctx context.Context, where Where, affected int64) error
	AfterFind    func(ctx context.Context, rec Record) error
}

// Index is a secondary index over one or more columns.
type Index struct {
	Columns []string
	Unique  bool
}

// TableOptions are the behavioral flags of a table.
type TableOptions struct {
	Timestamps bool
	Paranoid   bool
	Hooks      Hooks
	Indexes    []Index
}

// RelationKind distinguishes the three association shapes.
type RelationKind int

const (
	ToMany RelationKind = iota + 1
	ToOne
	ManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case ToMany:
		return "to_many"
	case ToOne:
		return "to_one"
	case ManyToMany:
		return "many_to_many"
	}
	return "unknown"
}

// Relation describes one association declared on a source table.
//
// ToMany: ForeignKey lives on Target and points at the source key.
// ToOne: ForeignKey lives on the source and points at Target's key.
// ManyToMany: Through holds SourceKey (source id) and TargetKey (target id).
type Relation struct {
	Kind       RelationKind
	As         string
	Target     string
	ForeignKey string
	Cascade    bool
	Through    string
	SourceKey  string
	TargetKey  string
}

// Table is a defined model.
type Table struct {
	Name      string
	Columns   []Column
	Options   TableOptions
	Relations map[string]Relation

	all   []Column
	index map[string]int
}

func newTable(name string, cols []Column, opts TableOptions) *Table {
	t := &Table{
		Name:      name,
		Columns:   cols,
		Options:   opts,
		Relations: map[string]Relation{},
	}
	t.all = append(t.all, cols...)
	if opts.Timestamps {
		t.all = append(t.all,
			Col(ColCreatedAt, Field{Type: Timestamp}),
			Col(ColUpdatedAt, Field{Type: Timestamp}))
	}
	if opts.Paranoid {
		t.all = append(t.all, Col(ColDeletedAt, Field{Type: Timestamp}))
	}
	t.index = make(map[string]int, len(t.all))
	for i, c := range t.all {
		t.index[c.Name] = i
	}
	return t
}

// Field returns the definition of a declared or engine-maintained column.
func (t *Table) Field(name string) (Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.all[i].Field, true
}

// HasColumn reports whether name is a column of the physical table.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AllColumns returns declared columns followed by engine-maintained ones.
func (t *Table) AllColumns() []Column {
	return t.all
}

// ColumnSet returns every column name, for condition checking.
func (t *Table) ColumnSet() map[string]bool {
	set := make(map[string]bool, len(t.all))
	for _, c := range t.all {
		set[c.Name] = true
	}
	return set
}

// PrimaryKey returns the key column. Define refuses tables without one.
func (t *Table) PrimaryKey() string {
	for _, c := range t.Columns {
		if c.Type == AutoID || c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

func (t *Table) softDeleteColumn() string {
	if t.Options.Paranoid {
		return ColDeletedAt
	}
	return ""
}
