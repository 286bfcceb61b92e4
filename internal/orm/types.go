package orm

import "github.com/foliodb/folio/internal/query"

// FieldType is the semantic type of a column, independent of storage.
type FieldType int

const (
	String FieldType = iota + 1
	Text
	Integer
	Float
	Boolean
	Email
	AutoID
	Timestamp
	Date
	Time
	JSON
	Blob
)

var fieldTypeNames = map[FieldType]string{
	String:    "string",
	Text:      "text",
	Integer:   "integer",
	Float:     "float",
	Boolean:   "boolean",
	Email:     "email",
	AutoID:    "autoid",
	Timestamp: "timestamp",
	Date:      "date",
	Time:      "time",
	JSON:      "json",
	Blob:      "blob",
}

func (t FieldType) String() string {
	if n, ok := fieldTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// SQLType returns the column type used in CREATE TABLE. Date and time kinds
// are declared TEXT so the driver hands back the stored text untouched.
func (t FieldType) SQLType() string {
	switch t {
	case Integer, Boolean:
		return "INTEGER"
	case Float:
		return "REAL"
	case Blob:
		return "BLOB"
	case AutoID:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	default:
		return "TEXT"
	}
}

// IsText reports whether values of t are strings subject to length limits.
func (t FieldType) IsText() bool {
	return t == String || t == Text || t == Email
}

// IsNumeric reports whether values of t are subject to range limits.
func (t FieldType) IsNumeric() bool {
	return t == Integer || t == Float || t == AutoID
}

// Record is one row keyed by column name.
type Record map[string]any

// Where and Op are the condition types accepted by every read and write.
type (
	Where = query.Where
	Op    = query.Op
)

// Condition helpers, so callers need not import query.
var (
	Gt         = query.Gt
	Gte        = query.Gte
	Lt         = query.Lt
	Lte        = query.Lte
	Ne         = query.Ne
	In         = query.In
	NotIn      = query.NotIn
	Like       = query.Like
	ILike      = query.ILike
	Between    = query.Between
	NotBetween = query.NotBetween
	Or         = query.Or
	And        = query.And
)

// Reference declares a foreign key.
type Reference struct {
	Table    string
	Column   string
	OnDelete string
	OnUpdate string
}

// Field describes one column. Default is a literal; DefaultFunc, when set,
// is called on every create instead.
type Field struct {
	Type        FieldType
	Required    bool
	Unique      bool
	PrimaryKey  bool
	Default     any
	DefaultFunc func() any
	MinLength   *int
	MaxLength   *int
	Min         *float64
	Max         *float64
	References  *Reference
}

// Column pairs a name with its definition. Tables keep columns in the
// order they are declared.
type Column struct {
	Name string
	Field
}

// Col is shorthand for a Column literal.
func Col(name string, f Field) Column {
	return Column{Name: name, Field: f}
}

// Len returns a pointer for MinLength/MaxLength.
func Len(n int) *int { return &n }

// Num returns a pointer for Min/Max.
func Num(v float64) *float64 { return &v }

func (f Field) hasDefault() bool {
	return f.Default != nil || f.DefaultFunc != nil
}

func (f Field) defaultValue() any {
	if f.DefaultFunc != nil {
		return f.DefaultFunc()
	}
	return f.Default
}
