package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Where is a structured condition: column name to literal, nil, or Op.
// The reserved keys "$or" and "$and" hold lists of nested conditions.
type Where map[string]any

// Op is an operator object such as {"$gt": 3} or {"$in": [1, 2]}.
type Op map[string]any

// Fragment is a compiled condition. SQL uses sqlx ":name" placeholders and
// carries no leading WHERE keyword; it is empty when nothing was compiled.
type Fragment struct {
	SQL    string
	Params map[string]any
}

// WhereOptions controls compilation against one table.
type WhereOptions struct {
	// Columns restricts which names may appear. Nil allows any valid identifier.
	Columns map[string]bool
	// Normalize converts a literal before binding. Nil binds values as given.
	Normalize func(column string, v any) any
	// SoftDelete names the deletion-instant column of a paranoid table.
	SoftDelete string
	// WithDeleted disables the implicit "SoftDelete IS NULL" clause.
	WithDeleted bool
	// Prefix for generated parameter names. Defaults to "w".
	Prefix string
}

var comparisonOps = map[string]string{
	"$gt":   ">",
	"$gte":  ">=",
	"$lt":   "<",
	"$lte":  "<=",
	"$ne":   "!=",
	"$like": "LIKE",
}

// Gt and the helpers below build operator objects.
func Gt(v any) Op { return Op{"$gt": v} }
func Gte(v any) Op { return Op{"$gte": v} }
func Lt(v any) Op { return Op{"$lt": v} }
func Lte(v any) Op { return Op{"$lte": v} }
func Ne(v any) Op { return Op{"$ne": v} }
func In(vs ...any) Op { return Op{"$in": vs} }
func NotIn(vs ...any) Op { return Op{"$nin": vs} }
func Like(p string) Op { return Op{"$like": p} }
func ILike(p string) Op { return Op{"$ilike": p} }
func Between(a, b any) Op { return Op{"$between": []any{a, b}} }
func NotBetween(a, b any) Op { return Op{"$notBetween": []any{a, b}} }

// Or groups conditions so that any one of them may match.
func Or(ws ...Where) Where { return Where{"$or": ws} }

// And groups conditions so that all of them must match.
func And(ws ...Where) Where { return Where{"$and": ws} }

// BuildWhere compiles a condition into a parameterized fragment.
func BuildWhere(w Where, opts WhereOptions) (Fragment, error) {
	b := &whereBuilder{opts: opts, params: map[string]any{}}
	if b.opts.Prefix == "" {
		b.opts.Prefix = "w"
	}

	clauses, err := b.build(w)
	if err != nil {
		return Fragment{}, err
	}
	if opts.SoftDelete != "" && !opts.WithDeleted {
		clauses = append(clauses, Quote(opts.SoftDelete)+" IS NULL")
	}
	return Fragment{SQL: strings.Join(clauses, " AND "), Params: b.params}, nil
}

// IsEmpty reports whether w has no conditions at all.
func IsEmpty(w Where) bool {
	return len(w) == 0
}

type whereBuilder struct {
	opts   WhereOptions
	params map[string]any
	n      int
}

func (b *whereBuilder) nextParam() string {
	name := fmt.Sprintf("%s%d", b.opts.Prefix, b.n)
	b.n++
	return name
}

func (b *whereBuilder) bind(name, column string, v any) string {
	if b.opts.Normalize != nil {
		v = b.opts.Normalize(column, v)
	}
	b.params[name] = v
	return ":" + name
}

func (b *whereBuilder) build(w Where) ([]string, error) {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, key := range keys {
		val := w[key]
		switch key {
		case "$or", "$and":
			clause, err := b.group(key, val)
			if err != nil {
				return nil, err
			}
			if clause != "" {
				clauses = append(clauses, clause)
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("unsupported logical operator %q", key)
		}
		if err := b.checkColumn(key); err != nil {
			return nil, err
		}
		clause, err := b.column(key, val)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func (b *whereBuilder) checkColumn(col string) error {
	if err := ValidateIdentifier(col); err != nil {
		return fmt.Errorf("invalid filter column: %w", err)
	}
	if b.opts.Columns != nil && !b.opts.Columns[col] {
		return fmt.Errorf("unknown column %q", col)
	}
	return nil
}

func (b *whereBuilder) group(key string, val any) (string, error) {
	members, err := asWhereList(val)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}

	joiner := " AND "
	if key == "$or" {
		joiner = " OR "
	}

	parts := make([]string, 0, len(members))
	for _, m := range members {
		clauses, err := b.build(m)
		if err != nil {
			return "", err
		}
		if len(clauses) == 0 {
			continue
		}
		parts = append(parts, "("+strings.Join(clauses, " AND ")+")")
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

func (b *whereBuilder) column(col string, val any) (string, error) {
	qcol := Quote(col)

	if val == nil {
		return qcol + " IS NULL", nil
	}
	if op, ok := asOp(val); ok {
		return b.operators(col, op)
	}
	if list, ok := asList(val); ok {
		return b.membership(col, "IN", list), nil
	}
	return qcol + " = " + b.bind(b.nextParam(), col, val), nil
}

func (b *whereBuilder) operators(col string, op Op) (string, error) {
	qcol := Quote(col)
	if len(op) == 0 {
		return "", fmt.Errorf("empty operator object on column %q", col)
	}

	names := make([]string, 0, len(op))
	for k := range op {
		names = append(names, k)
	}
	sort.Strings(names)

	clauses := make([]string, 0, len(names))
	for _, name := range names {
		arg := op[name]
		switch name {
		case "$gt", "$gte", "$lt", "$lte", "$like":
			clauses = append(clauses, qcol+" "+comparisonOps[name]+" "+b.bind(b.nextParam(), col, arg))

		case "$ne":
			if arg == nil {
				clauses = append(clauses, qcol+" IS NOT NULL")
				continue
			}
			clauses = append(clauses, qcol+" != "+b.bind(b.nextParam(), col, arg))

		case "$ilike":
			clauses = append(clauses, "fold("+qcol+") LIKE fold("+b.bind(b.nextParam(), col, arg)+")")

		case "$in", "$nin":
			list, ok := asList(arg)
			if !ok {
				list = []any{arg}
			}
			keyword := "IN"
			if name == "$nin" {
				keyword = "NOT IN"
			}
			clauses = append(clauses, b.membership(col, keyword, list))

		case "$between", "$notBetween":
			list, ok := asList(arg)
			if !ok || len(list) != 2 {
				return "", fmt.Errorf("%s on %q needs exactly two values", name, col)
			}
			keyword := "BETWEEN"
			if name == "$notBetween" {
				keyword = "NOT BETWEEN"
			}
			p := b.nextParam()
			start := b.bind(p+"_start", col, list[0])
			end := b.bind(p+"_end", col, list[1])
			clauses = append(clauses, qcol+" "+keyword+" "+start+" AND "+end)

		default:
			return "", fmt.Errorf("unsupported operator %q on column %q", name, col)
		}
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return "(" + strings.Join(clauses, " AND ") + ")", nil
}

// membership expands a list into one bound parameter per element. An empty
// IN list matches nothing and an empty NOT IN list matches everything.
func (b *whereBuilder) membership(col, keyword string, list []any) string {
	if len(list) == 0 {
		if keyword == "IN" {
			return "1 = 0"
		}
		return "1 = 1"
	}
	p := b.nextParam()
	placeholders := make([]string, len(list))
	for i, v := range list {
		placeholders[i] = b.bind(fmt.Sprintf("%s_%d", p, i), col, v)
	}
	return Quote(col) + " " + keyword + " (" + strings.Join(placeholders, ", ") + ")"
}

// asOp recognises operator objects. A plain map counts only when every key
// starts with "$"; other maps are JSON literals.
func asOp(v any) (Op, bool) {
	switch m := v.(type) {
	case Op:
		return m, true
	case map[string]any:
		if len(m) == 0 {
			return nil, false
		}
		for k := range m {
			if !strings.HasPrefix(k, "$") {
				return nil, false
			}
		}
		return Op(m), true
	}
	return nil, false
}

// asList flattens any slice except []byte into []any.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asWhereList(v any) ([]Where, error) {
	switch l := v.(type) {
	case []Where:
		return l, nil
	case []map[string]any:
		out := make([]Where, len(l))
		for i, m := range l {
			out[i] = Where(m)
		}
		return out, nil
	case []any:
		out := make([]Where, 0, len(l))
		for _, item := range l {
			switch m := item.(type) {
			case Where:
				out = append(out, m)
			case map[string]any:
				out = append(out, Where(m))
			default:
				return nil, fmt.Errorf("expected a list of conditions, got %T", item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of conditions, got %T", v)
}
