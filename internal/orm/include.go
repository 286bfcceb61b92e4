package orm

import (
	"context"
	"fmt"

	"github.com/foliodb/folio/internal/query"
)

// attach loads rel for every parent in a second round of queries and stores
// the result under rel.As: a slice for ToMany and ManyToMany, a record or
// nil for ToOne.
func (d *DB) attach(ctx context.Context, src *Table, parents []Record, rel Relation, inc Include) error {
	if len(parents) == 0 {
		return nil
	}
	switch rel.Kind {
	case ToMany:
		return d.attachMany(ctx, src, parents, rel, inc)
	case ToOne:
		return d.attachOne(ctx, parents, rel, inc)
	case ManyToMany:
		return d.attachThrough(ctx, src, parents, rel, inc)
	}
	return newError(CodeQuery, nil, "relation %q has unknown kind", rel.As)
}

func (d *DB) attachMany(ctx context.Context, src *Table, parents []Record, rel Relation, inc Include) error {
	pk := src.PrimaryKey()
	ids := distinctKeys(parents, pk)
	if len(ids) == 0 {
		for _, p := range parents {
			p[rel.As] = []Record{}
		}
		return nil
	}

	children, err := d.FindAll(ctx, rel.Target, d.includeOptions(inc, rel.ForeignKey, ids))
	if err != nil {
		return err
	}

	groups := map[string][]Record{}
	for _, c := range children {
		k := keyOf(c[rel.ForeignKey])
		groups[k] = append(groups[k], c)
	}
	for _, p := range parents {
		if g, ok := groups[keyOf(p[pk])]; ok {
			p[rel.As] = g
		} else {
			p[rel.As] = []Record{}
		}
	}
	return nil
}

func (d *DB) attachOne(ctx context.Context, parents []Record, rel Relation, inc Include) error {
	target, err := d.table(rel.Target)
	if err != nil {
		return err
	}
	tk := target.PrimaryKey()

	ids := distinctKeys(parents, rel.ForeignKey)
	if len(ids) == 0 {
		for _, p := range parents {
			p[rel.As] = nil
		}
		return nil
	}

	rows, err := d.FindAll(ctx, rel.Target, d.includeOptions(inc, tk, ids))
	if err != nil {
		return err
	}

	byKey := make(map[string]Record, len(rows))
	for _, r := range rows {
		byKey[keyOf(r[tk])] = r
	}
	for _, p := range parents {
		if r, ok := byKey[keyOf(p[rel.ForeignKey])]; ok && p[rel.ForeignKey] != nil {
			p[rel.As] = r
		} else {
			p[rel.As] = nil
		}
	}
	return nil
}

func (d *DB) attachThrough(ctx context.Context, src *Table, parents []Record, rel Relation, inc Include) error {
	target, err := d.table(rel.Target)
	if err != nil {
		return err
	}
	tk := target.PrimaryKey()
	pk := src.PrimaryKey()

	empty := func() {
		for _, p := range parents {
			p[rel.As] = []Record{}
		}
	}

	ids := distinctKeys(parents, pk)
	if len(ids) == 0 {
		empty()
		return nil
	}

	links, err := d.FindAll(ctx, rel.Through, FindOptions{
		Where:   Where{rel.SourceKey: query.In(ids...)},
		Columns: []string{rel.SourceKey, rel.TargetKey},
	})
	if err != nil {
		return err
	}
	targetIDs := distinctKeys(links, rel.TargetKey)
	if len(targetIDs) == 0 {
		empty()
		return nil
	}

	rows, err := d.FindAll(ctx, rel.Target, d.includeOptions(inc, tk, targetIDs))
	if err != nil {
		return err
	}
	byKey := make(map[string]Record, len(rows))
	for _, r := range rows {
		byKey[keyOf(r[tk])] = r
	}

	grouped := map[string][]Record{}
	for _, l := range links {
		r, ok := byKey[keyOf(l[rel.TargetKey])]
		if !ok {
			continue
		}
		k := keyOf(l[rel.SourceKey])
		grouped[k] = append(grouped[k], r)
	}
	for _, p := range parents {
		if g, ok := grouped[keyOf(p[pk])]; ok {
			p[rel.As] = g
		} else {
			p[rel.As] = []Record{}
		}
	}
	return nil
}

// includeOptions restricts the related query to key IN ids, merged with the
// caller's own conditions, and keeps the key selected when columns are
// narrowed.
func (d *DB) includeOptions(inc Include, key string, ids []any) FindOptions {
	where := Where{key: query.In(ids...)}
	if !query.IsEmpty(inc.Where) {
		where = query.And(inc.Where, where)
	}
	var cols []string
	if len(inc.Columns) > 0 {
		cols = appendMissing(append([]string(nil), inc.Columns...), key)
	}
	return FindOptions{
		Where:       where,
		Columns:     cols,
		OrderBy:     inc.OrderBy,
		WithDeleted: inc.WithDeleted,
		Include:     inc.Include,
	}
}

// keyColumnFor names the parent column a relation needs to join on.
func keyColumnFor(t *Table, rel Relation) string {
	if rel.Kind == ToOne {
		return rel.ForeignKey
	}
	return t.PrimaryKey()
}

func distinctKeys(rows []Record, col string) []any {
	seen := map[string]bool{}
	var out []any
	for _, r := range rows {
		v := r[col]
		if v == nil {
			continue
		}
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// keyOf renders a key value as text so that int64 and string forms of the
// same identifier match.
func keyOf(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
