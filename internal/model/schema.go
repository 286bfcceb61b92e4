package model

import (
	"sort"

	"github.com/foliodb/folio/internal/orm"
)

// TableSchema describes one registered table as exposed to API and MCP
// clients.
type TableSchema struct {
	Name       string     `json:"name"`
	PrimaryKey string     `json:"primary_key"`
	Timestamps bool       `json:"timestamps"`
	Paranoid   bool       `json:"paranoid"`
	Columns    []Column   `json:"columns"`
	Relations  []Relation `json:"relations,omitempty"`
}

// Column describes a single column, engine-maintained ones included.
type Column struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	Unique     bool     `json:"unique,omitempty"`
	ReadOnly   bool     `json:"read_only,omitempty"`
	Default    any      `json:"default,omitempty"`
	MinLength  *int     `json:"min_length,omitempty"`
	MaxLength  *int     `json:"max_length,omitempty"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	References string   `json:"references,omitempty"` // "table.column"
}

// Relation describes an association that can be passed to include.
type Relation struct {
	As         string `json:"as"`
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	ForeignKey string `json:"foreign_key,omitempty"`
	Through    string `json:"through,omitempty"`
}

// DescribeTable converts a registry entry into its public description.
func DescribeTable(t *orm.Table) TableSchema {
	s := TableSchema{
		Name:       t.Name,
		PrimaryKey: t.PrimaryKey(),
		Timestamps: t.Options.Timestamps,
		Paranoid:   t.Options.Paranoid,
	}
	for _, c := range t.AllColumns() {
		col := Column{
			Name:      c.Name,
			Type:      c.Type.String(),
			Required:  c.Required && c.Type != orm.AutoID,
			Unique:    c.Unique,
			ReadOnly:  IsReadOnly(c),
			Default:   c.Default,
			MinLength: c.MinLength,
			MaxLength: c.MaxLength,
			Min:       c.Min,
			Max:       c.Max,
		}
		if c.References != nil {
			col.References = c.References.Table + "." + c.References.Column
		}
		s.Columns = append(s.Columns, col)
	}
	for _, rel := range t.Relations {
		s.Relations = append(s.Relations, Relation{
			As:         rel.As,
			Kind:       rel.Kind.String(),
			Target:     rel.Target,
			ForeignKey: rel.ForeignKey,
			Through:    rel.Through,
		})
	}
	sort.Slice(s.Relations, func(i, j int) bool { return s.Relations[i].As < s.Relations[j].As })
	return s
}

// IsReadOnly reports whether clients may never write c: generated keys and
// the columns the engine maintains.
func IsReadOnly(c orm.Column) bool {
	switch c.Name {
	case orm.ColCreatedAt, orm.ColUpdatedAt, orm.ColDeletedAt:
		return true
	}
	return c.Type == orm.AutoID
}
