// Package contract compares the tables an application declares against the
// tables that actually exist in its database file.
package contract

import "time"

// Policy controls what a host does when declared and live schemas differ.
type Policy string

const (
	// PolicyIgnore skips the check.
	PolicyIgnore Policy = "ignore"
	// PolicyWarn logs drift and carries on.
	PolicyWarn Policy = "warn"
	// PolicyFail refuses to start when any breaking drift is found.
	PolicyFail Policy = "fail"
)

// ValidPolicy returns true if p is a recognized policy.
func ValidPolicy(p string) bool {
	switch Policy(p) {
	case PolicyIgnore, PolicyWarn, PolicyFail:
		return true
	}
	return false
}

// ColumnShape is the storage-level view of one column.
type ColumnShape struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableShape is the storage-level view of one table.
type TableShape struct {
	Name    string        `json:"name"`
	Columns []ColumnShape `json:"columns"`
}

// DriftType classifies the severity of a difference.
type DriftType string

const (
	// DriftAdditive means the live table has more than was declared. Reads and
	// writes through the declared model keep working.
	DriftAdditive DriftType = "additive"
	// DriftBreaking means a declared column or table is missing or has a
	// different type or nullability than declared.
	DriftBreaking DriftType = "breaking"
)

// DriftItem describes a single difference.
type DriftItem struct {
	Type        DriftType `json:"type"`
	Category    string    `json:"category"` // "column_extra", "column_missing", "type_changed", "nullable_changed", "table_missing"
	TableName   string    `json:"table_name"`
	ColumnName  string    `json:"column_name,omitempty"`
	Declared    string    `json:"declared,omitempty"`
	Live        string    `json:"live,omitempty"`
	Description string    `json:"description"`
}

// DriftReport summarizes the differences for one table.
type DriftReport struct {
	TableName     string      `json:"table_name"`
	HasDrift      bool        `json:"has_drift"`
	HasBreaking   bool        `json:"has_breaking"`
	AdditiveCount int         `json:"additive_count"`
	BreakingCount int         `json:"breaking_count"`
	Items         []DriftItem `json:"items"`
	CheckedAt     time.Time   `json:"checked_at"`
}

// SchemaReport summarizes drift across every declared table.
type SchemaReport struct {
	TotalTables   int           `json:"total_tables"`
	DriftedTables int           `json:"drifted_tables"`
	BreakingCount int           `json:"breaking_count"`
	Tables        []DriftReport `json:"tables"`
}

// HasBreaking reports whether any table has breaking drift.
func (r SchemaReport) HasBreaking() bool { return r.BreakingCount > 0 }
