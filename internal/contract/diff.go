package contract

import (
	"fmt"
	"strings"
	"time"
)

// DiffTable compares a declared table against its live counterpart and
// classifies each difference as additive or breaking.
func DiffTable(declared, live TableShape) DriftReport {
	report := DriftReport{
		TableName: declared.Name,
		CheckedAt: time.Now().UTC(),
	}

	liveByName := make(map[string]ColumnShape, len(live.Columns))
	for _, col := range live.Columns {
		liveByName[col.Name] = col
	}
	declaredByName := make(map[string]bool, len(declared.Columns))
	for _, col := range declared.Columns {
		declaredByName[col.Name] = true
	}

	for _, want := range declared.Columns {
		got, exists := liveByName[want.Name]
		if !exists {
			report.Items = append(report.Items, DriftItem{
				Type:        DriftBreaking,
				Category:    "column_missing",
				TableName:   declared.Name,
				ColumnName:  want.Name,
				Declared:    want.Type,
				Description: fmt.Sprintf("Column %q is declared but missing from table %q", want.Name, declared.Name),
			})
			continue
		}

		if !strings.EqualFold(want.Type, got.Type) {
			report.Items = append(report.Items, DriftItem{
				Type:        DriftBreaking,
				Category:    "type_changed",
				TableName:   declared.Name,
				ColumnName:  want.Name,
				Declared:    want.Type,
				Live:        got.Type,
				Description: fmt.Sprintf("Column %q is declared %q but stored as %q", want.Name, want.Type, got.Type),
			})
		}

		// A live NOT NULL the model does not require rejects writes that omit it.
		if want.Nullable && !got.Nullable {
			report.Items = append(report.Items, DriftItem{
				Type:        DriftBreaking,
				Category:    "nullable_changed",
				TableName:   declared.Name,
				ColumnName:  want.Name,
				Declared:    "nullable",
				Live:        "not null",
				Description: fmt.Sprintf("Column %q is declared nullable but stored NOT NULL", want.Name),
			})
		} else if !want.Nullable && got.Nullable {
			report.Items = append(report.Items, DriftItem{
				Type:        DriftAdditive,
				Category:    "nullable_changed",
				TableName:   declared.Name,
				ColumnName:  want.Name,
				Declared:    "not null",
				Live:        "nullable",
				Description: fmt.Sprintf("Column %q is declared NOT NULL but stored nullable", want.Name),
			})
		}
	}

	for _, got := range live.Columns {
		if !declaredByName[got.Name] {
			report.Items = append(report.Items, DriftItem{
				Type:        DriftAdditive,
				Category:    "column_extra",
				TableName:   declared.Name,
				ColumnName:  got.Name,
				Live:        got.Type,
				Description: fmt.Sprintf("Column %q exists in table %q but is not declared", got.Name, declared.Name),
			})
		}
	}

	for _, item := range report.Items {
		switch item.Type {
		case DriftAdditive:
			report.AdditiveCount++
		case DriftBreaking:
			report.BreakingCount++
		}
	}
	report.HasDrift = len(report.Items) > 0
	report.HasBreaking = report.BreakingCount > 0

	return report
}

// DiffSchema compares every declared table against the live tables, which
// are keyed by name.
func DiffSchema(declared []TableShape, live map[string]TableShape) SchemaReport {
	report := SchemaReport{TotalTables: len(declared)}

	for _, want := range declared {
		got, exists := live[want.Name]
		if !exists {
			report.Tables = append(report.Tables, DriftReport{
				TableName:     want.Name,
				HasDrift:      true,
				HasBreaking:   true,
				BreakingCount: 1,
				CheckedAt:     time.Now().UTC(),
				Items: []DriftItem{{
					Type:        DriftBreaking,
					Category:    "table_missing",
					TableName:   want.Name,
					Description: fmt.Sprintf("Table %q is declared but does not exist", want.Name),
				}},
			})
			report.DriftedTables++
			report.BreakingCount++
			continue
		}

		dr := DiffTable(want, got)
		report.Tables = append(report.Tables, dr)
		if dr.HasDrift {
			report.DriftedTables++
		}
		report.BreakingCount += dr.BreakingCount
	}

	return report
}
