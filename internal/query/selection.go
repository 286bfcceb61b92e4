package query

import (
	"fmt"
	"strings"
)

// OrderClause orders results by one column.
type OrderClause struct {
	Column string
	Desc   bool
}

// ParseOrderClause parses "year DESC, name" style input. The direction is
// optional and case-insensitive; it defaults to ascending. Empty input
// yields no clauses.
func ParseOrderClause(order string) ([]OrderClause, error) {
	var clauses []OrderClause
	for _, part := range splitList(order) {
		tokens := strings.Fields(part)
		if len(tokens) > 2 {
			return nil, fmt.Errorf("invalid order clause %q: expected 'column [ASC|DESC]'", part)
		}
		if err := ValidateIdentifier(tokens[0]); err != nil {
			return nil, fmt.Errorf("invalid order column: %w", err)
		}

		c := OrderClause{Column: tokens[0]}
		if len(tokens) == 2 {
			switch strings.ToUpper(tokens[1]) {
			case "ASC":
			case "DESC":
				c.Desc = true
			default:
				return nil, fmt.Errorf("invalid order direction %q: must be ASC or DESC", tokens[1])
			}
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

// ParseFieldSelection parses "id,name,slug" into validated column names.
// Repeated names are kept once, in first-seen order.
func ParseFieldSelection(fields string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, name := range splitList(fields) {
		if err := ValidateIdentifier(name); err != nil {
			return nil, fmt.Errorf("invalid field name: %w", err)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

// ParseIncludeList parses a comma-separated relation alias list such as
// "media,tags".
func ParseIncludeList(s string) ([]string, error) {
	return ParseFieldSelection(s)
}

// splitList splits on commas and drops blank entries.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// QuoteIdentifiers validates and quotes names into a select list. An empty
// list selects every column.
func QuoteIdentifiers(names []string) (string, error) {
	if len(names) == 0 {
		return "*", nil
	}
	if err := ValidateIdentifiers(names); err != nil {
		return "", err
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = Quote(name)
	}
	return strings.Join(quoted, ", "), nil
}

// OrderBy renders an ORDER BY fragment. Callers check the columns against
// their table first.
func OrderBy(clauses []OrderClause) string {
	if len(clauses) == 0 {
		return ""
	}
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		dir := "ASC"
		if c.Desc {
			dir = "DESC"
		}
		parts[i] = Quote(c.Column) + " " + dir
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// LimitOffset renders a LIMIT/OFFSET fragment and binds both values into
// params. An offset without a limit uses LIMIT -1, which SQLite reads as
// unbounded.
func LimitOffset(limit, offset int, params map[string]any) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = -1
	}
	params["limit"] = limit
	if offset <= 0 {
		return "LIMIT :limit"
	}
	params["offset"] = offset
	return "LIMIT :limit OFFSET :offset"
}
