// Package query compiles structured conditions, orderings and field
// selections into parameterized SQLite fragments. Identifiers are validated
// and quoted here; values only ever travel as bound parameters.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// maxIdentifier matches SQLite's practical limit for readable names.
const maxIdentifier = 128

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Keywords that are refused as table or column names even though every
// identifier is quoted in generated SQL.
var reserved = func() map[string]bool {
	words := `SELECT INSERT UPDATE DELETE REPLACE UPSERT DROP CREATE ALTER
		UNION INTO FROM WHERE TABLE INDEX VIEW TRIGGER PRAGMA ATTACH DETACH
		VACUUM REINDEX ANALYZE TRANSACTION BEGIN COMMIT ROLLBACK SAVEPOINT`
	m := map[string]bool{}
	for _, w := range strings.Fields(words) {
		m[w] = true
	}
	return m
}()

// ValidateIdentifier reports whether name can be used as a table, column or
// relation alias.
func ValidateIdentifier(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("identifier cannot be empty")
	case len(name) > maxIdentifier:
		return fmt.Errorf("identifier too long (max %d chars): %q", maxIdentifier, name)
	case !identPattern.MatchString(name):
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	case reserved[strings.ToUpper(name)]:
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// ValidateIdentifiers validates names in order and returns the first error.
func ValidateIdentifiers(names []string) error {
	for _, name := range names {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// Quote returns a double-quoted SQLite identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral returns a single-quoted SQL string literal. Only DDL uses it:
// DEFAULT clauses cannot take bound parameters.
func QuoteLiteral(val string) string {
	return "'" + strings.ReplaceAll(val, "'", "''") + "'"
}
