package query

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		input  string
		errMsg string // empty means valid
	}{
		{"slug", ""},
		{"_meta", ""},
		{"projects_id", ""},
		{"year2", ""},
		{strings.Repeat("a", maxIdentifier), ""},
		{"", "cannot be empty"},
		{strings.Repeat("a", maxIdentifier+1), "too long"},
		{"2col", "must match"},
		{"created at", "must match"},
		{"project-tags", "must match"},
		{`name"`, "must match"},
		{"id; DROP TABLE users--", "must match"},
		{"select", "reserved word"},
		{"Pragma", "reserved word"},
		{"VACUUM", "reserved word"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("err = %v, want mention of %q", err, tt.errMsg)
			}
		})
	}
}

func TestValidateIdentifiers(t *testing.T) {
	if err := ValidateIdentifiers([]string{"id", "name", "slug"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateIdentifiers([]string{"id", "from", "1x"})
	if err == nil || !strings.Contains(err.Error(), "from") {
		t.Errorf("err = %v, want the first bad name reported", err)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct{ in, want string }{
		{"projects", `"projects"`},
		{`we"ird`, `"we""ird"`},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if got := QuoteLiteral("it's"); got != "'it''s'" {
		t.Errorf("QuoteLiteral = %s", got)
	}
}
