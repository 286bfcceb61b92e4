package query

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseOrderClause(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []OrderClause
		wantErr string
	}{
		{"empty", "", nil, ""},
		{"blank entries", " , ,", nil, ""},
		{"default ascending", "name", []OrderClause{{Column: "name"}}, ""},
		{"descending lower case", "year desc", []OrderClause{{Column: "year", Desc: true}}, ""},
		{
			"several",
			"year DESC, name ASC",
			[]OrderClause{{Column: "year", Desc: true}, {Column: "name"}},
			"",
		},
		{"extra whitespace", "  name   DESC  ", []OrderClause{{Column: "name", Desc: true}}, ""},
		{"bad direction", "name SIDEWAYS", nil, "invalid order direction"},
		{"too many tokens", "name ASC NULLS", nil, "expected 'column [ASC|DESC]'"},
		{"bad column", "1name", nil, "invalid order column"},
		{"injection", "name; DROP TABLE users", nil, "invalid order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOrderClause(tt.input)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFieldSelection(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"id", []string{"id"}, false},
		{" id , name ,slug", []string{"id", "name", "slug"}, false},
		{"id,,name,", []string{"id", "name"}, false},
		{"id,name,id", []string{"id", "name"}, false},
		{"id,na me", nil, true},
		{"id,select", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFieldSelection(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuoteIdentifiers(t *testing.T) {
	got, err := QuoteIdentifiers(nil)
	if err != nil || got != "*" {
		t.Errorf("empty = %q, %v", got, err)
	}
	got, err = QuoteIdentifiers([]string{"id", "slug"})
	if err != nil || got != `"id", "slug"` {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := QuoteIdentifiers([]string{"id", "bad name"}); err == nil {
		t.Error("expected error for an invalid name")
	}
}

func TestOrderBy(t *testing.T) {
	if got := OrderBy(nil); got != "" {
		t.Errorf("empty = %q", got)
	}
	got := OrderBy([]OrderClause{{Column: "year", Desc: true}, {Column: "name"}})
	want := `ORDER BY "year" DESC, "name" ASC`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLimitOffset(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int
		want          string
		params        map[string]any
	}{
		{"none", 0, 0, "", map[string]any{}},
		{"limit only", 10, 0, "LIMIT :limit", map[string]any{"limit": 10}},
		{"both", 10, 20, "LIMIT :limit OFFSET :offset", map[string]any{"limit": 10, "offset": 20}},
		{"offset only", 0, 5, "LIMIT :limit OFFSET :offset", map[string]any{"limit": -1, "offset": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := map[string]any{}
			if got := LimitOffset(tt.limit, tt.offset, params); got != tt.want {
				t.Errorf("sql = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(params, tt.params) {
				t.Errorf("params = %v, want %v", params, tt.params)
			}
		})
	}
}
