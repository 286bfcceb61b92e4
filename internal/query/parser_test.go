package query

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseWhereJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr string
	}{
		{"empty", "", 0, ""},
		{"whitespace", "   ", 0, ""},
		{"single equality", `{"slug":"eco"}`, 1, ""},
		{"operator object", `{"year":{"$between":[2020,2023]}}`, 1, ""},
		{"or group", `{"$or":[{"slug":"eco"},{"year":2021}]}`, 1, ""},
		{"not an object", `[1,2]`, 0, "JSON object"},
		{"trailing data", `{"a":1}{"b":2}`, 0, "single JSON object"},
		{"bad column", `{"1bad":1}`, 0, "invalid filter column"},
		{"bad nested column", `{"$and":[{"drop":1}]}`, 0, "reserved word"},
		{"or not a list", `{"$or":{"a":1}}`, 0, "array of objects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWhereJSON(tt.input)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("got %d keys, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestParseWhereJSONKeepsNumbers(t *testing.T) {
	w, err := ParseWhereJSON(`{"id":9007199254740993}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := w["id"].(json.Number)
	if !ok {
		t.Fatalf("id decoded as %T, want json.Number", w["id"])
	}
	if n.String() != "9007199254740993" {
		t.Errorf("id = %s, want 9007199254740993", n)
	}
}

func TestParsedWhereCompiles(t *testing.T) {
	w, err := ParseWhereJSON(`{"$or":[{"slug":"eco"},{"year":{"$gte":2020}}],"homepage":1}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	frag, err := BuildWhere(w, WhereOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := `("slug" = :w0) OR ("year" >= :w1)`
	if !strings.Contains(frag.SQL, want) {
		t.Errorf("SQL = %q, want it to contain %q", frag.SQL, want)
	}
	if len(frag.Params) != 3 {
		t.Errorf("got %d params, want 3: %v", len(frag.Params), frag.Params)
	}
}

func TestParseIncludeList(t *testing.T) {
	got, err := ParseIncludeList("media, tags")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "media" || got[1] != "tags" {
		t.Errorf("got %v, want [media tags]", got)
	}
	if _, err := ParseIncludeList("media;drop"); err == nil {
		t.Error("expected error for invalid alias, got nil")
	}
}
