package query

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildWhere(t *testing.T) {
	tests := []struct {
		name       string
		where      Where
		opts       WhereOptions
		wantSQL    string
		wantParams map[string]any
	}{
		{
			name:       "empty",
			where:      nil,
			wantSQL:    "",
			wantParams: map[string]any{},
		},
		{
			name:       "equality",
			where:      Where{"slug": "eco"},
			wantSQL:    `"slug" = :w0`,
			wantParams: map[string]any{"w0": "eco"},
		},
		{
			name:       "null literal",
			where:      Where{"cover": nil},
			wantSQL:    `"cover" IS NULL`,
			wantParams: map[string]any{},
		},
		{
			name:       "not null",
			where:      Where{"cover": Ne(nil)},
			wantSQL:    `"cover" IS NOT NULL`,
			wantParams: map[string]any{},
		},
		{
			name:       "keys emitted in sorted order",
			where:      Where{"year": 2021, "name": "Eco"},
			wantSQL:    `"name" = :w0 AND "year" = :w1`,
			wantParams: map[string]any{"w0": "Eco", "w1": 2021},
		},
		{
			name:       "comparison operators combine",
			where:      Where{"year": Op{"$gte": 2020, "$lt": 2024}},
			wantSQL:    `("year" >= :w0 AND "year" < :w1)`,
			wantParams: map[string]any{"w0": 2020, "w1": 2024},
		},
		{
			name:       "in expands one param per element",
			where:      Where{"id": In(1, 2, 3)},
			wantSQL:    `"id" IN (:w0_0, :w0_1, :w0_2)`,
			wantParams: map[string]any{"w0_0": 1, "w0_1": 2, "w0_2": 3},
		},
		{
			name:       "slice literal means in",
			where:      Where{"id": []int64{4, 5}},
			wantSQL:    `"id" IN (:w0_0, :w0_1)`,
			wantParams: map[string]any{"w0_0": int64(4), "w0_1": int64(5)},
		},
		{
			name:       "not in",
			where:      Where{"kind": NotIn("video")},
			wantSQL:    `"kind" NOT IN (:w0_0)`,
			wantParams: map[string]any{"w0_0": "video"},
		},
		{
			name:       "empty in matches nothing",
			where:      Where{"id": In()},
			wantSQL:    `1 = 0`,
			wantParams: map[string]any{},
		},
		{
			name:       "empty not in matches everything",
			where:      Where{"id": NotIn()},
			wantSQL:    `1 = 1`,
			wantParams: map[string]any{},
		},
		{
			name:       "between binds start and end",
			where:      Where{"year": Between(2020, 2023)},
			wantSQL:    `"year" BETWEEN :w0_start AND :w0_end`,
			wantParams: map[string]any{"w0_start": 2020, "w0_end": 2023},
		},
		{
			name:       "not between",
			where:      Where{"year": NotBetween(2020, 2023)},
			wantSQL:    `"year" NOT BETWEEN :w0_start AND :w0_end`,
			wantParams: map[string]any{"w0_start": 2020, "w0_end": 2023},
		},
		{
			name:       "like",
			where:      Where{"name": Like("Eco%")},
			wantSQL:    `"name" LIKE :w0`,
			wantParams: map[string]any{"w0": "Eco%"},
		},
		{
			name:       "ilike folds both sides",
			where:      Where{"name": ILike("éco%")},
			wantSQL:    `fold("name") LIKE fold(:w0)`,
			wantParams: map[string]any{"w0": "éco%"},
		},
		{
			name:       "or group",
			where:      Or(Where{"slug": "a"}, Where{"slug": "b", "year": 2020}),
			wantSQL:    `(("slug" = :w0) OR ("slug" = :w1 AND "year" = :w2))`,
			wantParams: map[string]any{"w0": "a", "w1": "b", "w2": 2020},
		},
		{
			name:       "and group from decoded JSON",
			where:      Where{"$and": []any{map[string]any{"year": map[string]any{"$gt": 2000}}}},
			wantSQL:    `(("year" > :w0))`,
			wantParams: map[string]any{"w0": 2000},
		},
		{
			name:       "map without operators is a literal",
			where:      Where{"meta": map[string]any{"a": 1}},
			opts:       WhereOptions{Normalize: func(_ string, v any) any { return "normalized" }},
			wantSQL:    `"meta" = :w0`,
			wantParams: map[string]any{"w0": "normalized"},
		},
		{
			name:       "soft delete clause appended",
			where:      Where{"slug": "eco"},
			opts:       WhereOptions{SoftDelete: "deleted_at"},
			wantSQL:    `"slug" = :w0 AND "deleted_at" IS NULL`,
			wantParams: map[string]any{"w0": "eco"},
		},
		{
			name:       "soft delete alone",
			where:      Where{},
			opts:       WhereOptions{SoftDelete: "deleted_at"},
			wantSQL:    `"deleted_at" IS NULL`,
			wantParams: map[string]any{},
		},
		{
			name:       "with deleted skips the clause",
			where:      Where{"slug": "eco"},
			opts:       WhereOptions{SoftDelete: "deleted_at", WithDeleted: true},
			wantSQL:    `"slug" = :w0`,
			wantParams: map[string]any{"w0": "eco"},
		},
		{
			name:       "custom prefix",
			where:      Where{"id": 1},
			opts:       WhereOptions{Prefix: "x"},
			wantSQL:    `"id" = :x0`,
			wantParams: map[string]any{"x0": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := BuildWhere(tt.where, tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if frag.SQL != tt.wantSQL {
				t.Errorf("SQL = %q, want %q", frag.SQL, tt.wantSQL)
			}
			if !reflect.DeepEqual(frag.Params, tt.wantParams) {
				t.Errorf("params = %#v, want %#v", frag.Params, tt.wantParams)
			}
		})
	}
}

func TestBuildWhereErrors(t *testing.T) {
	cols := map[string]bool{"id": true, "name": true}

	tests := []struct {
		name    string
		where   Where
		opts    WhereOptions
		wantErr string
	}{
		{"unknown column", Where{"secret": 1}, WhereOptions{Columns: cols}, "unknown column"},
		{"injection in column", Where{"id; DROP TABLE x": 1}, WhereOptions{}, "invalid filter column"},
		{"unsupported operator", Where{"id": Op{"$regex": "x"}}, WhereOptions{}, "unsupported operator"},
		{"unsupported logical", Where{"$xor": []Where{}}, WhereOptions{}, "unsupported logical operator"},
		{"between needs two", Where{"id": Op{"$between": []any{1}}}, WhereOptions{}, "exactly two"},
		{"or needs a list", Where{"$or": "nope"}, WhereOptions{}, "expected a list"},
		{"empty op", Where{"id": Op{}}, WhereOptions{}, "empty operator"},
		{"nested unknown column", Or(Where{"name": "a"}, Where{"secret": 1}), WhereOptions{Columns: cols}, "unknown column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildWhere(tt.where, tt.opts)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestBuildWhereValuesNeverInlined(t *testing.T) {
	evil := "x' OR '1'='1"
	frag, err := BuildWhere(Where{"name": evil, "id": In(evil)}, WhereOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(frag.SQL, evil) {
		t.Errorf("value leaked into SQL: %q", frag.SQL)
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty(nil) || !IsEmpty(Where{}) {
		t.Error("nil and empty Where should be empty")
	}
	if IsEmpty(Where{"id": 1}) {
		t.Error("Where with a key should not be empty")
	}
}
