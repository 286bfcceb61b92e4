package orm

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestDB opens a private in-memory database with a clock that advances
// one second per reading.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ticks int
	d, err := Open(Config{
		LogLevel: "silent",
		Now: func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks) * time.Second)
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// defineProjectMedia declares a paranoid projects table owning media rows.
func defineProjectMedia(t *testing.T, d *DB) {
	t.Helper()
	ctx := context.Background()
	must(t, d.Define(ctx, "projects", []Column{
		Col("id", Field{Type: AutoID}),
		Col("name", Field{Type: Text, Required: true}),
		Col("slug", Field{Type: Text, Required: true, Unique: true}),
		Col("year", Field{Type: Integer}),
		Col("homepage", Field{Type: Boolean, Default: false}),
		Col("meta", Field{Type: JSON}),
	}, TableOptions{Timestamps: true, Paranoid: true}))
	must(t, d.Define(ctx, "media", []Column{
		Col("id", Field{Type: AutoID}),
		Col("name", Field{Type: Text, Required: true}),
		Col("path", Field{Type: Text, Required: true}),
		Col("projectId", Field{Type: Integer, Required: true, References: &Reference{Table: "projects", Column: "id"}}),
	}, TableOptions{}))
	must(t, d.DeclareToMany(ctx, "projects", "media", ToManyOptions{As: "media", ForeignKey: "projectId"}))
	must(t, d.DeclareToOne(ctx, "media", "projects", ToOneOptions{As: "project", ForeignKey: "projectId"}))
}

func createProject(t *testing.T, d *DB, name, slug string, year int) int64 {
	t.Helper()
	c, err := d.Create(context.Background(), "projects", Record{"name": name, "slug": slug, "year": year})
	if err != nil {
		t.Fatalf("create project %s: %v", slug, err)
	}
	return c.ID
}

func createMedia(t *testing.T, d *DB, name string, projectID int64) int64 {
	t.Helper()
	c, err := d.Create(context.Background(), "media", Record{"name": name, "path": "/" + name, "projectId": projectID})
	if err != nil {
		t.Fatalf("create media %s: %v", name, err)
	}
	return c.ID
}

func wantCode(t *testing.T, err error, target *Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", target.Code)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected %s, got %v (code %s)", target.Code, err, ErrorCode(err))
	}
}
