// Package site declares the portfolio data model on top of the orm engine:
// users, projects, their media and tags, plus the versioned migrations and
// the JSON seed loader that ship with it.
package site

import (
	"context"
	"regexp"
	"strings"

	"github.com/foliodb/folio/internal/orm"
)

// Table names.
const (
	Users       = "users"
	Projects    = "projects"
	Media       = "media"
	Tags        = "tags"
	ProjectTags = "projects_tags"
)

// Roles a user may hold.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// PublicTables are the tables exposed read-only to anonymous clients.
var PublicTables = []string{Projects, Media, Tags}

var slugJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases s and collapses every run of other characters into
// a single hyphen.
func Slugify(s string) string {
	s = slugJunk.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}

// Define registers every site table and relation on db. Tables are created
// when missing; existing data is never touched, so Define runs on every
// startup.
func Define(ctx context.Context, db *orm.DB) error {
	if err := db.Define(ctx, Users, []orm.Column{
		orm.Col("id", orm.Field{Type: orm.AutoID}),
		orm.Col("email", orm.Field{Type: orm.Email, Required: true, Unique: true}),
		orm.Col("password_hash", orm.Field{Type: orm.String, Required: true}),
		orm.Col("role", orm.Field{Type: orm.String, Required: true, Default: RoleEditor}),
	}, orm.TableOptions{
		Timestamps: true,
		Hooks: orm.Hooks{
			BeforeCreate: checkRole,
			BeforeUpdate: func(ctx context.Context, rec orm.Record, _ orm.Where) error {
				return checkRole(ctx, rec)
			},
		},
	}); err != nil {
		return err
	}

	if err := db.Define(ctx, Projects, []orm.Column{
		orm.Col("id", orm.Field{Type: orm.AutoID}),
		orm.Col("name", orm.Field{Type: orm.String, Required: true, MaxLength: orm.Len(200)}),
		orm.Col("slug", orm.Field{Type: orm.String, Required: true, Unique: true}),
		orm.Col("description", orm.Field{Type: orm.Text}),
		orm.Col("year", orm.Field{Type: orm.Integer, Min: orm.Num(1900), Max: orm.Num(2100)}),
		orm.Col("cover", orm.Field{Type: orm.String}),
		orm.Col("homepage", orm.Field{Type: orm.Boolean, Default: false}),
	}, orm.TableOptions{
		Timestamps: true,
		Paranoid:   true,
		Indexes:    []orm.Index{{Columns: []string{"homepage"}}},
		Hooks: orm.Hooks{
			BeforeCreate: normalizeSlug,
			BeforeUpdate: func(ctx context.Context, rec orm.Record, _ orm.Where) error {
				return normalizeSlug(ctx, rec)
			},
		},
	}); err != nil {
		return err
	}

	if err := db.Define(ctx, Media, []orm.Column{
		orm.Col("id", orm.Field{Type: orm.AutoID}),
		orm.Col("name", orm.Field{Type: orm.String, Required: true}),
		orm.Col("path", orm.Field{Type: orm.String, Required: true}),
		orm.Col("kind", orm.Field{Type: orm.String, Default: "image"}),
		orm.Col("project_id", orm.Field{Type: orm.Integer, Required: true, References: &orm.Reference{
			Table: Projects, Column: "id", OnDelete: "CASCADE",
		}}),
	}, orm.TableOptions{
		Timestamps: true,
		Indexes:    []orm.Index{{Columns: []string{"project_id"}}},
	}); err != nil {
		return err
	}

	if err := db.Define(ctx, Tags, []orm.Column{
		orm.Col("id", orm.Field{Type: orm.AutoID}),
		orm.Col("name", orm.Field{Type: orm.String, Required: true, Unique: true, MaxLength: orm.Len(64)}),
	}, orm.TableOptions{}); err != nil {
		return err
	}

	if err := db.DeclareToMany(ctx, Projects, Media, orm.ToManyOptions{
		As: "media", ForeignKey: "project_id", Cascade: true,
	}); err != nil {
		return err
	}
	if err := db.DeclareToOne(ctx, Media, Projects, orm.ToOneOptions{
		As: "project", ForeignKey: "project_id",
	}); err != nil {
		return err
	}
	return db.DeclareManyToMany(ctx, Projects, Tags, orm.ManyToManyOptions{
		Through: ProjectTags, As: "tags", InverseAs: "projects",
	})
}

func normalizeSlug(_ context.Context, rec orm.Record) error {
	if s, ok := rec["slug"].(string); ok {
		rec["slug"] = Slugify(s)
	}
	return nil
}

func checkRole(_ context.Context, rec orm.Record) error {
	v, ok := rec["role"]
	if !ok {
		return nil
	}
	switch v {
	case RoleAdmin, RoleEditor:
		return nil
	}
	verr := &orm.ValidationError{Table: Users}
	verr.Fields = append(verr.Fields, orm.FieldError{Field: "role", Message: "role must be admin or editor"})
	return verr
}

// TagProject links a tag to a project. Linking twice is a constraint error.
func TagProject(ctx context.Context, db *orm.DB, projectID, tagID int64) error {
	_, err := db.Create(ctx, ProjectTags, orm.Record{"projects_id": projectID, "tags_id": tagID})
	return err
}

// UntagProject removes a tag link and reports whether one existed.
func UntagProject(ctx context.Context, db *orm.DB, projectID, tagID int64) (bool, error) {
	n, err := db.Delete(ctx, ProjectTags, orm.Where{"projects_id": projectID, "tags_id": tagID}, orm.DeleteOptions{})
	return n > 0, err
}
