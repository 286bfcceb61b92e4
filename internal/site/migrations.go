package site

import (
	"context"
	"path"
	"strings"

	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/query"
)

// Latest is the schema version the current binary expects.
const Latest = 2

// DefaultTags are created by migration 2.
var DefaultTags = []string{"branding", "editorial", "web"}

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".webm": true}

// Migrations returns the ordered data migrations of the site schema. Table
// creation itself is handled by Define.
func Migrations() orm.Migrations {
	return orm.Migrations{
		1: {
			Description: "classify video media by file extension",
			Up:          classifyVideos,
		},
		2: {
			Description: "create default tags",
			Up:          createDefaultTags,
		},
	}
}

func classifyVideos(ctx context.Context, tx *orm.DB) error {
	rows, err := tx.FindAll(ctx, Media, orm.FindOptions{
		Columns: []string{"id", "path"},
		Where:   orm.Where{"kind": "image"},
	})
	if err != nil {
		return err
	}
	var ids []any
	for _, r := range rows {
		p, _ := r["path"].(string)
		if videoExtensions[strings.ToLower(path.Ext(p))] {
			ids = append(ids, r["id"])
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = tx.Update(ctx, Media, orm.Record{"kind": "video"}, orm.Where{"id": query.In(ids...)})
	return err
}

func createDefaultTags(ctx context.Context, tx *orm.DB) error {
	for _, name := range DefaultTags {
		exists, err := tx.Exists(ctx, Tags, orm.Where{"name": name})
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := tx.Create(ctx, Tags, orm.Record{"name": name}); err != nil {
			return err
		}
	}
	return nil
}

// Migrate defines the site tables and brings db up to Latest.
func Migrate(ctx context.Context, db *orm.DB) error {
	if err := Define(ctx, db); err != nil {
		return err
	}
	return db.MigrateTo(ctx, Latest, Migrations())
}
