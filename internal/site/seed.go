package site

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"

	"github.com/foliodb/folio/internal/orm"
)

// SeedOrder lists the fixture tables in dependency order. Each is read from
// "<table>.json" in the seed directory.
var SeedOrder = []string{Users, Tags, Projects, Media, ProjectTags}

// HashPassword returns the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Seed loads every fixture file found in dir inside one transaction and
// returns the number of rows inserted per table. Missing files are
// skipped. A "password" field on users is hashed into password_hash.
func Seed(ctx context.Context, db *orm.DB, dir string) (map[string]int, error) {
	fixtures := map[string][]orm.Record{}
	for _, table := range SeedOrder {
		recs, err := readFixture(filepath.Join(dir, table+".json"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", table, err)
		}
		if table == Users {
			if err := hashPasswords(recs); err != nil {
				return nil, fmt.Errorf("seed %s: %w", table, err)
			}
		}
		fixtures[table] = recs
	}

	counts := map[string]int{}
	err := db.Transaction(ctx, func(tx *orm.DB) error {
		for _, table := range SeedOrder {
			recs, ok := fixtures[table]
			if !ok {
				continue
			}
			created, err := tx.BulkCreate(ctx, table, recs)
			if err != nil {
				return fmt.Errorf("seed %s: %w", table, err)
			}
			counts[table] = len(created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// readFixture decodes a JSON array of objects, keeping numbers exact.
func readFixture(path string) ([]orm.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s must hold a JSON array of objects: %w", filepath.Base(path), err)
	}
	recs := make([]orm.Record, len(raw))
	for i, r := range raw {
		recs[i] = orm.Record(r)
	}
	return recs, nil
}

func hashPasswords(recs []orm.Record) error {
	for i, r := range recs {
		pw, ok := r["password"].(string)
		if !ok {
			continue
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		delete(r, "password")
		r["password_hash"] = hash
	}
	return nil
}
