package orm

import (
	"context"
	"encoding/json"
)

// Migration is one forward step. Up runs inside the step's transaction.
type Migration struct {
	Description string
	Up          func(ctx context.Context, tx *DB) error
}

// Migrations maps a target version to the step that reaches it.
type Migrations map[int]Migration

// MigrationRecord is one entry of the applied-migration history.
type MigrationRecord struct {
	Version     int    `json:"version"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

// Version returns the schema version stored in the meta table.
func (d *DB) Version(ctx context.Context) (int, error) {
	rows, err := d.queryRecords(ctx, "SELECT version FROM _meta WHERE id = 1", nil)
	if err != nil {
		return 0, newError(CodeMigration, err, "read schema version")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := parseInt(rows[0]["version"])
	return int(n), nil
}

// History returns applied migrations, oldest first.
func (d *DB) History(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := d.queryRecords(ctx, "SELECT migration_history FROM _meta WHERE id = 1", nil)
	if err != nil {
		return nil, newError(CodeMigration, err, "read migration history")
	}
	out := []MigrationRecord{}
	if len(rows) == 0 {
		return out, nil
	}
	raw, _ := toText(rows[0]["migration_history"]).(string)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, newError(CodeMigration, err, "decode migration history")
	}
	return out, nil
}

// MigrateTo applies steps current+1 through target, each in its own
// transaction that also records the step and advances the version. A
// failure leaves the database at the last committed version. Migrating to
// the current version is a no-op; migrating below it is an error.
func (d *DB) MigrateTo(ctx context.Context, target int, steps Migrations) error {
	current, err := d.Version(ctx)
	if err != nil {
		return err
	}
	if target < current {
		return newError(CodeMigration, nil, "cannot migrate down from version %d to %d", current, target)
	}
	if target == current {
		d.log.Debug("schema up to date", "version", current)
		return nil
	}

	for v := current + 1; v <= target; v++ {
		if _, ok := steps[v]; !ok {
			return newError(CodeMigration, nil, "missing migration for version %d", v)
		}
	}

	for v := current + 1; v <= target; v++ {
		step := steps[v]
		err := d.Transaction(ctx, func(tx *DB) error {
			if step.Up != nil {
				if err := step.Up(ctx, tx); err != nil {
					return err
				}
			}
			return tx.recordMigration(ctx, v, step.Description)
		})
		if err != nil {
			d.log.Error("migration failed", "version", v, "error", err)
			return newError(CodeMigration, err, "migration %d", v)
		}
		d.log.Info("migration applied", "version", v, "description", step.Description)
	}
	return nil
}

func (d *DB) recordMigration(ctx context.Context, version int, description string) error {
	history, err := d.History(ctx)
	if err != nil {
		return err
	}
	now := d.timestamp()
	history = append(history, MigrationRecord{Version: version, Timestamp: now, Description: description})
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}

	_, err = d.exec(ctx,
		"UPDATE _meta SET version = :version, last_updated = :now, migration_history = :history WHERE id = 1",
		map[string]any{"version": version, "now": now, "history": string(raw)})
	return err
}
