package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/foliodb/folio/internal/contract"
	"github.com/foliodb/folio/internal/site"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply and inspect schema migrations",
		Long: `Bring the database to a schema version and report which migrations have run.
Tables are created from the site model on every open; migrations carry the data
changes between versions.`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

// ---------- migrate up ----------

func newMigrateUpCmd() *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Example: `  folio migrate up          # to the latest version
  folio migrate up --to 1   # stop at version 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(to)
		},
	}

	cmd.Flags().IntVar(&to, "to", site.Latest, "Target schema version")

	return cmd
}

func runMigrateUp(to int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, err := openDB(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	before, err := db.Version(ctx)
	if err != nil {
		return err
	}
	if err := db.MigrateTo(ctx, to, site.Migrations()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	after, err := db.Version(ctx)
	if err != nil {
		return err
	}

	if before == after {
		fmt.Printf("Database %s is already at version %d\n", db.Path(), after)
		return nil
	}
	fmt.Printf("Migrated %s from version %d to %d\n", db.Path(), before, after)
	return nil
}

// ---------- migrate status ----------

func newMigrateStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the schema version, migration history and drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runMigrateStatus(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, err := openDB(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.Version(ctx)
	if err != nil {
		return err
	}
	history, err := db.History(ctx)
	if err != nil {
		return err
	}
	report, err := db.Drift(ctx)
	if err != nil {
		return err
	}

	var pending []int
	for v := range site.Migrations() {
		if v > version {
			pending = append(pending, v)
		}
	}
	slices.Sort(pending)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"path":    db.Path(),
			"version": version,
			"latest":  site.Latest,
			"pending": pending,
			"history": history,
			"drift":   report,
		})
	}

	fmt.Printf("Database: %s\n", db.Path())
	fmt.Printf("  version %d of %d, %d pending\n\n", version, site.Latest, len(pending))

	if len(history) > 0 {
		fmt.Printf("%-8s %-26s %s\n", "VERSION", "APPLIED", "DESCRIPTION")
		fmt.Printf("%-8s %-26s %s\n", "-------", "-------", "-----------")
		for _, h := range history {
			fmt.Printf("%-8d %-26s %s\n", h.Version, h.Timestamp, h.Description)
		}
		fmt.Println()
	}

	printSchemaReport(report)
	return nil
}

func printDriftReport(r contract.DriftReport) {
	if !r.HasDrift {
		fmt.Printf("  %s: no drift\n", r.TableName)
		return
	}

	status := "DRIFT"
	if r.HasBreaking {
		status = "BREAKING"
	}
	fmt.Printf("  %s: %s (%d additive, %d breaking)\n", r.TableName, status, r.AdditiveCount, r.BreakingCount)
	for _, item := range r.Items {
		marker := "+"
		if item.Type == contract.DriftBreaking {
			marker = "!"
		}
		fmt.Printf("    %s %s\n", marker, item.Description)
	}
}

func printSchemaReport(r contract.SchemaReport) {
	fmt.Println("Schema Drift Report")
	fmt.Printf("  %d tables declared, %d with drift, %d breaking changes\n\n", r.TotalTables, r.DriftedTables, r.BreakingCount)

	for _, t := range r.Tables {
		printDriftReport(t)
	}

	if r.DriftedTables == 0 {
		fmt.Println("  All tables match their declarations.")
	}
}

// ---------- seed ----------

func newSeedCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load JSON fixtures into the database",
		Long: `Load <table>.json fixture files from a directory in one transaction. Each file
holds a JSON array of records; a "password" field on users is hashed. Missing
files are skipped.`,
		Example: `  folio seed --dir ./fixtures`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(dir)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Fixture directory (default: seed.dir)")

	return cmd
}

func runSeed(dir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Seed.Dir
	}
	if dir == "" {
		return fmt.Errorf("no fixture directory: pass --dir or set seed.dir")
	}
	ctx := context.Background()

	db, err := openDB(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := site.Seed(ctx, db, dir)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Printf("No fixture files found in %s\n", dir)
		return nil
	}
	for _, table := range site.SeedOrder {
		if n, ok := counts[table]; ok {
			fmt.Printf("Seeded %d %s\n", n, table)
		}
	}
	return nil
}
