package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "db",
		Aliases: []string{"database"},
		Short:   "Maintain the database file",
		Long:    "Inspect, compact, back up and query the folio database file.",
	}

	cmd.AddCommand(newDBStatsCmd())
	cmd.AddCommand(newDBVacuumCmd())
	cmd.AddCommand(newDBBackupCmd())
	cmd.AddCommand(newDBQueryCmd())

	return cmd
}

// ---------- db stats ----------

func newDBStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show row counts, schema version and file size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBStats(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDBStats(jsonOutput bool) error {
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

	stats, err := db.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Database: %s\n", stats.Path)
	fmt.Printf("  schema version: %d\n", stats.Version)
	fmt.Printf("  file size:      %s\n", formatBytes(stats.SizeBytes))
	fmt.Println()

	fmt.Printf("%-16s %10s %10s\n", "TABLE", "ROWS", "DELETED")
	fmt.Printf("%-16s %10s %10s\n", "-----", "----", "-------")
	for _, t := range stats.Tables {
		fmt.Printf("%-16s %10d %10d\n", t.Name, t.Rows, t.Deleted)
	}
	return nil
}

// ---------- db vacuum ----------

func newDBVacuumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Rebuild the database file and reclaim free pages",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			before, _ := db.Stats(ctx)
			if err := db.Vacuum(ctx); err != nil {
				return err
			}
			after, _ := db.Stats(ctx)
			if before != nil && after != nil {
				fmt.Printf("Vacuumed %s: %s -> %s\n", db.Path(), formatBytes(before.SizeBytes), formatBytes(after.SizeBytes))
				return nil
			}
			fmt.Printf("Vacuumed %s\n", db.Path())
			return nil
		},
	}
}

// ---------- db backup ----------

func newDBBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "backup <dest>",
		Short:   "Write a consistent copy of the database to a new file",
		Example: `  folio db backup backups/site-2024-05-01.db`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := args[0]
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("%s already exists", dest)
			}

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

			if err := db.Backup(ctx, dest); err != nil {
				return err
			}
			fmt.Printf("Backed up %s to %s\n", db.Path(), dest)
			return nil
		},
	}
}

// ---------- db query ----------

func newDBQueryCmd() *cobra.Command {
	var (
		params     []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a raw SQL statement",
		Long: `Run a raw SQL statement against the database, bypassing validation and hooks.
Parameters are bound by name with --param name=value and referenced as :name.`,
		Example: `  folio db query "SELECT slug, year FROM projects WHERE year >= :year" --param year=2022`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBQuery(args[0], params, jsonOutput)
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "Named parameter as name=value (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output rows as JSON")

	return cmd
}

func runDBQuery(sql string, params []string, jsonOutput bool) error {
	bound := make(map[string]any, len(params))
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid --param %q: expected name=value", p)
		}
		bound[name] = value
	}

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

	rows, err := db.RawQuery(ctx, sql, bound)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	slices.Sort(cols)

	fmt.Println(strings.Join(cols, "\t"))
	for _, r := range rows {
		vals := make([]string, len(cols))
		for i, c := range cols {
			if r[c] == nil {
				vals[i] = "NULL"
				continue
			}
			vals[i] = fmt.Sprint(r[c])
		}
		fmt.Println(strings.Join(vals, "\t"))
	}
	fmt.Printf("(%d rows)\n", len(rows))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
