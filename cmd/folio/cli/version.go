package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/foliodb/folio/internal/site"
)

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]any{
				"version":        version,
				"commit":         commit,
				"built":          date,
				"schema_version": site.Latest,
				"go_version":     runtime.Version(),
				"platform":       runtime.GOOS + "/" + runtime.GOARCH,
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "folio %s (%s, built %s)\n", version, commit, date)
			fmt.Fprintf(out, "  schema: v%d\n", site.Latest)
			fmt.Fprintf(out, "  go:     %s %s\n", runtime.Version(), info["platform"])
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
