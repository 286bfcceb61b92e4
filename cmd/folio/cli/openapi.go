package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foliodb/folio/internal/handler"
	"github.com/foliodb/folio/internal/openapi"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/site"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long: `Generate the OpenAPI 3 document the server publishes at /openapi.json. The
document is built from the site model alone, so no database file is needed.`,
		Example: `  folio openapi                                   # print to stdout
  folio openapi --base-url https://api.example.com -o openapi.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(baseURL, outputFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Server URL written into the document")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(baseURL, outputFile string) error {
	ctx := context.Background()

	db, err := orm.Open(orm.Config{LogLevel: "silent"})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := site.Define(ctx, db); err != nil {
		return err
	}

	h := handler.NewOpenAPIHandler(db, site.PublicTables, []string{site.Tags}, openapi.Info{})
	doc := openapi.Generate(h.Resources(), openapi.Info{
		Title:   "Folio API",
		Version: versionString(),
		BaseURL: baseURL,
	})

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(jsonBytes))
		return nil
	}
	if err := os.WriteFile(outputFile, append(jsonBytes, '\n'), 0644); err != nil {
		return fmt.Errorf("write spec: %w", err)
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}
