package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cryptadb/crypta/internal/export"
	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
	"github.com/cryptadb/crypta/internal/store"
)

var (
	exportBase    string
	exportFilters []string
	exportFormat  string
	exportColumns string
	exportOut     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export filtered records to a file",
	Long: `Export records to CSV, XLSX, or PDF without the TUI.

Filters use the same field:value form the API accepts, and repeat to
narrow further. Same-field filters widen the match; different fields
narrow it.

  crypta export --base person --filter status:Active --filter status:Retired \
      --format xlsx --out clergy.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := records.ParseBase(exportBase)
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}

		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		engine := query.NewEngine(s.DB())
		// Local exports run against the local database and bypass
		// gateway query permissions.
		rs, err := engine.FilterResults(cmd.Context(), base, exportFilters, query.StatsSelection{}, nil)
		if err != nil {
			return fmt.Errorf("query records: %w", err)
		}

		cols, err := resolveColumns(rs.Grid.Columns, base, exportColumns)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("crypta-%s.%s", base.String(), format.Extension())
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()

		if err := export.Write(f, format, cols, rs.Grid.Data); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Printf("Exported %d rows to %s\n", len(rs.Grid.Data), out)
		return nil
	},
}

// resolveColumns maps the --columns list onto the catalog, defaulting to
// the base's standard visible set.
func resolveColumns(catalog []records.Column, base records.Base, spec string) ([]records.Column, error) {
	wanted := base.DefaultColumns()
	if spec != "" {
		wanted = strings.Split(spec, ",")
	}

	byField := make(map[string]records.Column, len(catalog))
	for _, c := range catalog {
		byField[c.Field] = c
	}

	var cols []records.Column
	for _, f := range wanted {
		f = strings.TrimSpace(f)
		c, ok := byField[f]
		if !ok {
			return nil, fmt.Errorf("unknown column %q for base %s", f, base)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportBase, "base", "person", "record base (person or location)")
	exportCmd.Flags().StringArrayVar(&exportFilters, "filter", nil, "field:value filter (repeatable)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format (csv, xlsx, pdf)")
	exportCmd.Flags().StringVar(&exportColumns, "columns", "", "comma-separated column fields (default: base defaults)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file path")
}
