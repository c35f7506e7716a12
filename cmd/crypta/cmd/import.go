package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptadb/crypta/internal/importer"
	"github.com/cryptadb/crypta/internal/store"
)

var (
	personsFile     string
	locationsFile   string
	assignmentsFile string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import records from CSV files",
	Long: `Import person, location, and assignment records from CSV exports.

Locations import before persons and assignments so that assignment rows
can resolve their location by name. Rows missing required fields are
skipped and counted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if personsFile == "" && locationsFile == "" && assignmentsFile == "" {
			return fmt.Errorf("nothing to import; pass --locations, --persons, or --assignments")
		}

		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		if err := s.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}

		imp := importer.New(s, logger)
		var stats importer.Stats

		runFile := func(path string, fn func(*os.File) error) error {
			if path == "" {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return fn(f)
		}

		if err := runFile(locationsFile, func(f *os.File) error {
			return imp.ImportLocations(f, &stats)
		}); err != nil {
			return fmt.Errorf("import locations: %w", err)
		}
		if err := runFile(personsFile, func(f *os.File) error {
			return imp.ImportPersons(f, &stats)
		}); err != nil {
			return fmt.Errorf("import persons: %w", err)
		}
		if err := runFile(assignmentsFile, func(f *os.File) error {
			return imp.ImportAssignments(f, &stats)
		}); err != nil {
			return fmt.Errorf("import assignments: %w", err)
		}

		fmt.Printf("Imported %d locations, %d persons, %d assignments (%d rows skipped)\n",
			stats.Locations, stats.Persons, stats.Assignments, stats.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&locationsFile, "locations", "", "location CSV file")
	importCmd.Flags().StringVar(&personsFile, "persons", "", "person CSV file")
	importCmd.Flags().StringVar(&assignmentsFile, "assignments", "", "assignment CSV file")
}
