package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cryptadb/crypta/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Database: %s\n", cfg.DatabasePath())
		fmt.Printf("  Persons:     %d\n", stats.PersonCount)
		fmt.Printf("  Locations:   %d\n", stats.LocationCount)
		fmt.Printf("  Assignments: %d\n", stats.AssignmentCount)
		fmt.Printf("  Users:       %d\n", stats.UserCount)
		fmt.Printf("  Size:        %.1f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
