package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cryptadb/crypta/internal/auth"
	"github.com/cryptadb/crypta/internal/store"
)

var (
	adminUser     string
	adminEmail    string
	adminPassword string
)

var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Initialize the database schema",
	Long: `Initialize the crypta database schema. Safe to run repeatedly.

With --admin-user, also provisions a superuser account so the instance
is administrable before SSO or registration is set up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		if err := s.InitSchema(); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
		fmt.Printf("Database initialized at %s\n", cfg.DatabasePath())

		if adminUser == "" {
			return nil
		}
		if adminPassword == "" {
			return fmt.Errorf("--admin-password is required with --admin-user")
		}

		hash, err := auth.HashPassword(adminPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		id, err := s.CreateUser(adminUser, adminEmail, hash)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return fmt.Errorf("user %q already exists", adminUser)
			}
			return fmt.Errorf("create admin user: %w", err)
		}
		if err := s.SetSuperuser(id, true); err != nil {
			return fmt.Errorf("grant superuser: %w", err)
		}
		fmt.Printf("Superuser %q created.\n", adminUser)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initdbCmd)
	initdbCmd.Flags().StringVar(&adminUser, "admin-user", "", "create a superuser with this username")
	initdbCmd.Flags().StringVar(&adminEmail, "admin-email", "", "email for the superuser account")
	initdbCmd.Flags().StringVar(&adminPassword, "admin-password", "", "password for the superuser account")
}
