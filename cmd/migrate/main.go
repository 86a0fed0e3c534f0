package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cassiomorais/paypal-relay/internal/infrastructure/config"
	"github.com/cassiomorais/paypal-relay/internal/repository/postgres"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dbURL string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the ledger_payments schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "db", "", "database URL (defaults to the configured database)")

	open := func() (*migrate.Migrate, error) {
		url := dbURL
		if url == "" {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			url = cfg.Database.MigrationURL()
		}
		return postgres.NewMigrator(url)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := open()
				if err != nil {
					return err
				}
				defer m.Close()

				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migration up failed: %w", err)
				}
				cmd.Println("Migrations applied successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := open()
				if err != nil {
					return err
				}
				defer m.Close()

				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migration down failed: %w", err)
				}
				cmd.Println("Migrations rolled back successfully")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := open()
				if err != nil {
					return err
				}
				defer m.Close()

				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("No migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("read version: %w", err)
				}
				cmd.Printf("Version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		},
	)

	return root
}
