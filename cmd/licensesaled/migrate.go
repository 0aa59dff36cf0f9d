package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bidon15/licensesale/internal/repository"
)

var migrateSteps int

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded schema migrations to database.url.

Examples:
  # Migrate to the latest version
  licensesaled migrate --config sale.yaml

  # Roll back one version
  licensesaled migrate --steps -1`,
		RunE: runMigrate,
	}
	cmd.Flags().IntVar(&migrateSteps, "steps", 0, "number of versions to migrate (0 = all up, negative = down)")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required (or LICENSESALE_DATABASE_URL)")
	}

	version, dirty, err := repository.Migrate(cfg.Database.URL, migrateSteps)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (%s)\n", version, state)
	return nil
}
