package cmd

import (
	"fmt"

	"github.com/gaiacurves/gaiacurves/internal/config"
	"github.com/gaiacurves/gaiacurves/internal/jobs"
	"github.com/gaiacurves/gaiacurves/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run ledger schema",
		Long: `Apply or roll back the run ledger migrations in the database named by
DATABASE_URL (or database.url in the config file).

"up" also applies the batch queue's River migrations. "down" only rolls
back the ledger tables.`,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ledgerConfig(cmd, root)
			if err != nil {
				return err
			}
			if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
				return err
			}

			pool, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := jobs.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			return printVersion(cmd, cfg)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ledgerConfig(cmd, root)
			if err != nil {
				return err
			}
			if err := postgres.MigrateDown(cfg.Database.URL, steps); err != nil {
				return err
			}
			return printVersion(cmd, cfg)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ledgerConfig(cmd, root)
			if err != nil {
				return err
			}
			return printVersion(cmd, cfg)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

// ledgerConfig loads the configuration for commands that cannot run without
// a database.
func ledgerConfig(cmd *cobra.Command, root *rootOptions) (config.Config, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	config.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging)
	if cfg.Database.URL == "" {
		return config.Config{}, fmt.Errorf("%w: set DATABASE_URL", postgres.ErrNoDatabase)
	}
	return cfg, nil
}

func printVersion(cmd *cobra.Command, cfg config.Config) error {
	version, dirty, err := postgres.MigrationVersion(cfg.Database.URL)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, state)
	return nil
}
