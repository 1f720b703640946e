package main

import (
	"fmt"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/db"
)

func newMigrateCmd(cfg *config.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|status|to|force> [version]",
		Short: "Manage the database schema",
		Long: `Apply or roll back schema migrations without starting the station.

  up       apply all pending migrations
  down     roll back the most recent migration
  status   print the current schema version
  to N     migrate up or down to version N
  force N  mark the schema as version N without running migrations`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"up", "down", "status", "to", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
			if _, err := resolveConfig(cfg, *cfgPath, changed); err != nil {
				return err
			}

			database, err := db.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			return db.RunMigrateCommand(cmd.OutOrStdout(), database, args[0], args[1:])
		},
	}
}
