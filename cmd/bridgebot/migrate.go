package main

import (
	"github.com/spf13/cobra"

	migrations "github.com/memohai/bridgebot/db"
	"github.com/memohai/bridgebot/internal/boot"
	"github.com/memohai/bridgebot/internal/db"
	"github.com/memohai/bridgebot/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|version|force> [version]",
		Short:     "Manage the database schema",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, overrides, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = boot.ApplyOverrides(cfg, overrides)
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			return db.RunMigrate(cmd.Context(), logger.L, cfg, migrations.MigrationsFS, args[0], args[1:])
		},
	}
}
