package main

import (
	"fmt"

	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/logger"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/migrate"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/postgres"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back ledger schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, closer, err := logger.New(cfg.LogConfig)
			if err != nil {
				return err
			}
			defer closer.Close()

			db := postgres.MustInitDB(cfg)
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			switch args[0] {
			case "up":
				return migrate.RunMigrations(db, cfg.SettlementDB.MigrationsPath)
			case "down":
				log.Warn("rolling back migrations", "steps", steps)
				return migrate.RollbackMigrations(db, cfg.SettlementDB.MigrationsPath, steps)
			}
			return fmt.Errorf("unknown direction %q", args[0])
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	return cmd
}
