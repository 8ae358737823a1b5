package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plotterd/plotterd/internal/config"
	"github.com/plotterd/plotterd/internal/store"
	"github.com/plotterd/plotterd/pkg/log"
	"github.com/plotterd/plotterd/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		teardown, err := log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
		if err != nil {
			return err
		}
		defer teardown()

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}
		dataStore := store.NewStore(db)
		defer dataStore.Close()

		if cfg.Service.MigrationFolder != "" {
			dialect := cfg.Database.Type
			if dialect == "pgsql" {
				dialect = "postgres"
			}
			if err := migrations.MigrateStore(db, dialect, cfg.Service.MigrationFolder); err != nil {
				zap.S().Fatalw("running migrations", "error", err)
			}
			zap.S().Info("db migrated")
			return nil
		}

		if err := dataStore.InitialMigration(); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}
		zap.S().Info("db migrated")
		return nil
	},
}
