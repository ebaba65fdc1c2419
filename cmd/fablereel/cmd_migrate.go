package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fablereel/fablereel/internal/config"
	"github.com/fablereel/fablereel/internal/platform/logger"
	"github.com/fablereel/fablereel/internal/platform/postgres"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Apply all pending migrations to the configured Postgres database.`,
		RunE:  migrateCommandE,
	}
}

func migrateCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if cfg.Database.URL == "" {
		return fmt.Errorf("migrations require a database URL; the directory store needs none")
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database connection", "error", err)
		}
	}()

	if err := postgres.Migrate(cmd.Context(), db); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
