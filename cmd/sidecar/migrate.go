package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainScope/internal/config"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the store schema",
	}

	migrateCmd.PersistentFlags().String("pg-host", "localhost", "Postgres host")
	migrateCmd.PersistentFlags().Uint32("pg-port", 5432, "Postgres port")
	migrateCmd.PersistentFlags().String("pg-database", "postgres", "Postgres database")
	migrateCmd.PersistentFlags().String("pg-user", "postgres", "Postgres user")
	migrateCmd.PersistentFlags().String("pg-password", "", "Postgres password")
	migrateCmd.PersistentFlags().String("pg-schema", "public", "Postgres schema")
	migrateCmd.PersistentFlags().String("node-env", "development", "environment (production, development, test)")
	migrateCmd.PersistentFlags().String("migrations-dir", "./migrations", "path to migration files")
	migrateCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, false)
		},
	}
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the last migration (blocked in production)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, true)
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd)
	return migrateCmd
}

func runMigrate(cmd *cobra.Command, down bool) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if down && cfg.IsProduction() {
		return fmt.Errorf("down migrations are disabled when NODE_ENV=production")
	}

	dir, err := filepath.Abs(cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}
	sourceURL := "file://" + filepath.ToSlash(dir)

	m, err := migrate.New(sourceURL, cfg.DSN())
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("migration source close", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("migration database close", zap.Error(dbErr))
		}
	}()

	if down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to apply")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("migrations applied", zap.String("dir", dir), zap.Bool("down", down))
	return nil
}
