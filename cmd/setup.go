package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Setup writes config.toml from the embedded template when missing, then opens and migrates the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlain("✓ Config written to %s\n", configPath)

		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		r.config = config
	} else {
		r.writePlain("Config already present at %s\n", configPath)
	}

	if cmd.Bool("config-only") {
		return nil
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if _, err := r.database(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	if r.config.Provider.APIToken == "" {
		r.writePlainln("Next: set provider.api_token in %s, then link an account with 'socialsync accounts link'.", configPath)
	}
	return nil
}

// MigrateUp applies pending migrations.
func (r *Runner) MigrateUp(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path, r.config.Database.BusyTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return err
	}
	r.logger.Info("migrations applied", "path", r.config.Database.Path)
	return r.printMigrations(db)
}

// MigrateDown rolls back the latest migration.
func (r *Runner) MigrateDown(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path, r.config.Database.BusyTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Warn("rolled back latest migration", "path", r.config.Database.Path)
	return r.printMigrations(db)
}

// MigrateStatus lists applied migrations.
func (r *Runner) MigrateStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path, r.config.Database.BusyTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	return r.printMigrations(db)
}

func (r *Runner) printMigrations(db *sql.DB) error {
	applied, err := shared.MigrationStatus(db)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	if len(applied) == 0 {
		return r.writePlain("No migrations applied\n")
	}

	r.writePlainHeader("Applied migrations")
	for _, m := range applied {
		r.writePlain("%04d  %s\n", m.Version, m.AppliedAt.Local().Format(time.DateTime))
	}
	return nil
}
