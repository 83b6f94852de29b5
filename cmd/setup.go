package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing and initializes the database.
//
// With --rollback the most recent migration is reverted instead.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Config file created at %s\n", r.configPath)
		r.writePlain("  Fill in credentials.spotify before running 'jukebox serve'\n")
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	db, err := r.database(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if cmd.Bool("rollback") {
		if err := shared.RollbackMigration(ctx, db); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		r.logger.Info("rolled back latest migration")
	}

	applied, err := shared.AppliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	slices.Sort(versions)

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (migrations applied: %v)\n", r.config.Database.Path, versions)
}
