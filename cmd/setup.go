package main

import (
	"context"

	"github.com/LosAICode/neurogen-client/internal/history"
	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes a starter config.toml for editing.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.writePlain("Config file created at %s\n", path)
	return nil
}

// SetupDatabase creates the task history database and its schema.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("db")
	if path == "" {
		path = r.config.Database.Path
	}
	if path == "" {
		path = "neurogen.db"
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		return err
	}
	defer db.Close()

	store := history.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	r.logger.Info("database initialized", "path", path)
	r.writePlain("Database initialized at %s\n", path)
	return nil
}

// Ping probes the server liveness endpoint.
func (r *Runner) Ping(ctx context.Context, cmd *cli.Command) error {
	if err := r.client.Ping(ctx); err != nil {
		return err
	}
	r.writePlain("Server is reachable\n")
	return nil
}
