package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Bloop-Tech/users-also-buy/internal/checkpoint"
)

// initCheckpointStore builds the checkpoint store named by config.
func initCheckpointStore(ctx context.Context) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Driver {
	case "file":
		return checkpoint.NewFile(cfg.Checkpoint.Path), nil
	case "sqlite":
		return checkpoint.NewSQLite(cfg.Checkpoint.Path, cfg.Checkpoint.Name)
	case "postgres":
		return checkpoint.NewPostgres(ctx, cfg.Checkpoint.DatabaseURL, cfg.Checkpoint.Name)
	default:
		return nil, eris.Errorf("unknown checkpoint driver %q", cfg.Checkpoint.Driver)
	}
}
