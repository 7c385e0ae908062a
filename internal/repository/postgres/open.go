package postgres

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/config"
	"github.com/prn-tf/botfarm/internal/repository"
)

// Open connects to PostgreSQL, optionally applies migrations and builds the repositories.
// It satisfies repository.Opener.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	if cfg.AutoMigrate {
		m, err := NewMigrator(cfg.DSN(), logger)
		if err != nil {
			return nil, err
		}
		err = m.Up(ctx)
		m.Close()
		if err != nil {
			return nil, err
		}
	}

	db, err := NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &repository.CreateRepositoriesResult{
		Repos: &repository.Repositories{
			User: NewUserRepository(db),
		},
		Database: db,
	}, nil
}

var _ repository.Opener = Open
