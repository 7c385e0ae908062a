// Package repository provides data access layer for the botfarm service.
// This file contains the factory that opens a backend based on configuration.
package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/config"
)

// Repositories holds all repository instances.
type Repositories struct {
	User UserRepository
}

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.DatabaseChecker for health endpoints.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// CreateRepositoriesResult contains the created repositories and database connection.
type CreateRepositoriesResult struct {
	Repos    *Repositories
	Database DatabaseHealth
}

// Opener opens a database backend and builds its repositories.
// Backends live in their own packages (postgres, sqlite) and are registered
// with the factory by the binary that wires them.
type Opener func(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*CreateRepositoriesResult, error)

// Factory creates repositories based on configuration.
type Factory struct {
	cfg     config.DatabaseConfig
	logger  zerolog.Logger
	openers map[string]Opener
}

// NewFactory creates a new repository factory.
func NewFactory(cfg config.DatabaseConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:     cfg,
		logger:  logger,
		openers: make(map[string]Opener),
	}
}

// Register associates a driver name with an opener.
func (f *Factory) Register(driver string, open Opener) *Factory {
	f.openers[driver] = open
	return f
}

// Driver returns the configured database driver.
func (f *Factory) Driver() string {
	return f.cfg.Driver
}

// IsEmbedded returns true if using embedded database.
func (f *Factory) IsEmbedded() bool {
	return f.cfg.IsEmbedded()
}

// Create opens the configured backend.
func (f *Factory) Create(ctx context.Context) (*CreateRepositoriesResult, error) {
	open, ok := f.openers[f.cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, f.cfg.Driver)
	}

	result, err := open(ctx, f.cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", f.cfg.Driver, err)
	}

	f.logger.Info().Str("driver", f.cfg.Driver).Msg("repositories created")
	return result, nil
}
