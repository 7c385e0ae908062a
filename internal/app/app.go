// Package app wires the botfarm components from configuration.
// It is shared by the server and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/cache/memory"
	"github.com/prn-tf/botfarm/internal/cache/redis"
	"github.com/prn-tf/botfarm/internal/config"
	"github.com/prn-tf/botfarm/internal/lock"
	"github.com/prn-tf/botfarm/internal/metrics"
	"github.com/prn-tf/botfarm/internal/pkg/crypto"
	"github.com/prn-tf/botfarm/internal/repository"
	"github.com/prn-tf/botfarm/internal/repository/postgres"
	"github.com/prn-tf/botfarm/internal/repository/sqlite"
	"github.com/prn-tf/botfarm/internal/service"
)

// App holds the constructed components and the resources they own.
type App struct {
	Database    repository.DatabaseHealth
	UserService *service.UserService
	Metrics     *metrics.Metrics

	// Locker guards background jobs. It is Redis-backed when Redis is
	// enabled and process-local otherwise.
	Locker lock.Locker

	closers []io.Closer
}

// Options tunes what New builds.
type Options struct {
	// WithMetrics registers the Prometheus collectors.
	WithMetrics bool

	// WithCache enables the user cache: Redis when it is enabled in config,
	// otherwise an in-process cache for the embedded driver. A shared
	// Postgres store without Redis runs uncached since other processes
	// would not invalidate a local copy.
	WithCache bool
}

// NewFactory returns a repository factory with every backend registered.
func NewFactory(cfg config.DatabaseConfig, logger zerolog.Logger) *repository.Factory {
	return repository.NewFactory(cfg, logger).
		Register("postgres", postgres.Open).
		Register("sqlite", sqlite.Open)
}

// New opens the store and builds the user service.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	a := &App{}

	result, err := NewFactory(cfg.Database, logger).Create(ctx)
	if err != nil {
		return nil, err
	}
	a.Database = result.Database
	a.closers = append(a.closers, result.Database)

	var svcOpts []service.UserServiceOption

	if opts.WithMetrics && cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Metrics.Namespace, nil)
		svcOpts = append(svcOpts, service.WithMetrics(a.Metrics))
	}

	a.Locker = lock.NewMemoryLocker()

	if cfg.Redis.Enabled {
		cache, err := redis.NewCache(ctx, cfg.Redis, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, cache)
		a.Locker = lock.NewRedisLocker(cache.Client())

		if opts.WithCache {
			svcOpts = append(svcOpts, service.WithCache(cache, cfg.Redis.CacheTTL))
		}
	}

	if opts.WithCache && !cfg.Redis.Enabled && cfg.Database.IsEmbedded() && cfg.Redis.CacheTTL > 0 {
		cache := memory.NewCache(cfg.Redis.CacheTTL)
		a.closers = append(a.closers, cache)
		svcOpts = append(svcOpts, service.WithCache(cache, cfg.Redis.CacheTTL))
		logger.Debug().Dur("ttl", cfg.Redis.CacheTTL).Msg("using in-process user cache")
	}

	if cfg.Auth.PasswordKey != "" {
		enc, err := crypto.NewEncryptorFromSecret(cfg.Auth.PasswordKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize password sealing: %w", err)
		}
		svcOpts = append(svcOpts, service.WithPasswordCipher(enc))
		logger.Info().Msg("password sealing enabled")
	}

	a.UserService = service.NewUserService(result.Repos.User, logger, svcOpts...)
	return a, nil
}

// Close releases every owned resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
