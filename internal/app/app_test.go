package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/botfarm/internal/config"
	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			Path:         filepath.Join(t.TempDir(), "app.db"),
			MaxOpenConns: 1,
		},
		Redis:   config.RedisConfig{CacheTTL: time.Minute},
		Metrics: config.MetricsConfig{Enabled: true, Namespace: "botfarm"},
		Auth:    config.AuthConfig{PasswordKey: "k"},
	}
}

func TestNew_SQLite(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zerolog.Nop(), Options{WithMetrics: true, WithCache: true})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Metrics)
	require.NoError(t, a.Database.Health(context.Background()))

	user, err := a.UserService.CreateUser(context.Background(), service.CreateUserInput{
		Login:     "a@b.com",
		Password:  "plain",
		ProjectID: uuid.New(),
		Env:       domain.EnvProd,
		Domain:    domain.DomainRegular,
	})
	require.NoError(t, err)
	assert.Equal(t, "plain", user.Password)

	users, err := a.UserService.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "plain", users[0].Password)

	got, err := a.UserService.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Login, got.Login)

	locked, err := a.UserService.AcquireLock(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, locked.AlreadyLocked)

	got, err = a.UserService.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, locked.User.Locktime, got.Locktime)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewFactory_UnknownDriver(t *testing.T) {
	_, err := NewFactory(config.DatabaseConfig{Driver: "oracle"}, zerolog.Nop()).Create(context.Background())
	require.Error(t, err)
}
