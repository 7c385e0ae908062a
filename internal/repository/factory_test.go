package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/botfarm/internal/config"
)

func TestFactory_Create(t *testing.T) {
	var opened config.DatabaseConfig
	want := &CreateRepositoriesResult{Repos: &Repositories{}}

	f := NewFactory(config.DatabaseConfig{Driver: "sqlite", Path: "x.db"}, zerolog.Nop()).
		Register("sqlite", func(_ context.Context, cfg config.DatabaseConfig, _ zerolog.Logger) (*CreateRepositoriesResult, error) {
			opened = cfg
			return want, nil
		})

	assert.Equal(t, "sqlite", f.Driver())
	assert.True(t, f.IsEmbedded())

	got, err := f.Create(context.Background())
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, "x.db", opened.Path)
}

func TestFactory_UnknownDriver(t *testing.T) {
	f := NewFactory(config.DatabaseConfig{Driver: "postgres"}, zerolog.Nop())

	_, err := f.Create(context.Background())
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func TestFactory_OpenError(t *testing.T) {
	boom := errors.New("boom")
	f := NewFactory(config.DatabaseConfig{Driver: "postgres"}, zerolog.Nop()).
		Register("postgres", func(context.Context, config.DatabaseConfig, zerolog.Logger) (*CreateRepositoriesResult, error) {
			return nil, boom
		})

	_, err := f.Create(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestCacheKey_User(t *testing.T) {
	assert.Equal(t,
		"cache:user:6f1c2d3e-0000-4000-8000-000000000001",
		CacheKey{}.User(uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001")),
	)
}
