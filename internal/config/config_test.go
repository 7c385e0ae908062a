package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "botfarm", cfg.Database.Database)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=botfarm sslmode=disable", cfg.Database.DSN())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOTFARM_SERVER_PORT", "9100")
	t.Setenv("BOTFARM_DATABASE_DRIVER", "sqlite")
	t.Setenv("BOTFARM_DATABASE_PATH", "/tmp/botfarm-test.db")
	t.Setenv("BOTFARM_SERVER_DEBUG", "true")
	t.Setenv("BOTFARM_SERVER_PROJECT_NAME", "Farm")
	t.Setenv("BOTFARM_EXPORT_BUCKET", "snapshots")
	t.Setenv("BOTFARM_EXPORT_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("BOTFARM_EXPORT_SECRET_ACCESS_KEY", "s3cr3t")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.True(t, cfg.Database.IsEmbedded())
	assert.Equal(t, "/tmp/botfarm-test.db", cfg.Database.Path)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "Farm", cfg.Server.ProjectName)
	assert.Equal(t, "snapshots", cfg.Export.Bucket)
	assert.Equal(t, "AKIDEXAMPLE", cfg.Export.AccessKeyID)
	assert.Equal(t, "s3cr3t", cfg.Export.SecretAccessKey)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8081
database:
  url: postgres://bot:farm@db:5432/botfarm?sslmode=disable
redis:
  enabled: true
  cache_ttl: 1m
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "postgres://bot:farm@db:5432/botfarm?sslmode=disable", cfg.Database.DSN())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8000},
			Database: DatabaseConfig{Driver: "postgres", Host: "localhost", User: "u", Database: "d", MaxOpenConns: 5},
			Logging:  LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: true},
		{name: "postgres url replaces host", mutate: func(c *Config) {
			c.Database.Host = ""
			c.Database.URL = "postgres://localhost/botfarm"
		}},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Driver = "sqlite" }, wantErr: true},
		{name: "redis without ttl", mutate: func(c *Config) { c.Redis.Enabled = true }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
