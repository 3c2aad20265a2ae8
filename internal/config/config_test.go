package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: media-agent
  environment: test
database:
  path: data/queue.db
storage:
  budget_bytes: 134217728
transfer:
  base_url: https://media.example.com
  api_key: secret
  request_timeout: 10s
sync:
  max_attempts: 3
  stagger_delay: 50ms
connectivity:
  probe_url: https://media.example.com/health
  probe_interval: 30s
api:
  enabled: true
  port: 9000
  auth:
    enabled: true
    api_keys:
      - key: k1
        name: dashboard
  rate_limit:
    rps: 10
    burst: 20
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "media-agent", cfg.App.Name)
	assert.Equal(t, "data/queue.db", cfg.Database.Path)
	assert.Equal(t, int64(128*1024*1024), cfg.Storage.BudgetBytes)
	assert.Equal(t, "https://media.example.com", cfg.Transfer.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Transfer.RequestTimeout)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.StaggerDelay)
	assert.Equal(t, 30*time.Second, cfg.Connectivity.ProbeInterval)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, 9000, cfg.API.Port)
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "dashboard", cfg.API.Auth.APIKeys[0].Name)
	assert.Equal(t, float64(10), cfg.API.RateLimit.RPS)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: data/queue.db
transfer:
  base_url: https://media.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "offline-media-sync", cfg.App.Name)
	assert.Equal(t, int64(64*1024*1024), cfg.Storage.BudgetBytes)
	assert.Equal(t, 30*time.Second, cfg.Transfer.RequestTimeout)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Sync.StaggerDelay)
	assert.Equal(t, 15*time.Second, cfg.Connectivity.ProbeInterval)
	assert.Equal(t, 5*time.Second, cfg.Connectivity.ProbeTimeout)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "exports", cfg.Exports.Path)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("MEDIA_API_KEY", "from-env")
	path := writeConfig(t, `
database:
  path: data/queue.db
transfer:
  base_url: https://media.example.com
  api_key: ${MEDIA_API_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Transfer.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "database: [not: valid")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "MissingDatabasePath",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database path",
		},
		{
			name:    "MissingBaseURL",
			mutate:  func(c *Config) { c.Transfer.BaseURL = "" },
			wantErr: "base_url",
		},
		{
			name:    "NegativeBudget",
			mutate:  func(c *Config) { c.Storage.BudgetBytes = -1 },
			wantErr: "budget_bytes",
		},
		{
			name:    "ZeroMaxAttempts",
			mutate:  func(c *Config) { c.Sync.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{Path: "data/queue.db"},
				Transfer: TransferConfig{BaseURL: "https://media.example.com"},
				Sync:     SyncConfig{MaxAttempts: 5},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
