package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost:5432/comms?sslmode=disable"
  max_open_conns: 40

mailchimp:
  base_url: "https://us5.api.mailchimp.com/3.0"
  list_id: "abc123"
  timeout_seconds: 45
  enabled: true

publish:
  batch_size: 10
  item_delay_millis: 500
  call_timeout_seconds: 8

sync:
  batch_size: 30
  match_window: 15
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "https://us5.api.mailchimp.com/3.0", cfg.Mailchimp.BaseURL)
	assert.Equal(t, "abc123", cfg.Mailchimp.ListID)
	assert.Equal(t, 45, cfg.Mailchimp.TimeoutSeconds)
	assert.True(t, cfg.Mailchimp.Enabled)

	assert.Equal(t, 40, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)

	assert.Equal(t, 10, cfg.Publish.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Publish.ItemDelay())
	assert.Equal(t, 8*time.Second, cfg.Publish.CallTimeout())

	assert.Equal(t, 30, cfg.Sync.BatchSize)
	assert.Equal(t, 15, cfg.Sync.MatchWindow)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://localhost/comms"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "https://us1.api.mailchimp.com/3.0", cfg.Mailchimp.BaseURL)
	assert.Equal(t, 30, cfg.Mailchimp.TimeoutSeconds)
	assert.Equal(t, "https://graph.facebook.com", cfg.Graph.BaseURL)
	assert.Equal(t, "v21.0", cfg.Graph.APIVersion)
	assert.Equal(t, 25, cfg.Publish.BatchSize)
	assert.Equal(t, "@every 5m", cfg.Publish.CronSchedule)
	assert.Equal(t, 10*time.Second, cfg.Publish.CallTimeout())
	assert.Equal(t, 50, cfg.Sync.BatchSize)
	assert.Equal(t, 20, cfg.Sync.MatchWindow)
	assert.Equal(t, 20*time.Second, cfg.Sync.CallTimeout())
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file-host/comms"
mailchimp:
  list_id: "file-list"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	os.Setenv("DATABASE_URL", "postgres://env-host/comms")
	os.Setenv("MAILCHIMP_LIST_ID", "env-list")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("MAILCHIMP_LIST_ID")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/comms", cfg.Database.URL)
	assert.Equal(t, "env-list", cfg.Mailchimp.ListID)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	cfg := MailchimpConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.Timeout())
}
