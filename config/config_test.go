package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightdesk/nightdesk/logger"
)

func TestLoadFromFile_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightdesk.toml")

	cfg, err := LoadFromFile(path, logger.NewTest())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Engine.JobInterval())
	assert.Equal(t, 10*time.Second, cfg.Engine.ReminderInterval())
	assert.Equal(t, time.Minute, cfg.Engine.SourceInterval())
	assert.Equal(t, 5*time.Minute, cfg.Engine.WebhookInterval())
	assert.Equal(t, time.Hour, cfg.Engine.CleanupInterval())
	assert.Equal(t, 30*24*time.Hour, cfg.Engine.Retention())
	assert.Equal(t, 30*time.Second, cfg.Engine.HandlerTimeout())
	assert.Equal(t, 256, cfg.Engine.QueueSize)
	assert.Equal(t, "default", cfg.Engine.SubjectID)
	assert.Equal(t, 8957, cfg.Server.Port)
	assert.Equal(t, "https://api.github.com", cfg.Webhook.ProviderBaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Database.Path)
}

func TestLoadFromFile_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightdesk.toml")
	content := `
[database]
path = "/tmp/nd-test.db"

[engine]
job_interval_seconds = 2
queue_size = 16

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path, logger.NewTest())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/nd-test.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Engine.JobInterval())
	assert.Equal(t, 16, cfg.Engine.QueueSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep defaults.
	assert.Equal(t, 10, cfg.Engine.ReminderIntervalSeconds)
}

func TestLoadFromFile_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightdesk.toml")
	content := `
[engine]
handler_timeout_seconds = 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFromFile(path, logger.NewTest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler_timeout_seconds")
}

func TestValidate_PortRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 99999\n"), 0o644))

	_, err := LoadFromFile(path, logger.NewTest())
	require.Error(t, err)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nightdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	w, err := NewWatcher(path, logger.NewTest())
	require.NoError(t, err)
	defer w.Stop()

	reloaded := make(chan *Config, 1)
	w.OnReload(func(c *Config) error {
		select {
		case reloaded <- c:
		default:
		}
		return nil
	})
	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback not invoked")
	}
}
