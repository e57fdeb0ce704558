package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Forms.DraftDelay)
	assert.Equal(t, 2*time.Hour, cfg.Forms.SessionIdle)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
storage:
  driver: memory
auth:
  token_ttl: 1h
  admin_emails: [ops@example.com]
forms:
  draft_delay: 250ms
logging:
  format: text
`), 0o644))
	t.Setenv("COMPARAHOLIC_ADMIN_EMAILS", "a@example.com, b@example.com")
	t.Setenv("COMPARAHOLIC_COOKIE_SECURE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Forms.DraftDelay)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Auth.AdminEmails)
	assert.True(t, cfg.Cookies.Secure)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: postgres\nlogging:\n  format: xml\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
	assert.Contains(t, err.Error(), "logging.format")

	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Server.CORSOrigins = []string{"https://app.example.com"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.CORSOrigins, got.Server.CORSOrigins)
}
