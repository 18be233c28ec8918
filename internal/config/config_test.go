package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
database:
  url: postgres://localhost/release_orders
mailer:
  base_url: http://mailer:3000
mailboxes:
  department: dept@example.com
  fao: fao@example.com
invoice_routing:
  default_mailbox: assistant@example.com
  rules:
    - mailbox: print@example.com
      vendors: [Daily Herald, Morning Post]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
}

func TestLoadFromFileWithDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/release_orders", cfg.Database.URL)
	assert.Equal(t, "http://mailer:3000", cfg.Mailer.BaseURL)
	assert.Equal(t, "dept@example.com", cfg.Mailboxes.Department)
	assert.Equal(t, "fao@example.com", cfg.Mailboxes.FAO)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 3, cfg.Mailer.MaxAttempts)
	assert.Equal(t, "notifications.dipr", cfg.NATS.SubjectPrefix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.GRPC.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9100")
	t.Setenv("DATABASE_URL", "postgres://db/other")
	t.Setenv("FLUTTER_API_KEY", "secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres://db/other", cfg.Database.URL)
	assert.Equal(t, "secret", cfg.Security.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "mailer:\n  base_url: http://mailer\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestMailboxFor(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	tests := []struct {
		vendor string
		want   string
	}{
		{"Daily Herald", "print@example.com"},
		{"  morning post ", "print@example.com"},
		{"Evening Star", "assistant@example.com"},
		{"", "assistant@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.InvoiceRouting.MailboxFor(tt.vendor))
		})
	}
}
