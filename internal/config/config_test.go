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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_MONGODB_URI", "mongodb://localhost:27017")

	path := writeConfig(t, `
organization:
  number: "991825827"
  fallbackSender: "974720760"
  noarkType: p360

channels:
  dpo:
    enabled: true

signing:
  mode: file
  file:
    keyDir: /etc/keys

storage:
  mongodb:
    uri: ${TEST_MONGODB_URI}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "991825827", cfg.Organization.Number)
	assert.Equal(t, "p360", cfg.Organization.NoarkType)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.MongoDB.URI)
	assert.Equal(t, "integrasjonspunkt", cfg.Storage.MongoDB.Database)
	assert.Equal(t, 10*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 10, cfg.Queue.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Reconciler.PollInterval)
	assert.Equal(t, "edelivery.difi.no", cfg.Registry.Domain)
	assert.True(t, cfg.Channels.DPO.Enabled)
	assert.False(t, cfg.Channels.DPF.Enabled)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing org number",
			"signing:\n  mode: file\n  file:\n    keyDir: /etc/keys\n",
			"organization.number",
		},
		{
			"org number with bad check digit",
			"organization:\n  number: \"991825828\"\nsigning:\n  mode: file\n  file:\n    keyDir: /etc/keys\n",
			"organization.number",
		},
		{
			"fallback sender with bad check digit",
			"organization:\n  number: \"991825827\"\n  fallbackSender: \"991825828\"\nsigning:\n  mode: file\n  file:\n    keyDir: /etc/keys\n",
			"organization.fallbackSender",
		},
		{
			"bad signing mode",
			"organization:\n  number: \"991825827\"\nsigning:\n  mode: vault\n",
			"signing.mode",
		},
		{
			"pkcs11 without module path",
			"organization:\n  number: \"991825827\"\nsigning:\n  mode: pkcs11\n",
			"modulePath",
		},
		{
			"enabled channel without endpoint",
			"organization:\n  number: \"991825827\"\nsigning:\n  mode: file\n  file:\n    keyDir: /k\nchannels:\n  dpf:\n    enabled: true\n",
			"channels.dpf.endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
