package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8032", cfg.Agent.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.True(t, cfg.Auth.Cache.Enabled)
	assert.False(t, cfg.Tenant.MultiTenant())
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	t.Setenv("GATEWAY_TEST_KEY", "fd34f6365cef4ae0942e9d847bd22e96")
	t.Setenv("ACAPY_TIMEOUT", "3s")
	path := writeConfig(t, `
agent:
  base_url: http://localhost:8021/
  rate_limit: 5
tenant:
  id: 8f719188-a40b-43f2-bb96-56e28ba1dc53
  api_key: ${GATEWAY_TEST_KEY}
invitation:
  base_url: https://92ce-80-40-22-48.ngrok-free.app
server:
  transport: sse
  address: ":9000"
`)

	cfg, err := LoadConfig(path, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8021", cfg.Agent.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 3*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, 5.0, cfg.Agent.RateLimit)
	assert.True(t, cfg.Tenant.MultiTenant())
	assert.Equal(t, "fd34f6365cef4ae0942e9d847bd22e96", cfg.Tenant.APIKey.Value())
	assert.Equal(t, "https://92ce-80-40-22-48.ngrok-free.app", cfg.Invitation.BaseURL)
	assert.Equal(t, "sse", cfg.Server.Transport)
	assert.Equal(t, ":9000", cfg.Server.Address)
}

func TestLoadConfig_TenantEnvOverrides(t *testing.T) {
	t.Setenv("TENANT_ID", "tenant-1")
	t.Setenv("API_KEY", " key-from-env ")

	cfg, err := LoadConfig("", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", cfg.Tenant.ID)
	assert.Equal(t, "key-from-env", cfg.Tenant.APIKey.Value())
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"bad base url":       "agent:\n  base_url: ftp://agent\n",
		"half tenant":        "tenant:\n  id: only-id\n",
		"bad transport":      "server:\n  transport: websocket\n",
		"bad redis url":      "auth:\n  cache:\n    redis_url: http://cache\n",
		"negative timeout":   "agent:\n  timeout: -1s\n",
		"bad browser url":    "ledger:\n  browser_url: not a url\n",
		"empty invitation":   "invitation:\n  base_url: \"\"\n",
		"malformed yaml":     "agent: [",
		"negative ratelimit": "agent:\n  rate_limit: -2\n",
		"bad remote write":   "metrics:\n  remote_write:\n    url: udp://prom\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body), quietLogger())
			assert.Error(t, err)
		})
	}
}

func TestSecretNeverPrints(t *testing.T) {
	s := Secret("fd34f6365cef4ae0942e9d847bd22e96")
	assert.Equal(t, "fd34****", fmt.Sprintf("%s", s))
	assert.Equal(t, "fd34****", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", TenantConfig{ID: "t", APIKey: s}), "6365cef")
}

func TestSaveConfig_MasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tenant = TenantConfig{ID: "tenant-1", APIKey: "fd34f6365cef4ae0942e9d847bd22e96"}

	path := filepath.Join(t.TempDir(), "nested", "out.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "6365cef")

	var roundTrip AppConfig
	require.NoError(t, yaml.Unmarshal(data, &roundTrip))
	assert.Equal(t, "tenant-1", roundTrip.Tenant.ID)
	assert.Equal(t, 10*time.Second, roundTrip.Agent.Timeout)
}
