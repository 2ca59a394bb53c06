package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", cfg.Runtime.BaseURL)
	assert.Equal(t, 18960, cfg.Gateway.Port)
	assert.Equal(t, "pretty", cfg.Logging.ConsoleStyle)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runtime:
  model: llama3.2:3b
gateway:
  port: 9000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:3b", cfg.Runtime.Model)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	// Unset fields keep their defaults.
	assert.Equal(t, "http://localhost:11434", cfg.Runtime.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MINDLY_RUNTIME_MODEL", "qwen2.5:7b")
	t.Setenv("MINDLY_GATEWAY_PORT", "7777")
	t.Setenv("MINDLY_LOG_LEVEL", "DEBUG")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", cfg.Runtime.Model)
	assert.Equal(t, 7777, cfg.Gateway.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSensitiveFieldExpansion(t *testing.T) {
	t.Setenv("TEST_CLOUD_KEY", "sk-123")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cloud:
  apiKey: ${TEST_CLOUD_KEY}
gateway:
  auth:
    token: ${UNSET_VAR_XYZ}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-123", cfg.Cloud.APIKey)
	// Unset variables are left as-is rather than blanked.
	assert.Equal(t, "${UNSET_VAR_XYZ}", cfg.Gateway.Auth.Token)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))

	cfg.Gateway.Port = 99999
	cfg.Gateway.Bind = "everywhere"
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	require.Len(t, issues, 3)
	assert.Equal(t, "gateway.port", issues[0].Path)
}

func TestResolvePathsHonorsHomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MINDLY_HOME", dir)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(dir, "mindly.db"), p.DB)

	require.NoError(t, p.EnsureDirs())
	info, err := os.Stat(p.Logs)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
