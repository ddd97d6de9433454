package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDefault_LoadsCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, CreateDefault(path, "https://vault.example.com"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://vault.example.com", cfg.ServerURL)
	assert.Equal(t, defaultParallelUploads, cfg.Upload.ParallelUploads)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(configFilePermissions), info.Mode().Perm())
}

func TestSetTopLevelKey_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, CreateDefault(path, "http://localhost:8080"))

	require.NoError(t, SetTopLevelKey(path, "server_url", "https://new.example.com"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com", cfg.ServerURL)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("server_url =")))
}

func TestSetTopLevelKey_InsertsBeforeFirstSection(t *testing.T) {
	path := writeTestConfig(t, "# mine\n\n[upload]\nencrypt = true\n")

	require.NoError(t, SetTopLevelKey(path, "frontend_url", "https://app.example.com"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.FrontendURL)
	assert.True(t, cfg.Upload.Encrypt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# mine")
}

func TestFormatTOMLValue(t *testing.T) {
	assert.Equal(t, "true", formatTOMLValue("true"))
	assert.Equal(t, "42", formatTOMLValue("42"))
	assert.Equal(t, `"http://x"`, formatTOMLValue("http://x"))
}
