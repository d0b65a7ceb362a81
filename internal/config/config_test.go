package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsWhenMissing(t *testing.T) {
	home := t.TempDir()
	cfg, err := New(home)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.File.Version)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.File.Backend.BaseURL)
	assert.Equal(t, ProviderCommand, cfg.File.Location.Provider)
	assert.Equal(t, 10*time.Second, cfg.File.Location.Timeout)
	assert.Equal(t, 3*time.Minute, cfg.File.Backend.UploadTimeout)
	assert.Equal(t, 10*time.Second, cfg.RecordDuration())
}

func TestNewParsesYaml(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, InitFieldproofDir(home))

	configYAML := strings.TrimSpace(`
version: 1
backend:
  base_url: https://audit.example.com/
  upload_timeout: 5m
location:
  provider: static
  static:
    lat: 19.0760
    long: 72.8777
    accuracy: 15
capture:
  video_device: /dev/video2
  duration_seconds: 12
dashboard:
  refresh_interval: 3s
`)
	path := filepath.Join(home, FieldproofDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o644))

	cfg, err := New(home)
	require.NoError(t, err)

	// Trailing slash is trimmed during normalization.
	assert.Equal(t, "https://audit.example.com", cfg.File.Backend.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.File.Backend.UploadTimeout)
	assert.Equal(t, ProviderStatic, cfg.File.Location.Provider)
	require.NotNil(t, cfg.File.Location.Static)
	assert.Equal(t, 19.0760, cfg.File.Location.Static.Lat)
	assert.Equal(t, "/dev/video2", cfg.File.Capture.VideoDevice)
	assert.Equal(t, 12*time.Second, cfg.RecordDuration())
	assert.Equal(t, 3*time.Second, cfg.File.Dashboard.RefreshInterval)
}

func TestNewRejectsInvalidProvider(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, InitFieldproofDir(home))
	path := filepath.Join(home, FieldproofDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nlocation:\n  provider: gps-magic\n"), 0o644))

	_, err := New(home)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location.provider")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FIELDPROOF_BACKEND_URL", "https://override.example.com")
	t.Setenv("FIELDPROOF_RECORD_SECONDS", "7")

	cfg, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", cfg.File.Backend.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.RecordDuration())
}

func TestInitFieldproofDirWritesDefaultConfig(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, InitFieldproofDir(home))

	data, err := os.ReadFile(filepath.Join(home, FieldproofDir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url")

	// Re-running must not clobber an existing config.
	require.NoError(t, os.WriteFile(filepath.Join(home, FieldproofDir, "config.yaml"), []byte("version: 1\n"), 0o644))
	require.NoError(t, InitFieldproofDir(home))
	data, err = os.ReadFile(filepath.Join(home, FieldproofDir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}
