package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5, cfg.Estimation.SmoothingWindow)
	assert.Equal(t, 3, cfg.Estimation.Iterations)
	assert.Positive(t, cfg.Estimation.NumCores)
	assert.Equal(t, 1.0, cfg.Prewhitening.ScaleFactor)
	assert.Equal(t, 8, cfg.Phantom.Coils)
	assert.True(t, cfg.Output.SaveMaps)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Estimation.SmoothingWindow = 7
	cfg.Prewhitening.ScaleFactor = 2.5
	cfg.Phantom.Coils = 4
	cfg.Output.Dir = "maps"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "estimation:\n  smoothingWindow: 9\n"
	require.NoError(t, os.WriteFile(path, []byte(partial), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Estimation.SmoothingWindow)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Estimation.Iterations)
	assert.Equal(t, 1.0, cfg.Prewhitening.ScaleFactor)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("estimation: ["), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
