package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aurora.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Renderer.FenceTimeout())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := write(t, `
[window]
width = 800
height = 600

[renderer]
frames_in_flight = 3
fence_timeout_ms = 0
hot_reload = false

[log]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(800), cfg.Window.Width)
	assert.Equal(t, "Aurora", cfg.Window.Title)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, time.Duration(0), cfg.Renderer.FenceTimeout())
	assert.False(t, cfg.Renderer.HotReload)
	assert.Equal(t, "shaders/bin", cfg.Renderer.ShaderDir)
	assert.Equal(t, core.LogLevelDebug, cfg.Log.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(write(t, "[renderer]\nframes = 2\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(write(t, "[renderer]\nframes_in_flight = 0\n[log]\nlevel = \"loud\"\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "frames_in_flight")
	assert.Contains(t, err.Error(), "loud")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveThenLoad(t *testing.T) {
	cfg := Default()
	cfg.Window.Title = "testbed"
	cfg.Renderer.Trace = true
	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestShippedConfigsLoad(t *testing.T) {
	for _, name := range []string{"aurora.toml", "aurora.debug.toml"} {
		cfg, err := Load(filepath.Join("..", "..", name))
		require.NoError(t, err, name)
		assert.Equal(t, "shaders/bin", cfg.Renderer.ShaderDir, name)
	}
}
