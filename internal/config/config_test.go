package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
profile_dir = "/srv/domq"
default_ttl = "1h"
log_level = "debug"

[layout]
viewport_width = 800
char_width = 7

[snapshot]
keep = 2
`), 0o644))
	t.Setenv("DOMQ_CONFIG", path)
	t.Setenv("DOMQ_PROFILE_DIR", "")
	t.Setenv("DOMQ_DEFAULT_TTL", "")
	t.Setenv("DOMQ_LOG_LEVEL", "warn")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "/srv/domq", cfg.ProfileDir)
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, Layout{ViewportWidth: 800, CharWidth: 7, LineHeight: 18}, cfg.Layout)
	assert.Equal(t, Snapshot{FrameDepth: 4, Keep: 2}, cfg.Snapshot)
}

func TestOverridesWin(t *testing.T) {
	t.Setenv("DOMQ_CONFIG", "")
	t.Setenv("DOMQ_PROFILE_DIR", "/from/env")
	t.Setenv("DOMQ_DEFAULT_TTL", "2h")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.ProfileDir)
	assert.Equal(t, 2*time.Hour, cfg.DefaultTTL)

	cfg, err = Load("/from/flag", "30m")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.ProfileDir)
	assert.Equal(t, 30*time.Minute, cfg.DefaultTTL)
}

func TestBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("profile_dir = ["), 0o644))
	t.Setenv("DOMQ_CONFIG", path)

	_, err := Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
