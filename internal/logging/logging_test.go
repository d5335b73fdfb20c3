package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	log, err := New(Options{Level: "debug", Paths: []string{path}})
	require.NoError(t, err)
	log.Named("daemon").Debug("started", zap.String("profile", "work"))
	require.NoError(t, log.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(b))), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "daemon", entry["logger"])
	assert.Equal(t, "started", entry["msg"])
	assert.Equal(t, "work", entry["profile"])
}

func TestNewFiltersByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	log, err := New(Options{Level: "warn", Paths: []string{path}})
	require.NoError(t, err)
	log.Info("quiet")
	require.NoError(t, log.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	assert.Error(t, err)
}
