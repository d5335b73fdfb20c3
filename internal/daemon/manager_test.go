package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryMismatch(t *testing.T) {
	path, modTime, err := CurrentBinaryInfo()
	require.NoError(t, err)
	info := Info{BinaryPath: path, BinaryModTime: modTime}
	mgr := Manager{}
	assert.False(t, mgr.binaryMismatch(info), "current binary")

	info.BinaryModTime = modTime.Add(-time.Minute)
	assert.True(t, mgr.binaryMismatch(info), "mod time")

	info.BinaryPath = filepath.Join(os.TempDir(), "nonexistent-binary")
	info.BinaryModTime = modTime
	assert.True(t, mgr.binaryMismatch(info), "path")
}

func TestIsRunningCleansStaleInfo(t *testing.T) {
	mgr := Manager{ProfileDir: t.TempDir()}
	require.NoError(t, os.MkdirAll(filepath.Join(mgr.ProfileDir, "work"), 0o755))

	running, _, err := mgr.IsRunning("work")
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, mgr.SaveInfo("work", Info{PID: -1, Socket: mgr.SocketPath("work")}))
	running, _, err = mgr.IsRunning("work")
	require.NoError(t, err)
	assert.False(t, running)
	assert.NoFileExists(t, mgr.InfoPath("work"))

	infos, err := mgr.RunningProfiles()
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.Equal(t, filepath.Join(mgr.ProfileDir, "work", "daemon.log"), mgr.LogPath("work"))
}
