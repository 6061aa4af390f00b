package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	mt := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mt, mt))
}

func TestSweepRemovesOnlyStalePipelineEntries(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "recording-123.mp4")
	fresh := filepath.Join(dir, "recording-456.mp4")
	foreign := filepath.Join(dir, "other.db")
	touch(t, stale, 7*time.Hour)
	touch(t, fresh, time.Minute)
	touch(t, foreign, 48*time.Hour)

	jobDir := filepath.Join(dir, "job-1")
	require.NoError(t, os.Mkdir(jobDir, 0o700))
	touch(t, filepath.Join(jobDir, "recording-1.mp4.chunk000.mp3"), 7*time.Hour)
	old := time.Now().Add(-7 * time.Hour)
	require.NoError(t, os.Chtimes(jobDir, old, old))

	n, err := NewSweeper(dir, 6*time.Hour, time.Hour, nil).Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoFileExists(t, stale)
	assert.NoDirExists(t, jobDir)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)
}

func TestSweepMissingDir(t *testing.T) {
	n, err := NewSweeper(filepath.Join(t.TempDir(), "gone"), time.Hour, time.Hour, nil).Sweep()
	require.NoError(t, err)
	assert.Zero(t, n)
}
