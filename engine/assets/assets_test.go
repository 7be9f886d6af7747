package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingWatcher_ReportsVisibleChanges(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	changes := make(chan string, 16)

	rw, err := NewRecordingWatcher(dir, func(path string) { changes <- path })
	require.NoError(t, err)
	require.NoError(t, rw.Initialize())
	t.Cleanup(func() { rw.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".scan-1.tmp"), []byte("x"), 0o644))
	target := filepath.Join(dir, "scan-1.scn")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	select {
	case path := <-changes:
		assert.Equal(t, target, path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestRecordingWatcher_CloseStopsLoop(t *testing.T) {
	rw, err := NewRecordingWatcher(t.TempDir(), func(string) {})
	require.NoError(t, err)
	require.NoError(t, rw.Initialize())

	require.NoError(t, rw.Close())
	require.NoError(t, rw.Close())
	rw.Wait()
	assert.Error(t, rw.Initialize())
}

func TestRecordingWatcher_NeedsCallback(t *testing.T) {
	_, err := NewRecordingWatcher(t.TempDir(), nil)
	assert.Error(t, err)
}
