package dirnotify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempWatchDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	// macOS: t.TempDir() resolves under /var/folders, itself a symlink
	// to /private/var/folders; notify.Watch needs the resolved path.
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}

func TestAddRoot_DeliversHintOnWrite(t *testing.T) {
	dir := tempWatchDir(t)

	w := New()
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.AddRoot(context.Background(), "sync-1", dir))
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))

	select {
	case hint := <-w.Hints():
		assert.Equal(t, "sync-1", hint.SyncID)
		assert.Contains(t, hint.Path, "a.txt")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dirty hint")
	}
}

func TestAddRoot_DuplicateSyncIDRejected(t *testing.T) {
	dir := tempWatchDir(t)

	w := New()
	require.NoError(t, w.AddRoot(context.Background(), "sync-1", dir))
	defer w.Close()

	err := w.AddRoot(context.Background(), "sync-1", dir)
	assert.Error(t, err)
}

func TestDebounce_CoalescesBurstIntoOneHint(t *testing.T) {
	dir := tempWatchDir(t)

	w := New()
	w.SetDebounce(100 * time.Millisecond)
	require.NoError(t, w.AddRoot(context.Background(), "sync-1", dir))
	defer w.Close()

	path := filepath.Join(dir, "burst.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
	}

	var hints int
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case <-w.Hints():
			hints++
		case <-time.After(300 * time.Millisecond):
			break loop
		case <-deadline:
			break loop
		}
	}
	assert.Equal(t, 1, hints, "a rapid write burst on one path should coalesce to a single hint")
}

func TestRemoveRoot_StopsFurtherHints(t *testing.T) {
	dir := tempWatchDir(t)

	w := New()
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.AddRoot(context.Background(), "sync-1", dir))

	w.RemoveRoot("sync-1")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "after-remove.txt"), []byte("x"), 0o644))

	select {
	case hint := <-w.Hints():
		t.Fatalf("expected no hint after RemoveRoot, got %+v", hint)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSeverityOf_RemoveIsImmediate(t *testing.T) {
	dir := tempWatchDir(t)

	w := New()
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.AddRoot(context.Background(), "sync-1", dir))
	defer w.Close()

	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// Drain the create/write hint for the file before removing it.
	select {
	case <-w.Hints():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial write hint")
	}

	require.NoError(t, os.Remove(path))

	select {
	case hint := <-w.Hints():
		assert.Equal(t, Immediate, hint.Severity)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remove hint")
	}
}
