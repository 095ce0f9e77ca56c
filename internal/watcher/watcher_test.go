package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsSettledFile(t *testing.T) {
	dir := t.TempDir()

	w, err := New([]string{dir}, "*.log", 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.Len(t, w.Dirs(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("2024-01-01 INFO hello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case got := <-w.Ready:
		want, _ := filepath.Abs(path)
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settled file")
	}

	select {
	case got := <-w.Ready:
		t.Fatalf("unexpected file %s", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherNoDirectories(t *testing.T) {
	t.Parallel()

	_, err := New([]string{filepath.Join(t.TempDir(), "missing", "*")}, "", time.Second, nil)
	require.ErrorIs(t, err, ErrNoDirectories)
}

func TestWatcherPending(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w := &Watcher{match: "*.log", settle: time.Second, pending: make(map[string]time.Time)}
	start := time.Now()

	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Create}, start)
	w.handle(fsnotify.Event{Name: filepath.Join(dir, "b.tmp"), Op: fsnotify.Create}, start)
	assert.Len(t, w.pending, 1)

	// Still being written.
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write}, start.Add(900*time.Millisecond))
	assert.Empty(t, w.due(start.Add(time.Second)))
	assert.Equal(t, []string{path}, w.due(start.Add(2*time.Second)))
	assert.Empty(t, w.pending)

	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write}, start)
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Remove}, start)
	assert.Empty(t, w.due(start.Add(time.Hour)))
}
