package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string, fired chan struct{}) *Watcher {
	t.Helper()
	w, err := New(dir, func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	return w
}

func waitFired(t *testing.T, fired chan struct{}) {
	t.Helper()
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never triggered")
	}
}

func TestWatcherTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 1)
	startWatcher(t, dir, fired)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("# Note"), 0o644))
	waitFired(t, fired)
}

func TestWatcherIgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 1)
	startWatcher(t, dir, fired)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte{0, 1}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("x"), 0o644))

	select {
	case <-fired:
		t.Fatal("watcher triggered for irrelevant files")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w, err := New(dir, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))

	// A burst of writes inside one debounce window yields one pass
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("rev"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestWatcherSeesNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 1)
	startWatcher(t, dir, fired)

	sub := filepath.Join(dir, "ops")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFired(t, fired)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "runbook.md"), []byte("# Runbook"), 0o644))
	waitFired(t, fired)
}

func TestWatcherStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
