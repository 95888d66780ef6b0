package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidx/obsidx/internal/config"
)

func TestWatcherTriggersAfterWrite(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, config.Default(), 50*time.Millisecond)

	triggered := make(chan struct{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			select {
			case triggered <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	// Give the watch set a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("# Note\n"), 0o644))

	select {
	case <-triggered:
	case <-ctx.Done():
		t.Fatal("watcher did not trigger after file write")
	}

	cancel()
	assert.Error(t, <-done, "Run returns the context error on shutdown")
}

func TestWatcherIgnoresNonNoteFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, config.Default(), 50*time.Millisecond)

	triggered := make(chan struct{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go func() {
		_ = w.Run(ctx, func(context.Context) error {
			select {
			case triggered <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte{1, 2, 3}, 0o644))

	select {
	case <-triggered:
		t.Fatal("watcher triggered for a non-note file")
	case <-ctx.Done():
	}
}

func TestWatcherDefaultDebounce(t *testing.T) {
	w := NewWatcher(t.TempDir(), config.Default(), 0)
	assert.Equal(t, DefaultDebounceWindow, w.debounce)
}
