package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/obsidx/obsidx/internal/config"
)

// DefaultDebounceWindow coalesces editor save bursts (Obsidian writes a
// note on every keystroke pause) into one incremental run.
const DefaultDebounceWindow = 2 * time.Second

// Watcher observes the vault and triggers incremental runs after file
// activity settles. Events are not tracked per path: any relevant event
// arms a debounce timer, and when it fires the change detector works out
// what actually needs reprocessing.
type Watcher struct {
	root     string
	debounce time.Duration

	extensions []string
	excluded   map[string]struct{}
}

// NewWatcher creates a watcher for the vault root using the vault's
// file-matching configuration.
func NewWatcher(root string, cfg *config.Config, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	excluded := make(map[string]struct{}, len(cfg.Vault.ExcludeDirs))
	for _, dir := range cfg.Vault.ExcludeDirs {
		excluded[dir] = struct{}{}
	}
	return &Watcher{
		root:       root,
		debounce:   debounce,
		extensions: cfg.Vault.Extensions,
		excluded:   excluded,
	}
}

// Run watches until ctx is cancelled, invoking trigger after each
// debounced burst of file activity. Trigger errors are logged, not
// fatal: a failed incremental run must not stop the watch loop.
func (w *Watcher) Run(ctx context.Context, trigger func(context.Context) error) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.watchTree(fsw, w.root); err != nil {
		return err
	}

	slog.Info("vault watcher started",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce))

	// The timer is armed on demand; a stopped timer whose channel was
	// drained is equivalent to "no pending run".
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("file watcher closed unexpectedly")
			}
			if !w.relevant(fsw, event) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed unexpectedly")
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if err := trigger(ctx); err != nil {
				slog.Warn("incremental run failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// relevant filters events down to note files and keeps the directory
// watch set current as folders appear.
func (w *Watcher) relevant(fsw *fsnotify.Watcher, event fsnotify.Event) bool {
	name := filepath.Base(event.Name)

	if event.Op.Has(fsnotify.Create) {
		// New directories must be watched before anything inside them
		// changes. fsnotify gives no recursive mode.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.isWatchableDir(event.Name) {
				if err := w.watchTree(fsw, event.Name); err != nil {
					slog.Warn("failed to watch new directory",
						slog.String("path", event.Name),
						slog.String("error", err.Error()))
				}
			}
			return false
		}
	}

	if _, excluded := w.excluded[name]; excluded {
		return false
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	for _, want := range w.extensions {
		if ext == strings.ToLower(want) {
			return event.Op.Has(fsnotify.Create) ||
				event.Op.Has(fsnotify.Write) ||
				event.Op.Has(fsnotify.Remove) ||
				event.Op.Has(fsnotify.Rename)
		}
	}
	return false
}

// watchTree adds path and every non-excluded subdirectory to the watch
// set.
func (w *Watcher) watchTree(fsw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != path {
			if _, excluded := w.excluded[name]; excluded {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}
		return fsw.Add(p)
	})
}

func (w *Watcher) isWatchableDir(path string) bool {
	name := filepath.Base(path)
	if _, excluded := w.excluded[name]; excluded {
		return false
	}
	return !strings.HasPrefix(name, ".")
}
