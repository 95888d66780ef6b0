package version

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/obsidx/obsidx/internal/history"
	"github.com/obsidx/obsidx/internal/vault"
)

// FileChange is one detected difference between the vault and the last
// indexed state. Transient, produced per run, never persisted.
type FileChange struct {
	Path    string
	Status  history.Status
	OldPath string

	// ContentHash is set when detection already read the file (hash
	// fallback tier); empty for the history-based tiers.
	ContentHash string
}

// Detector decides which files an incremental run must process. It tries
// history-based tiers first and degrades to full content-hash comparison
// whenever the history provider is absent or failing.
type Detector struct {
	scanner  *vault.Scanner
	provider history.Provider
	opts     vault.ScanOptions
}

// NewDetector builds a detector. provider may be nil for vaults without
// version control.
func NewDetector(scanner *vault.Scanner, provider history.Provider, opts vault.ScanOptions) *Detector {
	return &Detector{scanner: scanner, provider: provider, opts: opts}
}

// NeedsReindexing reports whether a run is warranted at all: true when
// nothing was ever indexed or the history has moved past the stored
// snapshot. Without usable history it stays conservative and returns true.
func (d *Detector) NeedsReindexing(ctx context.Context, prior *Info) bool {
	if prior == nil {
		return true
	}
	if d.provider == nil {
		return true
	}

	current, err := d.provider.CurrentSnapshotID(ctx)
	if err != nil {
		return true
	}
	if current != prior.LastSnapshotID {
		return true
	}

	clean, err := d.provider.IsClean(ctx)
	if err != nil {
		return true
	}
	return !clean
}

// DetectChanges returns the files to (re)process plus the current snapshot
// id (empty when no history is available). It never fails outright: every
// history problem degrades to hash comparison.
func (d *Detector) DetectChanges(ctx context.Context, prior *Info) ([]FileChange, string, error) {
	// Tier 1: nothing indexed yet, everything is an add.
	if prior == nil {
		files, err := d.scanner.ListFiles(ctx, d.opts)
		if err != nil {
			return nil, "", err
		}
		changes := make([]FileChange, 0, len(files))
		for _, f := range files {
			changes = append(changes, FileChange{Path: f.Path, Status: history.StatusAdded})
		}
		return changes, d.SnapshotID(ctx), nil
	}

	if d.provider == nil {
		changes, err := d.hashCompare(ctx, prior)
		return changes, "", err
	}

	current, err := d.provider.CurrentSnapshotID(ctx)
	if err != nil {
		slog.Debug("history unavailable, falling back to hash comparison",
			slog.String("error", err.Error()))
		changes, hashErr := d.hashCompare(ctx, prior)
		return changes, "", hashErr
	}

	// Tier 2: history has not moved, only uncommitted edits matter.
	if current == prior.LastSnapshotID {
		uncommitted, err := d.provider.UncommittedChanges(ctx)
		if err != nil {
			changes, hashErr := d.hashCompare(ctx, prior)
			return changes, current, hashErr
		}
		return d.filterChanges(uncommitted), current, nil
	}

	// Tier 3: diff the two snapshots, then layer uncommitted edits on top.
	diff, err := d.provider.DiffBetween(ctx, prior.LastSnapshotID, current)
	if err != nil {
		slog.Debug("snapshot diff failed, falling back to hash comparison",
			slog.String("error", err.Error()))
		changes, hashErr := d.hashCompare(ctx, prior)
		return changes, current, hashErr
	}

	uncommitted, err := d.provider.UncommittedChanges(ctx)
	if err != nil {
		uncommitted = nil
	}

	return d.filterChanges(mergeChanges(diff, uncommitted)), current, nil
}

// hashCompare walks the vault and compares every candidate file's content
// hash against the stored map. Correct for any vault, just slower.
func (d *Detector) hashCompare(ctx context.Context, prior *Info) ([]FileChange, error) {
	files, err := d.scanner.ListFiles(ctx, d.opts)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	seen := make(map[string]struct{}, len(files))

	for _, f := range files {
		seen[f.Path] = struct{}{}

		content, readErr := d.scanner.ReadFile(f.Path)
		if readErr != nil {
			slog.Warn("skipping unreadable file during change detection",
				slog.String("path", f.Path), slog.String("error", readErr.Error()))
			continue
		}
		hash := HashContent(content)

		stored, known := prior.FileHashes[f.Path]
		switch {
		case !known:
			changes = append(changes, FileChange{Path: f.Path, Status: history.StatusAdded, ContentHash: hash})
		case stored != hash:
			changes = append(changes, FileChange{Path: f.Path, Status: history.StatusModified, ContentHash: hash})
		}
	}

	for path := range prior.FileHashes {
		if _, exists := seen[path]; !exists {
			changes = append(changes, FileChange{Path: path, Status: history.StatusDeleted})
		}
	}

	return changes, nil
}

// SnapshotID returns the current history snapshot id, or empty when no
// history is available.
func (d *Detector) SnapshotID(ctx context.Context) string {
	if d.provider == nil {
		return ""
	}
	id, err := d.provider.CurrentSnapshotID(ctx)
	if err != nil {
		return ""
	}
	return id
}

// filterChanges keeps only changes touching files the scanner would index.
func (d *Detector) filterChanges(in []history.Change) []FileChange {
	extensions := d.opts.Extensions
	if len(extensions) == 0 {
		extensions = vault.DefaultExtensions
	}

	var out []FileChange
	for _, c := range in {
		if !matchesExtension(c.Path, extensions) {
			continue
		}
		out = append(out, FileChange{Path: c.Path, Status: c.Status, OldPath: c.OldPath})
	}
	return out
}

// mergeChanges overlays working-tree changes onto a snapshot diff; the
// working tree wins on conflicting paths.
func mergeChanges(diff, uncommitted []history.Change) []history.Change {
	if len(uncommitted) == 0 {
		return diff
	}

	override := make(map[string]struct{}, len(uncommitted))
	for _, c := range uncommitted {
		override[c.Path] = struct{}{}
	}

	merged := make([]history.Change, 0, len(diff)+len(uncommitted))
	for _, c := range diff {
		if _, shadowed := override[c.Path]; !shadowed {
			merged = append(merged, c)
		}
	}
	return append(merged, uncommitted...)
}

func matchesExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
