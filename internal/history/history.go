// Package history abstracts the version-control questions the change
// detector asks: what snapshot is current, is the tree clean, and what
// changed between two snapshots. Callers must treat every error as a signal
// to fall back to content-hash comparison.
package history

import "context"

// Status classifies one changed file.
type Status string

const (
	StatusAdded    Status = "added"
	StatusModified Status = "modified"
	StatusDeleted  Status = "deleted"
	StatusRenamed  Status = "renamed"
)

// Change is one file-level difference reported by a provider. Paths are
// relative to the vault root, forward-slash separated. OldPath is set only
// for renames.
type Change struct {
	Path    string
	Status  Status
	OldPath string
}

// Provider answers version-control queries for a vault. Implementations
// must be safe for concurrent use.
type Provider interface {
	// CurrentSnapshotID returns an opaque identifier for the current
	// state of the vault's history (e.g. a commit hash).
	CurrentSnapshotID(ctx context.Context) (string, error)

	// IsClean reports whether the working tree has no uncommitted changes.
	IsClean(ctx context.Context) (bool, error)

	// UncommittedChanges lists working-tree changes not yet part of any
	// snapshot.
	UncommittedChanges(ctx context.Context) ([]Change, error)

	// DiffBetween lists the file changes from one snapshot to another.
	DiffBetween(ctx context.Context, fromID, toID string) ([]Change, error)
}
