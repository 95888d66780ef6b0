// Package version persists what has been indexed for a vault and detects
// what changed since. The version file is the single source of truth for
// "last indexed state"; its absence means "never indexed" and is never an
// error.
package version

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio"

	oerrors "github.com/obsidx/obsidx/internal/errors"
)

// VersionFileName is the version file within the vault data directory.
const VersionFileName = "version.json"

// Info is the persisted indexing state of one vault.
type Info struct {
	// LastSnapshotID is the history snapshot the index was built from
	// (empty when the vault has no history).
	LastSnapshotID string

	// IndexedAt is when the last successful run finished.
	IndexedAt time.Time

	// FileHashes maps vault-relative path to the SHA-1 hex digest of the
	// file's raw bytes as of the last successful run. Never contains
	// entries for files deleted as of that run.
	FileHashes map[string]string

	TotalDocuments int
	TotalChunks    int
}

// versionFile is the on-disk JSON shape. fileHashes is stored as ordered
// [path, hash] pairs sorted by path so the file diffs cleanly.
type versionFile struct {
	LastSnapshotID string      `json:"lastSnapshotId"`
	IndexedAt      string      `json:"indexedAt"`
	FileHashes     [][2]string `json:"fileHashes"`
	TotalDocuments int         `json:"totalDocuments"`
	TotalChunks    int         `json:"totalChunks"`
}

// Tracker loads and saves the version file for one vault data directory.
type Tracker struct {
	path string
}

// NewTracker binds a tracker to the data directory (e.g. <vault>/.obsidx).
func NewTracker(dataDir string) *Tracker {
	return &Tracker{path: filepath.Join(dataDir, VersionFileName)}
}

// Path returns the version file location.
func (t *Tracker) Path() string {
	return t.path
}

// Load reads the stored version. A missing, unreadable, or corrupt file is
// reported as nil (never indexed); only the caller decides whether that
// forces a full run.
func (t *Tracker) Load() *Info {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("version file unreadable, treating as absent",
				slog.String("path", t.path), slog.String("error", err.Error()))
		}
		return nil
	}

	var vf versionFile
	if err := json.Unmarshal(data, &vf); err != nil {
		slog.Warn("version file corrupt, treating as absent",
			slog.String("path", t.path), slog.String("error", err.Error()))
		return nil
	}

	info := &Info{
		LastSnapshotID: vf.LastSnapshotID,
		FileHashes:     make(map[string]string, len(vf.FileHashes)),
		TotalDocuments: vf.TotalDocuments,
		TotalChunks:    vf.TotalChunks,
	}
	for _, pair := range vf.FileHashes {
		info.FileHashes[pair[0]] = pair[1]
	}
	if ts, err := time.Parse(time.RFC3339, vf.IndexedAt); err == nil {
		info.IndexedAt = ts
	}
	return info
}

// Save writes the version atomically (write to temp, rename into place).
func (t *Tracker) Save(info *Info) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return oerrors.IOError("create data directory", err)
	}

	indexedAt := info.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now().UTC()
	}

	pairs := make([][2]string, 0, len(info.FileHashes))
	for path, hash := range info.FileHashes {
		pairs = append(pairs, [2]string{path, hash})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	data, err := json.MarshalIndent(versionFile{
		LastSnapshotID: info.LastSnapshotID,
		IndexedAt:      indexedAt.UTC().Format(time.RFC3339),
		FileHashes:     pairs,
		TotalDocuments: info.TotalDocuments,
		TotalChunks:    info.TotalChunks,
	}, "", "  ")
	if err != nil {
		return oerrors.InternalError("marshal version file", err)
	}

	if err := renameio.WriteFile(t.path, data, 0o644); err != nil {
		return oerrors.IOError("write version file", err)
	}
	return nil
}

// HashContent digests raw file bytes the way fileHashes records them.
func HashContent(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
