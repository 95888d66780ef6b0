// Package index orchestrates full and incremental indexing runs: it
// drives scanning, parsing, chunking, embedding, and storage over the
// vault's files and advances the version snapshot when a run completes
// without a fatal error.
package index

import (
	"time"
)

// FileStatus classifies the outcome of one file within a run.
type FileStatus string

const (
	// FileIndexed means the file was chunked and stored.
	FileIndexed FileStatus = "indexed"
	// FileSkipped means the file was intentionally not processed
	// (unchanged content, hidden frontmatter).
	FileSkipped FileStatus = "skipped"
	// FileFailed means processing the file errored; the Err field
	// carries the stage-tagged cause.
	FileFailed FileStatus = "failed"
	// FileDeleted means the file is gone from the vault and its stored
	// chunks were removed.
	FileDeleted FileStatus = "deleted"
)

// FileResult records what happened to one file.
type FileResult struct {
	Path   string
	Status FileStatus

	// Chunks is the number of chunks stored for the file.
	Chunks int

	// Reason explains a skip ("unchanged", "hidden").
	Reason string

	// Err is set when Status is FileFailed.
	Err error
}

// IndexingResult summarizes a full run. A run never silently drops a
// file: every scanned file appears in Files with its outcome.
type IndexingResult struct {
	// RunID uniquely identifies this run in logs.
	RunID string

	StartedAt time.Time
	Duration  time.Duration

	Indexed int
	Skipped int
	Failed  int

	// TotalChunks is the number of chunks stored during this run.
	TotalChunks int

	// Warnings aggregates non-fatal chunker warnings across files.
	Warnings []string

	Files []FileResult
}

// Errored reports whether any file failed.
func (r *IndexingResult) Errored() bool {
	return r.Failed > 0
}

// IncrementalResult summarizes an incremental run.
type IncrementalResult struct {
	IndexingResult

	// Change summary as reported by the detector.
	Added    int
	Modified int
	Deleted  int
	Renamed  int

	// FullFallback is true when the run abandoned incremental
	// processing and performed a full index instead.
	FullFallback bool

	// FallbackReason explains the fallback ("no prior version",
	// "change ceiling exceeded", "detector failed").
	FallbackReason string
}
