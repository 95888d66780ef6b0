package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/obsidx/obsidx/internal/chunk"
	"github.com/obsidx/obsidx/internal/config"
	"github.com/obsidx/obsidx/internal/embed"
	oerrors "github.com/obsidx/obsidx/internal/errors"
	"github.com/obsidx/obsidx/internal/history"
	"github.com/obsidx/obsidx/internal/note"
	"github.com/obsidx/obsidx/internal/preserve"
	"github.com/obsidx/obsidx/internal/store"
	"github.com/obsidx/obsidx/internal/token"
	"github.com/obsidx/obsidx/internal/vault"
	"github.com/obsidx/obsidx/internal/version"
)

// Dependencies contains the injected collaborators for an Orchestrator.
type Dependencies struct {
	// Config is the loaded vault configuration (required).
	Config *config.Config

	// Scanner walks the vault (required).
	Scanner *vault.Scanner

	// Store persists chunks (required).
	Store store.Store

	// Embedder produces chunk vectors (required).
	Embedder embed.Embedder

	// Tracker loads and saves the version file (required).
	Tracker *version.Tracker

	// Detector decides what an incremental run must process (required).
	Detector *version.Detector

	// Chunker overrides the default header chunker built from Config.
	Chunker chunk.Chunker

	// Parser overrides the default parser built from Config.
	Parser *note.Parser

	// DataDir is the vault data directory; defaults to
	// config.DataDir(Scanner.Root()). The run lock lives here.
	DataDir string
}

// Orchestrator drives indexing runs. Batches are sequential; files
// within a batch are processed concurrently with bounded fan-out. One
// file's failure never aborts the run unless AbortOnError is set or the
// failure is fatal (store or embedder down for everyone).
type Orchestrator struct {
	cfg      *config.Config
	scanner  *vault.Scanner
	store    store.Store
	embedder embed.Embedder
	tracker  *version.Tracker
	detector *version.Detector
	chunker  chunk.Chunker
	parser   *note.Parser
	dataDir  string
}

// New creates an Orchestrator from its dependencies.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("version tracker is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("change detector is required")
	}

	cfg := deps.Config

	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewHeaderChunker(
			chunk.Options{
				MaxTokens:        cfg.Chunking.MaxTokens,
				OverlapTokens:    cfg.Chunking.OverlapTokens,
				SplitByParagraph: cfg.Chunking.SplitByParagraph,
				NormalizeChars:   cfg.Links.NormalizeChars,
			},
			token.ForStrategy(cfg.Chunking.Estimator, cfg.Chunking.CharsPerToken),
			preserve.New(preserve.Config{
				MinBlockLength:           cfg.Preserve.MinBlockLength,
				MostlyPreservedThreshold: cfg.Preserve.MostlyPreservedThreshold,
			}))
	}

	parser := deps.Parser
	if parser == nil {
		parser = note.NewParser(note.Options{NormalizeChars: cfg.Links.NormalizeChars})
	}

	dataDir := deps.DataDir
	if dataDir == "" {
		dataDir = config.DataDir(deps.Scanner.Root())
	}

	return &Orchestrator{
		cfg:      cfg,
		scanner:  deps.Scanner,
		store:    deps.Store,
		embedder: deps.Embedder,
		tracker:  deps.Tracker,
		detector: deps.Detector,
		chunker:  chunker,
		parser:   parser,
		dataDir:  dataDir,
	}, nil
}

// IndexAll performs a full run over every matching file in the vault.
// The version snapshot is advanced only when the run finishes without a
// fatal error.
func (o *Orchestrator) IndexAll(ctx context.Context) (*IndexingResult, error) {
	lock, err := version.AcquireLock(o.dataDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	return o.indexAll(ctx)
}

func (o *Orchestrator) indexAll(ctx context.Context) (*IndexingResult, error) {
	res := newRun()
	slog.Info("full index started", slog.String("run_id", res.RunID))

	files, err := o.scanner.ListFiles(ctx, o.scanOptions())
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	prior := o.tracker.Load()
	hashes := make(map[string]string, len(paths))

	outcomes, runErr := o.processPaths(ctx, paths, prior)
	mergeOutcomes(res, hashes, outcomes)
	if runErr != nil {
		res.Duration = time.Since(res.StartedAt)
		return res, runErr
	}

	o.removeVanished(ctx, res, prior, paths)

	if err := o.commit(ctx, o.detector.SnapshotID(ctx), hashes); err != nil {
		res.Duration = time.Since(res.StartedAt)
		return res, err
	}

	res.Duration = time.Since(res.StartedAt)
	slog.Info("full index finished",
		slog.String("run_id", res.RunID),
		slog.Int("indexed", res.Indexed),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Int("chunks", res.TotalChunks),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// ReindexChanged performs an incremental run over the files the change
// detector reports. It falls back to a full run when there is no prior
// version, when change detection fails outright, or when the number of
// changes exceeds the configured ceiling.
//
// Renames are reconciled as delete(oldPath) + index(path); the store is
// never asked to move chunks in place.
func (o *Orchestrator) ReindexChanged(ctx context.Context) (*IncrementalResult, error) {
	lock, err := version.AcquireLock(o.dataDir)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	prior := o.tracker.Load()
	if prior == nil {
		return o.fullFallback(ctx, "no prior version")
	}

	changes, snapshot, err := o.detector.DetectChanges(ctx, prior)
	if err != nil {
		slog.Warn("change detection failed, running full index",
			slog.String("error", err.Error()))
		return o.fullFallback(ctx, "change detection failed")
	}

	if ceiling := o.cfg.Indexing.MaxIncrementalChanges; ceiling > 0 && len(changes) > ceiling {
		slog.Info("change ceiling exceeded, running full index",
			slog.Int("changes", len(changes)), slog.Int("ceiling", ceiling))
		return o.fullFallback(ctx, "change ceiling exceeded")
	}

	res := &IncrementalResult{IndexingResult: *newRun()}
	slog.Info("incremental index started",
		slog.String("run_id", res.RunID), slog.Int("changes", len(changes)))

	hashes := make(map[string]string, len(prior.FileHashes))
	for path, hash := range prior.FileHashes {
		hashes[path] = hash
	}

	// Deletions first: removed files and the old side of renames.
	var toProcess []string
	for _, change := range changes {
		switch change.Status {
		case history.StatusDeleted:
			res.Deleted++
			if err := o.removeStale(ctx, change.Path); err != nil {
				res.Failed++
				res.Files = append(res.Files, FileResult{Path: change.Path, Status: FileFailed, Err: err})
				continue
			}
			delete(hashes, change.Path)
			res.Files = append(res.Files, FileResult{Path: change.Path, Status: FileDeleted})
		case history.StatusRenamed:
			res.Renamed++
			if change.OldPath != "" {
				if err := o.removeStale(ctx, change.OldPath); err != nil {
					res.Failed++
					res.Files = append(res.Files, FileResult{Path: change.OldPath, Status: FileFailed, Err: err})
					continue
				}
				delete(hashes, change.OldPath)
				res.Files = append(res.Files, FileResult{Path: change.OldPath, Status: FileDeleted})
			}
			toProcess = append(toProcess, change.Path)
		case history.StatusAdded:
			res.Added++
			toProcess = append(toProcess, change.Path)
		default:
			res.Modified++
			toProcess = append(toProcess, change.Path)
		}
	}

	outcomes, runErr := o.processPaths(ctx, toProcess, prior)
	mergeOutcomes(&res.IndexingResult, hashes, outcomes)
	if runErr != nil {
		res.Duration = time.Since(res.StartedAt)
		return res, runErr
	}

	if err := o.commit(ctx, snapshot, hashes); err != nil {
		res.Duration = time.Since(res.StartedAt)
		return res, err
	}

	res.Duration = time.Since(res.StartedAt)
	slog.Info("incremental index finished",
		slog.String("run_id", res.RunID),
		slog.Int("indexed", res.Indexed),
		slog.Int("deleted", res.Deleted),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (o *Orchestrator) fullFallback(ctx context.Context, reason string) (*IncrementalResult, error) {
	full, err := o.indexAll(ctx)
	if full == nil {
		return nil, err
	}
	res := &IncrementalResult{
		IndexingResult: *full,
		Added:          full.Indexed,
		FullFallback:   true,
		FallbackReason: reason,
	}
	for _, f := range full.Files {
		if f.Status == FileDeleted {
			res.Deleted++
		}
	}
	return res, err
}

// fileOutcome is the per-file result plus the hash to record in the new
// version map (empty when the file must not appear there).
type fileOutcome struct {
	result   FileResult
	hash     string
	warnings []string
}

// processPaths runs the per-file pipeline over paths in sequential
// batches with bounded fan-out inside each batch. Cancellation is
// honored at batch boundaries. The returned error is non-nil only for
// run-fatal conditions (or any file failure when AbortOnError is set).
func (o *Orchestrator) processPaths(ctx context.Context, paths []string, prior *version.Info) ([]fileOutcome, error) {
	batchSize := o.cfg.Indexing.BatchSize
	if batchSize <= 0 {
		batchSize = len(paths)
	}
	fanOut := o.cfg.Indexing.MaxConcurrency
	if fanOut <= 0 {
		fanOut = 1
	}

	var (
		mu       sync.Mutex
		outcomes []fileOutcome
	)

	for start := 0; start < len(paths); start += batchSize {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		end := start + batchSize
		if end > len(paths) {
			end = len(paths)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fanOut)
		for _, path := range paths[start:end] {
			path := path
			g.Go(func() error {
				out := o.processFile(gctx, path, prior)

				mu.Lock()
				outcomes = append(outcomes, out)
				mu.Unlock()

				if out.result.Status == FileFailed {
					// An unreachable embedder fails every file the
					// same way; treat it as run-fatal like a dead
					// store.
					if oerrors.IsFatal(out.result.Err) ||
						oerrors.GetCode(out.result.Err) == oerrors.ErrCodeEmbedderOffline {
						return out.result.Err
					}
					if o.cfg.Indexing.AbortOnError {
						return out.result.Err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// processFile runs one file through the pipeline:
// read -> hash short-circuit -> parse -> chunk -> embed -> reconcile store.
func (o *Orchestrator) processFile(ctx context.Context, path string, prior *version.Info) fileOutcome {
	data, err := o.scanner.ReadFile(path)
	if err != nil {
		return failedOutcome(path, oerrors.FileError(oerrors.ErrCodeFileNotFound, path, oerrors.StageScanning, err))
	}

	hash := version.HashContent(data)
	if prior != nil && prior.FileHashes[path] == hash {
		return fileOutcome{
			result: FileResult{Path: path, Status: FileSkipped, Reason: "unchanged"},
			hash:   hash,
		}
	}

	doc := o.parser.Parse(string(data))

	// Notes opting out via frontmatter keep nothing in the store, but
	// their hash is tracked so they do not look changed on every run.
	if doc.FrontmatterBool("hidden") {
		if err := o.removeStale(ctx, path); err != nil {
			return failedOutcome(path, err)
		}
		return fileOutcome{
			result: FileResult{Path: path, Status: FileSkipped, Reason: "hidden"},
			hash:   hash,
		}
	}

	chunked, err := o.chunker.Chunk(ctx, doc, path)
	if err != nil {
		return failedOutcome(path, oerrors.FileError(oerrors.ErrCodeChunkingFailed, path, oerrors.StageChunking, err))
	}

	var warnings []string
	for _, w := range chunked.Warnings {
		warnings = append(warnings, fmt.Sprintf("%s: %s", path, w))
	}

	if len(chunked.Chunks) == 0 {
		if err := o.removeStale(ctx, path); err != nil {
			return failedOutcome(path, err)
		}
		return fileOutcome{
			result:   FileResult{Path: path, Status: FileIndexed},
			hash:     hash,
			warnings: warnings,
		}
	}

	texts := make([]string, len(chunked.Chunks))
	for i, c := range chunked.Chunks {
		texts[i] = c.Content
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return failedOutcome(path, wrapStage(err, path, oerrors.StageEmbedding))
	}

	// Chunk ids are recomputed from scratch, so stale chunks are found
	// by path, not by id.
	if err := o.removeStale(ctx, path); err != nil {
		return failedOutcome(path, err)
	}

	records := make([]store.Record, len(chunked.Chunks))
	for i, c := range chunked.Chunks {
		records[i] = store.Record{Chunk: c, Vector: vectors[i]}
	}
	ids, err := o.store.Upsert(ctx, records)
	if err != nil {
		return failedOutcome(path, wrapStage(err, path, oerrors.StageStorage))
	}

	return fileOutcome{
		result:   FileResult{Path: path, Status: FileIndexed, Chunks: len(ids)},
		hash:     hash,
		warnings: warnings,
	}
}

// removeVanished reconciles files that were tracked by the prior
// version but are no longer in the vault: their stored chunks are
// deleted and a FileDeleted entry is recorded. Without this a full run
// would orphan the chunks of a removed file forever, since the new
// hash map no longer carries the path for an incremental tier to diff
// against.
func (o *Orchestrator) removeVanished(ctx context.Context, res *IndexingResult, prior *version.Info, scanned []string) {
	if prior == nil || len(prior.FileHashes) == 0 {
		return
	}

	seen := make(map[string]bool, len(scanned))
	for _, path := range scanned {
		seen[path] = true
	}

	var vanished []string
	for path := range prior.FileHashes {
		if !seen[path] {
			vanished = append(vanished, path)
		}
	}
	if len(vanished) == 0 {
		return
	}
	sort.Strings(vanished)

	for _, path := range vanished {
		if err := o.removeStale(ctx, path); err != nil {
			res.Failed++
			res.Files = append(res.Files, FileResult{Path: path, Status: FileFailed, Err: err})
			continue
		}
		res.Files = append(res.Files, FileResult{Path: path, Status: FileDeleted})
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
}

// removeStale deletes every stored chunk for a file path.
func (o *Orchestrator) removeStale(ctx context.Context, path string) error {
	stale, err := o.store.QueryByField(ctx, "source_file", path, 0)
	if err != nil {
		return wrapStage(err, path, oerrors.StageStorage)
	}
	if len(stale) == 0 {
		return nil
	}
	ids := make([]string, len(stale))
	for i, rec := range stale {
		ids[i] = rec.Chunk.ID
	}
	if err := o.store.DeleteByIDs(ctx, ids); err != nil {
		return wrapStage(err, path, oerrors.StageStorage)
	}
	return nil
}

// commit writes the new version snapshot and flushes the store. Called
// only after a run completed without a fatal error.
func (o *Orchestrator) commit(ctx context.Context, snapshot string, hashes map[string]string) error {
	count, err := o.store.Count(ctx)
	if err != nil {
		return wrapStage(err, "", oerrors.StageStorage)
	}

	info := &version.Info{
		LastSnapshotID: snapshot,
		IndexedAt:      time.Now().UTC(),
		FileHashes:     hashes,
		TotalDocuments: len(hashes),
		TotalChunks:    count,
	}
	if err := o.tracker.Save(info); err != nil {
		return err
	}

	if flusher, ok := o.store.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return wrapStage(err, "", oerrors.StageStorage)
		}
	}
	return nil
}

func (o *Orchestrator) scanOptions() vault.ScanOptions {
	return vault.ScanOptions{
		Extensions:  o.cfg.Vault.Extensions,
		ExcludeDirs: o.cfg.Vault.ExcludeDirs,
		MaxFileSize: o.cfg.Vault.MaxFileSize,
	}
}

func newRun() *IndexingResult {
	return &IndexingResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// mergeOutcomes folds per-file outcomes into the run result and the new
// hash map. Failed files are dropped from the hash map so the next run
// retries them.
func mergeOutcomes(res *IndexingResult, hashes map[string]string, outcomes []fileOutcome) {
	for _, out := range outcomes {
		res.Files = append(res.Files, out.result)
		res.Warnings = append(res.Warnings, out.warnings...)

		switch out.result.Status {
		case FileIndexed:
			res.Indexed++
			res.TotalChunks += out.result.Chunks
		case FileSkipped:
			res.Skipped++
		case FileFailed:
			res.Failed++
		}

		if out.result.Status == FileFailed {
			delete(hashes, out.result.Path)
		} else if out.hash != "" {
			hashes[out.result.Path] = out.hash
		}
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
}

func failedOutcome(path string, err error) fileOutcome {
	slog.Warn("file processing failed",
		slog.String("path", path), slog.String("error", err.Error()))
	return fileOutcome{result: FileResult{Path: path, Status: FileFailed, Err: err}}
}

// wrapStage tags an error with path and pipeline stage, preserving an
// existing IndexError's code and severity.
func wrapStage(err error, path string, stage oerrors.Stage) error {
	if ie, ok := err.(*oerrors.IndexError); ok {
		ie = ie.WithStage(stage)
		if path != "" {
			ie = ie.WithPath(path)
		}
		return ie
	}
	code := oerrors.ErrCodeIndexFailed
	if stage == oerrors.StageEmbedding {
		code = oerrors.ErrCodeEmbeddingFailed
	}
	return oerrors.FileError(code, path, stage, err)
}
