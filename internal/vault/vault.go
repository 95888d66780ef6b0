// Package vault discovers indexable notes in an Obsidian vault directory,
// respecting extension filters, excluded directories, and size limits.
package vault

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFileSize is the largest note the scanner will report (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultExtensions are the note extensions scanned when none are configured.
var DefaultExtensions = []string{".md", ".markdown"}

// DefaultExcludeDirs are directory names never descended into. The Obsidian
// config dir and our own data dir are always excluded regardless of config.
var DefaultExcludeDirs = []string{".obsidian", ".obsidx", ".git", ".trash", "node_modules"}

// FileInfo describes one discovered note.
type FileInfo struct {
	// Path is relative to the vault root, forward-slash separated. It is
	// the canonical key for chunks, hashes, and change detection.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	Size    int64
	ModTime time.Time
}

// ScanResult streams either a discovered file or a per-file error.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// ScanOptions configures a scan.
type ScanOptions struct {
	// Extensions filters by file extension (empty = DefaultExtensions).
	Extensions []string

	// ExcludeDirs lists directory names to skip, merged with the
	// always-excluded defaults.
	ExcludeDirs []string

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64
}

// Scanner walks a vault root and emits the notes worth indexing.
type Scanner struct {
	root string
}

// NewScanner validates the vault root and returns a scanner bound to it.
func NewScanner(root string) (*Scanner, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", absRoot)
	}
	return &Scanner{root: absRoot}, nil
}

// Root returns the absolute vault root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan streams discovered notes. The channel closes when the walk finishes
// or the context is canceled; per-file problems surface as ScanResult errors
// while the walk continues.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) <-chan ScanResult {
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	excluded := excludeSet(opts.ExcludeDirs)

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)

	go func() {
		defer close(results)

		err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				// Unreadable entries are reported, not fatal.
				results <- ScanResult{Error: fmt.Errorf("walk %s: %w", path, err)}
				return nil
			}

			rel, relErr := filepath.Rel(s.root, path)
			if relErr != nil {
				return nil
			}

			if d.IsDir() {
				if rel == "." {
					return nil
				}
				name := d.Name()
				if _, skip := excluded[name]; skip || strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}

			if !hasExtension(path, extensions) {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				results <- ScanResult{Error: fmt.Errorf("stat %s: %w", rel, infoErr)}
				return nil
			}
			if info.Size() > maxSize {
				return nil
			}

			results <- ScanResult{File: &FileInfo{
				Path:    filepath.ToSlash(rel),
				AbsPath: path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			results <- ScanResult{Error: err}
		}
	}()

	return results
}

// ListFiles collects a full scan into a slice sorted by relative path.
func (s *Scanner) ListFiles(ctx context.Context, opts ScanOptions) ([]*FileInfo, error) {
	var files []*FileInfo
	for res := range s.Scan(ctx, opts) {
		if res.Error != nil {
			continue
		}
		files = append(files, res.File)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile reads a note by its vault-relative path, guarding against
// traversal outside the root.
func (s *Scanner) ReadFile(relPath string) ([]byte, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(relPath))
	if !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("path escapes vault root: %s", relPath)
	}
	return os.ReadFile(abs)
}

func excludeSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(DefaultExcludeDirs)+len(extra))
	for _, d := range DefaultExcludeDirs {
		set[d] = struct{}{}
	}
	for _, d := range extra {
		set[d] = struct{}{}
	}
	return set
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
