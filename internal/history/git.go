package history

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// GitProvider implements Provider by shelling out to git. The vault root
// must be inside a git work tree; every method degrades to an error
// otherwise, which the change detector treats as "no history available".
type GitProvider struct {
	dir string
}

var _ Provider = (*GitProvider)(nil)

// NewGitProvider binds a provider to the given directory.
func NewGitProvider(dir string) *GitProvider {
	return &GitProvider{dir: dir}
}

func (g *GitProvider) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentSnapshotID returns the HEAD commit hash.
func (g *GitProvider) CurrentSnapshotID(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return out, nil
}

// IsClean reports whether `git status --porcelain` is empty.
func (g *GitProvider) IsClean(ctx context.Context) (bool, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// UncommittedChanges parses porcelain status output into Changes.
func (g *GitProvider) UncommittedChanges(ctx context.Context) ([]Change, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		rest := strings.TrimSpace(line[3:])

		switch {
		case strings.Contains(code, "R"):
			// Porcelain renames read "old -> new".
			old, renamed, ok := strings.Cut(rest, " -> ")
			if !ok {
				continue
			}
			changes = append(changes, Change{
				Path:    gitPath(renamed),
				Status:  StatusRenamed,
				OldPath: gitPath(old),
			})
		case strings.Contains(code, "D"):
			changes = append(changes, Change{Path: gitPath(rest), Status: StatusDeleted})
		case strings.Contains(code, "?") || strings.Contains(code, "A"):
			changes = append(changes, Change{Path: gitPath(rest), Status: StatusAdded})
		default:
			changes = append(changes, Change{Path: gitPath(rest), Status: StatusModified})
		}
	}
	return changes, nil
}

// DiffBetween runs a rename-aware name-status diff between two snapshots.
func (g *GitProvider) DiffBetween(ctx context.Context, fromID, toID string) ([]Change, error) {
	out, err := g.git(ctx, "diff", "--name-status", "-M", fromID, toID)
	if err != nil {
		return nil, err
	}
	return parseNameStatus(out), nil
}

// parseNameStatus parses `git diff --name-status` lines: a status letter
// (with similarity score for renames) followed by tab-separated paths.
func parseNameStatus(out string) []Change {
	var changes []Change
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}

		switch fields[0][0] {
		case 'A':
			changes = append(changes, Change{Path: gitPath(fields[1]), Status: StatusAdded})
		case 'D':
			changes = append(changes, Change{Path: gitPath(fields[1]), Status: StatusDeleted})
		case 'R':
			if len(fields) < 3 {
				continue
			}
			changes = append(changes, Change{
				Path:    gitPath(fields[2]),
				Status:  StatusRenamed,
				OldPath: gitPath(fields[1]),
			})
		case 'M', 'T':
			changes = append(changes, Change{Path: gitPath(fields[1]), Status: StatusModified})
		}
	}
	return changes
}

// gitPath normalizes one path token from git output. With core.quotePath
// at its default, git C-quotes names containing non-ASCII or special
// bytes; the escaping matches Go's, so strconv.Unquote undoes it.
func gitPath(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if unquoted, err := strconv.Unquote(s); err == nil {
			s = unquoted
		}
	}
	return filepath.ToSlash(s)
}
