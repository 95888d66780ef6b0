package history

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNameStatus(t *testing.T) {
	out := "A\tnotes/new.md\nM\tnotes/changed.md\nD\tnotes/gone.md\nR087\tnotes/old.md\tnotes/renamed.md\n"

	changes := parseNameStatus(out)
	require.Len(t, changes, 4)

	assert.Equal(t, Change{Path: "notes/new.md", Status: StatusAdded}, changes[0])
	assert.Equal(t, Change{Path: "notes/changed.md", Status: StatusModified}, changes[1])
	assert.Equal(t, Change{Path: "notes/gone.md", Status: StatusDeleted}, changes[2])
	assert.Equal(t, Change{Path: "notes/renamed.md", Status: StatusRenamed, OldPath: "notes/old.md"}, changes[3])
}

func TestParseNameStatus_QuotedPaths(t *testing.T) {
	// core.quotePath C-quotes non-ASCII names as octal byte escapes.
	out := "M\t\"h\\303\\244llo.md\"\nR100\t\"\\303\\245/old.md\"\t\"\\303\\245/new.md\"\n"

	changes := parseNameStatus(out)
	require.Len(t, changes, 2)

	assert.Equal(t, Change{Path: "hällo.md", Status: StatusModified}, changes[0])
	assert.Equal(t, Change{Path: "å/new.md", Status: StatusRenamed, OldPath: "å/old.md"}, changes[1])
}

func TestGitPath(t *testing.T) {
	assert.Equal(t, "plain/name.md", gitPath("plain/name.md"))
	assert.Equal(t, "tab\there.md", gitPath(`"tab\there.md"`))
	// Malformed quoting passes through rather than dropping the path.
	assert.Equal(t, `"broken`, gitPath(`"broken`))
}

func TestParseNameStatus_Empty(t *testing.T) {
	assert.Empty(t, parseNameStatus(""))
	assert.Empty(t, parseNameStatus("\n\n"))
}

func gitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

func initRepo(t *testing.T) (string, *GitProvider) {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	return dir, NewGitProvider(dir)
}

func commitFile(t *testing.T, dir, rel, content, msg string) {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	for _, args := range [][]string{{"add", "."}, {"commit", "-q", "-m", msg}} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
}

func TestGitProvider_SnapshotAndStatus(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not installed")
	}
	dir, g := initRepo(t)
	ctx := context.Background()

	commitFile(t, dir, "a.md", "# A", "add a")

	id, err := g.CurrentSnapshotID(ctx)
	require.NoError(t, err)
	assert.Len(t, id, 40)

	clean, err := g.IsClean(ctx)
	require.NoError(t, err)
	assert.True(t, clean)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# B"), 0o644))
	clean, err = g.IsClean(ctx)
	require.NoError(t, err)
	assert.False(t, clean)

	changes, err := g.UncommittedChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "b.md", changes[0].Path)
	assert.Equal(t, StatusAdded, changes[0].Status)
}

func TestGitProvider_DiffBetween(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not installed")
	}
	dir, g := initRepo(t)
	ctx := context.Background()

	commitFile(t, dir, "a.md", "# A\n\nfirst version of this note\n", "add a")
	first, err := g.CurrentSnapshotID(ctx)
	require.NoError(t, err)

	commitFile(t, dir, "a.md", "# A\n\nsecond version of this note\n", "edit a")
	commitFile(t, dir, "b.md", "# B\n", "add b")
	second, err := g.CurrentSnapshotID(ctx)
	require.NoError(t, err)

	changes, err := g.DiffBetween(ctx, first, second)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	byPath := map[string]Status{}
	for _, c := range changes {
		byPath[c.Path] = c.Status
	}
	assert.Equal(t, StatusModified, byPath["a.md"])
	assert.Equal(t, StatusAdded, byPath["b.md"])
}

func TestGitProvider_ErrorsOutsideRepo(t *testing.T) {
	if !gitAvailable() {
		t.Skip("git not installed")
	}
	g := NewGitProvider(t.TempDir())

	_, err := g.CurrentSnapshotID(context.Background())
	assert.Error(t, err)
}
