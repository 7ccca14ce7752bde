package git

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	fsb "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
)

// testRepo is a helper struct that contains a test repository and its filesystem
type testRepo struct {
	repo *Repo
	fs   fs.Filesystem
	ctx  context.Context
}

var testSignature = Signature{
	Name:  "zipbuilder",
	Email: "zipbuilder@example.org",
	When:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

// setupTestRepo creates a new test repository with an in-memory filesystem
func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	ctx := context.Background()
	memFS := fsb.NewInMemoryFS()

	repo, err := Init(ctx, &Options{FS: memFS})
	require.NoError(t, err, "failed to initialize test repository")

	return &testRepo{repo: repo, fs: memFS, ctx: ctx}
}

// setupTestRepoWithCommit creates a test repository whose HEAD holds files.
func setupTestRepoWithCommit(t *testing.T, files map[string]string) *testRepo {
	t.Helper()

	tr := setupTestRepo(t)
	tr.commitFiles(t, "Initial commit", files)
	return tr
}

func (tr *testRepo) commitFiles(t *testing.T, msg string, files map[string]string) string {
	t.Helper()

	for name, content := range files {
		require.NoError(t, tr.fs.WriteFile(name, []byte(content), 0o644))
		require.NoError(t, tr.repo.Add(tr.ctx, name))
	}
	sha, err := tr.repo.Commit(tr.ctx, msg, testSignature, CommitOpts{})
	require.NoError(t, err, "failed to commit")
	return sha
}

// setupRemote creates an on-disk repository with one commit, tagged as tag,
// and returns its path. Tests using it need the git binary because go-git's
// file transport shells out to git-upload-pack and git-receive-pack.
func setupRemote(t *testing.T, files map[string]string, tag string) string {
	t.Helper()
	requireGitBinary(t)

	dir := t.TempDir()
	repo, err := Init(context.Background(), &Options{FS: fsb.NewOSFS(dir)})
	require.NoError(t, err)

	tr := &testRepo{repo: repo, fs: fsb.NewOSFS(dir), ctx: context.Background()}
	sha := tr.commitFiles(t, "Initial commit", files)

	if tag != "" {
		_, err := repo.repo.CreateTag(tag, hashOf(sha), nil)
		require.NoError(t, err)
	}
	return dir
}

func hashOf(sha string) plumbing.Hash {
	return plumbing.NewHash(sha)
}

func requireGitBinary(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}
}
