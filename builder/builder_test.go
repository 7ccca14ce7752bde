package builder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	fsb "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
	"github.com/tellyworth/plugin-directory-old-experiment/source"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs/vcstest"
)

const (
	srcRoot = "https://svn.example.org/plugins"
	destURL = "https://svn.example.org/zips"
	tmpDir  = "/tmp/zb"
)

var committedAt = time.Date(2023, 7, 14, 9, 26, 53, 0, time.UTC)

type fixture struct {
	fs   fs.Filesystem
	fake *vcstest.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fsys := fsb.NewOSFS(t.TempDir())
	return &fixture{fs: fsys, fake: vcstest.NewFake(fsys)}
}

func (f *fixture) source(slug, version string, files map[string]string) {
	f.fake.Sources[source.URLFor(srcRoot, slug, version)] = vcstest.Tree{Files: files, ModTime: committedAt}
}

func (f *fixture) builder(opts ...Option) *Builder {
	base := []Option{
		WithFilesystem(f.fs),
		WithDestination(destURL, vcs.Credentials{Username: "zips", Password: "secret"}),
		WithSourceRoot(srcRoot),
		WithTmpDir(tmpDir),
	}
	return New(f.fake, append(base, opts...)...)
}

func (f *fixture) requireWorkspacesRemoved(t *testing.T) {
	t.Helper()
	entries, err := f.fs.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace left behind")
}

type recordingInvalidator struct {
	mu       sync.Mutex
	slug     string
	versions []string
	calls    int
}

func (r *recordingInvalidator) Invalidate(_ context.Context, slug string, versions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.slug = slug
	r.versions = versions
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	versions map[string]int
	batches  map[string]int
	archives int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{versions: map[string]int{}, batches: map[string]int{}}
}

func (m *recordingMetrics) IncVersions(status, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[status+"/"+kind]++
}

func (m *recordingMetrics) IncBatches(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[status]++
}

func (m *recordingMetrics) ObserveArchiveBytes(int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives++
}

func (m *recordingMetrics) ObserveBuildDuration(float64) {}

func TestBuild_Disabled(t *testing.T) {
	f := newFixture(t)
	b := New(f.fake, WithFilesystem(f.fs), WithTmpDir(tmpDir))

	res, err := b.Build(context.Background(), Request{Slug: "foo", Versions: []string{"trunk"}})
	require.NoError(t, err)
	assert.True(t, res.Disabled)
	assert.False(t, res.OK())
	assert.Empty(t, f.fake.Calls())

	ok, err := f.fs.Exists(tmpDir)
	require.NoError(t, err)
	assert.False(t, ok, "nothing is allocated when disabled")
}

func TestBuild_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.builder().Build(context.Background(), Request{Slug: "../etc", Versions: []string{"trunk"}})
	require.Error(t, err)
	assert.Equal(t, zberrors.CodeInvalidInput, zberrors.GetCode(err))
	assert.Empty(t, f.fake.Calls())
}

func TestBuild_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "trunk", map[string]string{"foo.php": "<?php // trunk", "readme.txt": "trunk"})
	f.source("foo", "1.0", map[string]string{"foo.php": "<?php // 1.0", "inc/a.php": "a"})

	inv := &recordingInvalidator{}
	m := newRecordingMetrics()
	res, err := f.builder(WithInvalidator(inv), WithMetrics(m)).Build(context.Background(), Request{
		Slug:     "foo",
		Versions: []string{"trunk", "1.0", "bad-version"},
	})
	require.NoError(t, err)
	require.True(t, res.OK())

	assert.Equal(t, []string{"trunk", "1.0"}, res.Built())
	assert.Equal(t, []string{"bad-version"}, res.Skipped())

	bad := res.Versions[2]
	assert.Equal(t, zberrors.CodeExportFailed, zberrors.GetCode(bad.Err))
	assert.Equal(t, 404, zberrors.HTTPStatus(bad.Err))
	assert.True(t, bad.Retryable)
	assert.Nil(t, bad.Archive)

	assert.Contains(t, f.fake.Committed, "foo/foo.zip")
	assert.Contains(t, f.fake.Committed, "foo/foo.1.0.zip")
	assert.NotContains(t, f.fake.Committed, "foo/foo.bad-version.zip")

	calls := f.fake.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "commit", last.Op)
	assert.Equal(t, "Updated ZIPs for foo.", last.Msg)
	assert.Equal(t, res.Workspace, last.Target)

	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, "foo", inv.slug)
	assert.Equal(t, []string{"trunk", "1.0"}, inv.versions)

	assert.Equal(t, 1, m.versions["built/trunk"])
	assert.Equal(t, 1, m.versions["built/semver"])
	assert.Equal(t, 1, m.versions["skipped/tag"])
	assert.Equal(t, 1, m.batches["ok"])
	assert.Equal(t, 2, m.archives)

	f.requireWorkspacesRemoved(t)
}

func TestBuild_Flow(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "2.1", map[string]string{"foo.php": "x"})

	res, err := f.builder().Build(context.Background(), Request{Slug: "foo", Versions: []string{"2.1"}, Context: "r1234"})
	require.NoError(t, err)

	ws := res.Workspace
	archivePath := ws + "/foo/foo.2.1.zip"
	assert.Equal(t, []string{
		"checkout " + destURL,
		"update " + ws + "/foo",
		"add " + ws + "/foo",
		"update " + archivePath,
		"export " + source.URLFor(srcRoot, "foo", "2.1"),
		"add " + archivePath,
		"commit " + ws,
	}, f.fake.Ops())

	calls := f.fake.Calls()
	assert.Equal(t, vcs.DepthEmpty, calls[0].Depth)
	assert.Equal(t, vcs.UpdateOptions{Depth: vcs.DepthEmpty, SetDepth: true}, calls[1].Update)
	assert.Equal(t, archivePath+"-files/foo", calls[4].Dest)
	assert.Equal(t, "r1234", calls[6].Msg)

	v := res.Versions[0]
	assert.Equal(t, archivePath, v.ArchivePath)
	assert.Equal(t, archivePath+"-files", v.BuildDir)
	assert.Equal(t, []string{"foo/", "foo/foo.php"}, v.Archive.Entries)
}

func TestBuild_Naming(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "trunk", map[string]string{"foo.php": "t"})
	f.source("foo", "2.1", map[string]string{"foo.php": "2.1"})

	res, err := f.builder().Build(context.Background(), Request{Slug: "foo", Versions: []string{"trunk", "2.1"}})
	require.NoError(t, err)

	assert.Equal(t, res.Workspace+"/foo/foo.zip", res.Versions[0].ArchivePath)
	assert.Equal(t, res.Workspace+"/foo/foo.2.1.zip", res.Versions[1].ArchivePath)
	assert.Contains(t, f.fake.Committed, "foo/foo.zip")
	assert.Contains(t, f.fake.Committed, "foo/foo.2.1.zip")
}

func TestBuild_DeterministicRebuild(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "1.0", map[string]string{
		"foo.php":            "<?php",
		"assets/css/app.css": "body{}",
		"lib/deep/x.php":     "x",
	})
	b := f.builder()
	req := Request{Slug: "foo", Versions: []string{"1.0"}}

	first, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	published := f.fake.Committed["foo/foo.1.0.zip"]

	// Directory times of the second export differ, the archive must not.
	time.Sleep(1100 * time.Millisecond)

	second, err := b.Build(context.Background(), req)
	require.Error(t, err, "an identical archive leaves nothing to commit")
	assert.Equal(t, zberrors.CodeCommitFailed, zberrors.GetCode(err))
	assert.Contains(t, err.Error(), "maybe there were no modified files")

	require.NotNil(t, second)
	assert.Equal(t, []string{"1.0"}, second.Built())
	assert.Equal(t, first.Versions[0].Archive.SHA256, second.Versions[0].Archive.SHA256)
	assert.Equal(t, published, f.fake.Committed["foo/foo.1.0.zip"])

	f.requireWorkspacesRemoved(t)
}

func TestBuild_SymlinksNotArchived(t *testing.T) {
	f := newFixture(t)
	f.fake.Sources[source.URLFor(srcRoot, "foo", "1.0")] = vcstest.Tree{
		Files:   map[string]string{"foo.php": "x"},
		Links:   map[string]string{"secrets": "/etc/passwd"},
		ModTime: committedAt,
	}

	res, err := f.builder().Build(context.Background(), Request{Slug: "foo", Versions: []string{"1.0"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo/", "foo/foo.php"}, res.Versions[0].Archive.Entries)
}

func TestBuild_FailedVersionIsReverted(t *testing.T) {
	f := newFixture(t)
	f.fake.Committed["foo/foo.1.0.zip"] = "published"

	res, err := f.builder(WithAllowNoopCommit(true)).Build(context.Background(), Request{Slug: "foo", Versions: []string{"1.0"}})
	require.NoError(t, err)
	assert.True(t, res.NoopCommit)
	assert.True(t, res.OK())

	archivePath := res.Workspace + "/foo/foo.1.0.zip"
	var updates int
	for _, op := range f.fake.Ops() {
		if op == "update "+archivePath {
			updates++
		}
	}
	assert.Equal(t, 2, updates, "fetched before the build and reverted after the failure")
	assert.Equal(t, "published", f.fake.Committed["foo/foo.1.0.zip"])
	assert.NotContains(t, f.fake.Ops(), "add "+archivePath)
}

func TestBuild_UnstagedRebuildIsNotPublished(t *testing.T) {
	f := newFixture(t)
	f.fake.Committed["foo/foo.1.0.zip"] = "published"
	f.source("foo", "1.0", map[string]string{"foo.php": "<?php // 1.0"})
	// The package directory is already versioned, so only the archive is added.
	failed := vcs.Failed("svn: E155010: The node was not found.")
	f.fake.AddResult = &failed

	res, err := f.builder(WithAllowNoopCommit(true)).Build(context.Background(), Request{Slug: "foo", Versions: []string{"1.0"}})
	require.NoError(t, err)
	assert.True(t, res.NoopCommit, "the rewritten archive must not reach the commit")
	assert.Equal(t, "published", f.fake.Committed["foo/foo.1.0.zip"])

	require.Len(t, res.Versions, 1)
	v := res.Versions[0]
	assert.Equal(t, StatusSkipped, v.Status)
	assert.Equal(t, zberrors.CodePublishFailed, zberrors.GetCode(v.Err))
	assert.False(t, v.Retryable)
}

func TestBuild_NothingBuilt(t *testing.T) {
	f := newFixture(t)

	res, err := f.builder().Build(context.Background(), Request{Slug: "foo", Versions: []string{"1.0"}})
	require.Error(t, err)
	assert.Equal(t, zberrors.CodeCommitFailed, zberrors.GetCode(err))
	assert.False(t, res.OK())
	assert.Equal(t, []string{"1.0"}, res.Skipped())
	f.requireWorkspacesRemoved(t)
}

func TestBuild_CommitRejected(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "trunk", map[string]string{"foo.php": "x"})
	rejected := vcs.Failed("E165001: Commit blocked by pre-commit hook")
	f.fake.CommitResult = &rejected

	inv := &recordingInvalidator{}
	m := newRecordingMetrics()
	res, err := f.builder(WithInvalidator(inv), WithMetrics(m), WithAllowNoopCommit(true)).
		Build(context.Background(), Request{Slug: "foo", Versions: []string{"trunk"}})
	require.Error(t, err)
	assert.Equal(t, zberrors.CodeCommitFailed, zberrors.GetCode(err))
	assert.Contains(t, err.Error(), "failed to commit the new ZIPs: E165001")
	assert.Equal(t, []string{"trunk"}, res.Built())
	assert.Equal(t, 1, inv.calls, "caches are purged after the commit attempt")
	assert.Equal(t, 1, m.batches["failed"])

	f.requireWorkspacesRemoved(t)
}

func TestBuild_CheckoutFailure(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "trunk", map[string]string{"foo.php": "x"})
	failed := vcs.Failed("E170013: Unable to connect to a repository")
	f.fake.CheckoutResult = &failed

	res, err := f.builder().Build(context.Background(), Request{Slug: "foo", Versions: []string{"trunk"}})
	require.Error(t, err)
	assert.Equal(t, zberrors.CodeCheckoutFailed, zberrors.GetCode(err))
	assert.Contains(t, err.Error(), "E170013")
	assert.Empty(t, res.Versions)
	assert.Equal(t, []string{"checkout " + destURL}, f.fake.Ops())

	f.requireWorkspacesRemoved(t)
}

func TestBuild_PackageDirectoryNotAdded(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "trunk", map[string]string{"foo.php": "x"})
	failed := vcs.Failed("E155010: not found")
	f.fake.AddResult = &failed

	_, err := f.builder().Build(context.Background(), Request{Slug: "foo", Versions: []string{"trunk"}})
	require.Error(t, err)
	assert.Equal(t, zberrors.CodeCheckoutFailed, zberrors.GetCode(err))
	f.requireWorkspacesRemoved(t)
}

func TestBuild_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "trunk", map[string]string{"foo.php": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.builder().Build(ctx, Request{Slug: "foo", Versions: []string{"trunk", "1.0"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"trunk", "1.0"}, res.Skipped())
	assert.NotContains(t, f.fake.Ops(), "commit "+res.Workspace)

	f.requireWorkspacesRemoved(t)
}

func TestBuild_DuplicateVersions(t *testing.T) {
	f := newFixture(t)
	f.source("foo", "trunk", map[string]string{"foo.php": "x"})

	res, err := f.builder().Build(context.Background(), Request{Slug: "foo", Versions: []string{"trunk", "trunk"}})
	require.NoError(t, err)
	assert.Len(t, res.Versions, 1)
}

func TestBuild_ConcurrentRuns(t *testing.T) {
	fsys := fsb.NewOSFS(t.TempDir())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fake := vcstest.NewFake(fsys)
			fake.Sources[source.URLFor(srcRoot, "foo", "trunk")] = vcstest.Tree{
				Files:   map[string]string{"foo.php": "x"},
				ModTime: committedAt,
			}
			b := New(fake, WithFilesystem(fsys), WithDestination(destURL, vcs.Credentials{}),
				WithSourceRoot(srcRoot), WithTmpDir(tmpDir))
			_, errs[i] = b.Build(context.Background(), Request{Slug: "foo", Versions: []string{"trunk"}})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	entries, err := fsys.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
