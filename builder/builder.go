// Package builder turns versions of a package into archives and publishes
// them to a destination repository in a single commit.
//
// A batch allocates a private workspace, checks out the destination at
// minimal depth and then builds every requested version in turn. A version
// that fails is reverted and reported as skipped; it never stops its
// siblings. The workspace is removed on every exit path.
package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tellyworth/plugin-directory-old-experiment/archive"
	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	billyfs "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
	"github.com/tellyworth/plugin-directory-old-experiment/metrics"
	"github.com/tellyworth/plugin-directory-old-experiment/normalize"
	"github.com/tellyworth/plugin-directory-old-experiment/purge"
	"github.com/tellyworth/plugin-directory-old-experiment/source"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
	"github.com/tellyworth/plugin-directory-old-experiment/workspace"
)

// Builder runs batch builds.
type Builder struct {
	client vcs.Client
	fs     fs.Filesystem
	logger *slog.Logger

	destURL         string
	destCreds       vcs.Credentials
	sourceRoot      string
	sourceCreds     vcs.Credentials
	externals       []string
	externalsSet    bool
	tmpDir          string
	exportTimeout   time.Duration
	commitTimeout   time.Duration
	allowNoopCommit bool
	newName         func() string

	invalidator purge.Invalidator
	metrics     metrics.Metrics

	allocator  *workspace.Allocator
	exporter   *source.Exporter
	normalizer *normalize.Normalizer
	generator  *archive.Generator
}

// New creates a Builder that talks to repositories through client.
func New(client vcs.Client, opts ...Option) *Builder {
	b := &Builder{
		client:      client,
		fs:          billyfs.NewBaseOSFS(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		sourceRoot:  source.DefaultRoot,
		tmpDir:      DefaultTmpDir,
		invalidator: purge.Noop{},
		metrics:     metrics.Noop{},
	}
	for _, opt := range opts {
		opt(b)
	}

	allocOpts := []workspace.Option{workspace.WithLogger(b.logger)}
	if b.newName != nil {
		allocOpts = append(allocOpts, workspace.WithNameSource(b.newName))
	}
	b.allocator = workspace.NewAllocator(b.fs, allocOpts...)

	srcOpts := []source.Option{
		source.WithRoot(b.sourceRoot),
		source.WithCredentials(b.sourceCreds),
		source.WithTimeout(b.exportTimeout),
		source.WithLogger(b.logger),
	}
	if b.externalsSet {
		srcOpts = append(srcOpts, source.WithExternalsAllowed(b.externals...))
	}
	b.exporter = source.NewExporter(client, b.fs, srcOpts...)
	b.normalizer = normalize.New(b.fs, normalize.WithLogger(b.logger))
	b.generator = archive.New(b.fs, archive.WithLogger(b.logger))
	return b
}

// Enabled reports whether a destination repository is configured.
func (b *Builder) Enabled() bool {
	return b.destURL != ""
}

// run is the state shared by the versions of one batch.
type run struct {
	req     Request
	ws      *workspace.Workspace
	slugDir string
	logger  *slog.Logger
}

// Build builds and publishes the archives of req.
//
// Without a destination the batch is not run and the result is marked
// Disabled. Invalid requests, workspace allocation, checkout and commit
// failures are returned as errors; a commit error comes with the batch result
// so callers can still see which versions were built.
func (b *Builder) Build(ctx context.Context, req Request) (res *BatchResult, err error) {
	if !b.Enabled() {
		b.logger.WarnContext(ctx, "no destination repository configured, not building", "slug", req.Slug)
		return &BatchResult{Slug: req.Slug, Disabled: true}, nil
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := b.logger.With("slug", req.Slug)
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		b.metrics.IncBatches(status)
		b.metrics.ObserveBuildDuration(time.Since(start).Seconds())
	}()

	ws, err := b.allocator.Allocate(b.tmpDir, req.Slug)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			logger.WarnContext(ctx, "failed to remove workspace", "path", ws.Path, "error", rerr)
		}
	}()

	res = &BatchResult{Slug: req.Slug, Workspace: ws.Path}
	r := &run{req: req, ws: ws, slugDir: ws.Join(req.Slug), logger: logger}

	if err := b.prepare(ctx, r); err != nil {
		return res, err
	}

	for _, version := range req.versions() {
		vr := b.buildVersion(ctx, r, version)
		res.Versions = append(res.Versions, vr)

		b.metrics.IncVersions(string(vr.Status), string(vr.Kind))
		if vr.Archive != nil {
			b.metrics.ObserveArchiveBytes(vr.Archive.Size)
		}
	}

	if err := ctx.Err(); err != nil {
		return res, zberrors.Wrap(err, zberrors.CodeCommitFailed, "build cancelled before commit")
	}

	cctx, cancel := b.withTimeout(ctx, b.commitTimeout)
	res.Commit = b.client.Commit(cctx, ws.Path, req.CommitMessage(), vcs.CommitOptions{Credentials: b.destCreds})
	cancel()

	if built := res.Built(); len(built) > 0 {
		if err := b.invalidator.Invalidate(ctx, req.Slug, built); err != nil {
			logger.WarnContext(ctx, "cache invalidation failed", "error", err)
		}
	}

	if err := b.commitError(res); err != nil {
		return res, err
	}

	logger.InfoContext(ctx, "batch complete",
		"built", res.Built(), "skipped", res.Skipped(), "duration", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// prepare checks out the destination and makes sure the package directory
// exists and is versioned.
func (b *Builder) prepare(ctx context.Context, r *run) error {
	fail := func(cause error, msg string) error {
		return zberrors.WrapWithContext(cause, zberrors.CodeCheckoutFailed, msg, map[string]interface{}{
			"slug":        r.req.Slug,
			"destination": b.destURL,
		})
	}

	cctx, cancel := b.withTimeout(ctx, b.commitTimeout)
	co := b.client.Checkout(cctx, b.destURL, r.ws.Path, vcs.CheckoutOptions{
		Depth:       vcs.DepthEmpty,
		Credentials: b.destCreds,
	})
	cancel()
	if !co.Succeeded {
		return fail(co.Err(), fmt.Sprintf("failed to create checkout of %s", b.destURL))
	}

	up := b.client.Update(ctx, r.slugDir, vcs.UpdateOptions{Depth: vcs.DepthEmpty, SetDepth: true})

	exists, err := b.fs.Exists(r.slugDir)
	if err != nil {
		return fail(err, fmt.Sprintf("failed to inspect %s", r.slugDir))
	}
	if exists {
		if !up.Succeeded {
			return fail(up.Err(), fmt.Sprintf("failed to update %s", r.slugDir))
		}
		return nil
	}

	if err := b.fs.MkdirAll(r.slugDir, workspace.DirMode); err != nil {
		return fail(err, fmt.Sprintf("failed to create %s", r.slugDir))
	}
	if add := b.client.Add(ctx, r.slugDir); !add.Succeeded {
		return fail(add.Err(), fmt.Sprintf("failed to create %s", r.slugDir))
	}
	r.logger.DebugContext(ctx, "created package directory", "path", r.slugDir)
	return nil
}

func (b *Builder) commitError(res *BatchResult) error {
	if res.Commit.Succeeded {
		return nil
	}

	first := res.Commit.FirstError()
	if first == "" && b.allowNoopCommit && len(res.Built()) == 0 {
		res.NoopCommit = true
		return nil
	}

	msg := "commit failed without error, maybe there were no modified files?"
	if first != "" {
		msg = "failed to commit the new ZIPs: " + first
	}
	return zberrors.WrapWithContext(nil, zberrors.CodeCommitFailed, msg, map[string]interface{}{
		"slug":        res.Slug,
		"destination": b.destURL,
		"built":       res.Built(),
	})
}

func (b *Builder) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
