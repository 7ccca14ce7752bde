package builder

import (
	"log/slog"
	"time"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	"github.com/tellyworth/plugin-directory-old-experiment/metrics"
	"github.com/tellyworth/plugin-directory-old-experiment/purge"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

// DefaultTmpDir is the base directory shared by all runs on a host.
const DefaultTmpDir = "/tmp/plugin-zip-builder"

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithFilesystem sets the filesystem workspaces are created on. Paths handed
// to the vcs.Client are paths on this filesystem, so a subprocess backed
// client needs the host filesystem (the default).
func WithFilesystem(fsys fs.Filesystem) Option {
	return func(b *Builder) {
		if fsys != nil {
			b.fs = fsys
		}
	}
}

// WithDestination sets the repository archives are committed to. Without
// one, Build reports the feature as disabled.
func WithDestination(url string, creds vcs.Credentials) Option {
	return func(b *Builder) {
		b.destURL = url
		b.destCreds = creds
	}
}

// WithSourceRoot sets the repository root versions are exported from.
func WithSourceRoot(root string) Option {
	return func(b *Builder) {
		b.sourceRoot = root
	}
}

// WithSourceCredentials sets the credentials used for exports.
func WithSourceCredentials(creds vcs.Credentials) Option {
	return func(b *Builder) {
		b.sourceCreds = creds
	}
}

// WithExternalsAllowed lists packages exported with their externals.
func WithExternalsAllowed(slugs ...string) Option {
	return func(b *Builder) {
		b.externals = slugs
		b.externalsSet = true
	}
}

// WithTmpDir overrides DefaultTmpDir.
func WithTmpDir(dir string) Option {
	return func(b *Builder) {
		if dir != "" {
			b.tmpDir = dir
		}
	}
}

// WithExportTimeout bounds each export attempt.
func WithExportTimeout(d time.Duration) Option {
	return func(b *Builder) {
		b.exportTimeout = d
	}
}

// WithCommitTimeout bounds the checkout and the commit of the destination.
func WithCommitTimeout(d time.Duration) Option {
	return func(b *Builder) {
		b.commitTimeout = d
	}
}

// WithInvalidator sets the cache invalidator. Defaults to purge.Noop.
func WithInvalidator(inv purge.Invalidator) Option {
	return func(b *Builder) {
		if inv != nil {
			b.invalidator = inv
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to metrics.Noop.
func WithMetrics(m metrics.Metrics) Option {
	return func(b *Builder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithAllowNoopCommit accepts a commit that changes nothing when no version
// was built, instead of failing the batch.
func WithAllowNoopCommit(allow bool) Option {
	return func(b *Builder) {
		b.allowNoopCommit = allow
	}
}

// WithAllocatorName replaces the random part of workspace names.
func WithAllocatorName(fn func() string) Option {
	return func(b *Builder) {
		b.newName = fn
	}
}
