// Package source exports the source tree of one package version into a build
// directory.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

const (
	// DefaultRoot is the public plugin repository.
	DefaultRoot = "http://plugins.svn.wordpress.org"

	// Trunk is the version label of the development line.
	Trunk = "trunk"
)

// DefaultExternalsAllowed lists packages whose exports keep external
// definitions. Everything else is exported with externals ignored.
var DefaultExternalsAllowed = []string{"buddypress"}

// Exporter writes package versions from a source repository onto a
// filesystem.
type Exporter struct {
	client      vcs.Client
	fs          fs.Filesystem
	root        string
	externals   map[string]bool
	credentials vcs.Credentials
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRoot sets the repository root URL packages live under.
func WithRoot(root string) Option {
	return func(e *Exporter) {
		if root != "" {
			e.root = root
		}
	}
}

// WithExternalsAllowed replaces DefaultExternalsAllowed.
func WithExternalsAllowed(slugs ...string) Option {
	return func(e *Exporter) {
		e.externals = toSet(slugs)
	}
}

// WithCredentials sets the credentials used to read the source repository.
func WithCredentials(creds vcs.Credentials) Option {
	return func(e *Exporter) {
		e.credentials = creds
	}
}

// WithTimeout bounds every export attempt. Zero leaves the caller's context
// as the only limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter creates an Exporter that reads through client and checks the
// result on fsys.
func NewExporter(client vcs.Client, fsys fs.Filesystem, opts ...Option) *Exporter {
	e := &Exporter{
		client:    client,
		fs:        fsys,
		root:      DefaultRoot,
		externals: toSet(DefaultExternalsAllowed),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// URLFor returns the repository location of version of slug below root.
func URLFor(root, slug, version string) string {
	root = strings.TrimSuffix(root, "/")
	if version == Trunk {
		return fmt.Sprintf("%s/%s/trunk/", root, slug)
	}
	return fmt.Sprintf("%s/%s/tags/%s/", root, slug, version)
}

// LegacyVersion returns the tag some old packages used for a version that
// now carries a "0." prefix: "0.9" was once tagged as "9".
func LegacyVersion(version string) (string, bool) {
	rest, ok := strings.CutPrefix(version, "0.")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// TreeDir returns where Export places the tree of slug inside destDir.
func TreeDir(destDir, slug string) string {
	return path.Join(destDir, slug)
}

// Export writes version of slug to TreeDir(destDir, slug). Symbolic links in
// the exported tree are removed. A failed or empty export returns a
// CodeExportFailed error.
func (e *Exporter) Export(ctx context.Context, slug, version, destDir string) error {
	dest := TreeDir(destDir, slug)
	opts := vcs.ExportOptions{
		IgnoreExternals: !e.externals[slug],
		Credentials:     e.credentials,
	}

	url := URLFor(e.root, slug, version)
	res := e.export(ctx, url, dest, opts)

	if !res.Succeeded {
		if legacy, ok := LegacyVersion(version); ok {
			e.logger.DebugContext(ctx, "export failed, trying legacy tag",
				"slug", slug, "version", version, "tag", legacy, "error", res.FirstError())

			if err := e.fs.RemoveAll(dest); err != nil {
				return e.fail(err, slug, version, url, "failed to clear export directory")
			}
			if retry := e.export(ctx, URLFor(e.root, slug, legacy), dest, opts); retry.Succeeded {
				res = retry
			}
		}
	}

	if !res.Succeeded {
		return e.fail(res.Err(), slug, version, url,
			fmt.Sprintf("failed to export %s: %s", url, firstOr(res, "unknown error")))
	}

	empty, err := fs.IsEmptyDir(e.fs, dest)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return e.fail(err, slug, version, url, "failed to read export directory")
	}
	if empty || err != nil {
		return e.fail(nil, slug, version, url, fmt.Sprintf("nothing was exported from %s", url))
	}

	removed, err := StripSymlinks(e.fs, dest)
	if err != nil {
		return e.fail(err, slug, version, url, "failed to remove symbolic links")
	}
	if removed > 0 {
		e.logger.DebugContext(ctx, "removed symbolic links", "slug", slug, "version", version, "count", removed)
	}
	return nil
}

func (e *Exporter) export(ctx context.Context, url, dest string, opts vcs.ExportOptions) vcs.Result {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.client.Export(ctx, url, dest, opts)
}

//nolint:ireturn // PlatformError is the package contract.
func (e *Exporter) fail(cause error, slug, version, url, msg string) zberrors.PlatformError {
	return zberrors.WrapWithContext(cause, zberrors.CodeExportFailed, msg, map[string]interface{}{
		"slug":    slug,
		"version": version,
		"url":     url,
	})
}

// StripSymlinks removes every symbolic link below root without following
// any of them, and reports how many were removed.
func StripSymlinks(fsys fs.Filesystem, root string) (int, error) {
	var links []string
	err := fsys.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fs.IsSymlink(info) {
			links = append(links, p)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, link := range links {
		if err := fsys.Remove(link); err != nil {
			return 0, err
		}
	}
	return len(links), nil
}

func firstOr(res vcs.Result, fallback string) string {
	if msg := res.FirstError(); msg != "" {
		return msg
	}
	return fallback
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
