// Package normalize makes directory metadata of an exported tree depend only
// on the tree's content.
//
// Exports stamp directories with the time of the export. Setting every
// directory to the newest file time instead means two exports of the same
// content produce identical archive headers.
package normalize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
)

// ErrNoFiles is returned when a tree contains no regular file.
var ErrNoFiles = errors.New("tree contains no regular files")

// Normalizer rewrites directory timestamps.
type Normalizer struct {
	fs     fs.Filesystem
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a Normalizer for trees on fsys.
func New(fsys fs.Filesystem, opts ...Option) *Normalizer {
	n := &Normalizer{
		fs:     fsys,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// LatestFileTime returns the newest modification time of any regular file
// below root, truncated to whole seconds. Symbolic links are not followed.
func LatestFileTime(fsys fs.Filesystem, root string) (time.Time, error) {
	var latest time.Time
	found := false

	err := fsys.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if mt := info.ModTime(); !found || mt.After(latest) {
			latest = mt
			found = true
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, ErrNoFiles
	}
	return latest.Truncate(time.Second), nil
}

// Normalize sets the modification time of root and of every directory below
// it to LatestFileTime. Files keep their own times. It returns the time
// applied; failures carry CodeTimestampFailed.
func (n *Normalizer) Normalize(ctx context.Context, root string) (time.Time, error) {
	latest, err := LatestFileTime(n.fs, root)
	if err != nil {
		return time.Time{}, zberrors.WrapWithContext(err, zberrors.CodeTimestampFailed,
			"failed to determine latest file time", map[string]interface{}{"root": root})
	}

	var dirs []string
	err = n.fs.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, zberrors.WrapWithContext(err, zberrors.CodeTimestampFailed,
			"failed to list directories", map[string]interface{}{"root": root})
	}

	// Children first, so no later write inside a directory can bump it again.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := n.fs.Chtimes(dirs[i], latest, latest); err != nil {
			return time.Time{}, zberrors.WrapWithContext(err, zberrors.CodeTimestampFailed,
				"failed to set directory time", map[string]interface{}{"root": root, "dir": dirs[i]})
		}
	}

	n.logger.DebugContext(ctx, "normalized directory times", "root", root, "dirs", len(dirs), "time", latest.UTC())
	return latest, nil
}
