// Package workspace allocates private scratch directories for build runs.
//
// Concurrent runs share one base directory. Each run claims a unique child by
// atomically creating a placeholder file with O_EXCL, then replacing it with
// a directory, so two runs can never end up with the same workspace.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
)

const (
	// DefaultMaxAttempts is the number of names tried before giving up.
	DefaultMaxAttempts = 50

	// DirMode is applied to the shared base directory and to workspaces.
	// The base is shared by every user that runs builds on the host.
	DirMode os.FileMode = 0o777
)

// Allocator creates workspaces on a filesystem.
type Allocator struct {
	fs          fs.Filesystem
	maxAttempts int
	logger      *slog.Logger
	newName     func() string
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithLogger sets the logger used by the allocator.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithNameSource replaces the random name generator.
func WithNameSource(fn func() string) Option {
	return func(a *Allocator) {
		if fn != nil {
			a.newName = fn
		}
	}
}

// NewAllocator creates an Allocator working on fsys.
func NewAllocator(fsys fs.Filesystem, opts ...Option) *Allocator {
	a := &Allocator{
		fs:          fsys,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		newName:     randomName,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func randomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Allocate creates a fresh directory below base whose name starts with
// prefix. The caller owns the returned workspace and must Release it.
func (a *Allocator) Allocate(base, prefix string) (*Workspace, error) {
	if err := a.ensureBase(base); err != nil {
		return nil, zberrors.WrapWithContext(err, zberrors.CodeAllocationFailed,
			"failed to prepare workspace base directory", map[string]interface{}{"base": base})
	}

	var lastErr error
	for i := 0; i < a.maxAttempts; i++ {
		candidate := path.Join(base, fmt.Sprintf("%s-%s%d", prefix, a.newName(), i))

		claimed, err := a.claim(candidate)
		if err != nil {
			lastErr = err
			a.logger.Debug("workspace candidate rejected", "path", candidate, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		a.logger.Debug("workspace allocated", "path", candidate, "attempt", i+1)
		return &Workspace{Path: candidate, fs: a.fs, logger: a.logger}, nil
	}

	return nil, zberrors.WrapWithContext(lastErr, zberrors.CodeAllocationFailed,
		"could not allocate a unique workspace",
		map[string]interface{}{"base": base, "prefix": prefix, "attempts": a.maxAttempts})
}

func (a *Allocator) ensureBase(base string) error {
	exists, err := a.fs.Exists(base)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := a.fs.MkdirAll(base, DirMode); err != nil {
		return err
	}
	// MkdirAll is subject to the umask.
	if err := a.fs.Chmod(base, DirMode); err != nil && !errors.Is(err, fs.ErrNotSupported) {
		return err
	}
	return nil
}

// claim reserves candidate. It reports false, nil when the name is taken.
func (a *Allocator) claim(candidate string) (bool, error) {
	f, err := a.fs.OpenFile(candidate, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if err := f.Close(); err != nil {
		return false, err
	}
	if err := a.fs.Remove(candidate); err != nil {
		return false, err
	}
	// Another allocator may take the name between Remove and Mkdir.
	if err := a.fs.Mkdir(candidate, DirMode); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if err := a.fs.Chmod(candidate, DirMode); err != nil && !errors.Is(err, fs.ErrNotSupported) {
		return false, err
	}
	return true, nil
}

// Workspace is a scratch directory exclusive to one build run.
type Workspace struct {
	Path string

	fs       fs.Filesystem
	logger   *slog.Logger
	mu       sync.Mutex
	released bool
}

// Join returns a path inside the workspace.
func (w *Workspace) Join(elem ...string) string {
	return path.Join(append([]string{w.Path}, elem...)...)
}

// Release removes the workspace and everything in it. Calling it more than
// once is a no-op.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}
	w.released = true

	if err := w.fs.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("release workspace %s: %w", w.Path, err)
	}
	w.logger.Debug("workspace released", "path", w.Path)
	return nil
}
