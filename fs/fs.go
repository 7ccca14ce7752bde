// Package fs defines the filesystem abstraction the ZIP builder works against.
//
// Workspaces, exported trees and archives are all reached through Filesystem
// so the pipeline can run on the host filesystem in production and on an
// isolated root in tests. The go-billy backed implementation lives in fs/billy.
package fs

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ErrNotSupported is returned by operations the backing filesystem cannot
// perform, such as changing timestamps on a purely in-memory tree.
var ErrNotSupported = errors.New("operation not supported by filesystem")

// Filesystem is the set of filesystem operations used by the builder.
// Paths are slash separated and interpreted relative to the filesystem root.
type Filesystem interface {
	Create(name string) (File, error)
	Exists(path string) (bool, error)
	// Mkdir creates a single directory. It fails with an error matching
	// os.ErrExist when path already exists, so callers can claim names.
	Mkdir(path string, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Open(name string) (File, error)
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	ReadDir(dirname string) ([]os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	Remove(name string) error
	// RemoveAll removes path and its children. A missing path is not an error.
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	// Lstat is like Stat but does not follow a final symlink.
	Lstat(name string) (os.FileInfo, error)
	Symlink(target, link string) error
	Readlink(link string) (string, error)
	// Chmod and Chtimes return ErrNotSupported when the backend keeps no
	// such metadata.
	Chmod(name string, mode os.FileMode) error
	Chtimes(name string, atime, mtime time.Time) error
	TempDir(dir, prefix string) (string, error)
	// Walk visits root and everything below it in lexical order without
	// following symlinks.
	Walk(root string, walkFn filepath.WalkFunc) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
}

// IsSymlink reports whether info describes a symbolic link.
func IsSymlink(info os.FileInfo) bool {
	return info != nil && info.Mode()&os.ModeSymlink != 0
}

// IsEmptyDir reports whether dir exists, is a directory and has no entries.
func IsEmptyDir(fsys Filesystem, dir string) (bool, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
