// Package billy implements fs.Filesystem on top of go-billy.
package billy

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	parentfs "github.com/tellyworth/plugin-directory-old-experiment/fs"
)

// FS adapts a go-billy filesystem to fs.Filesystem. Every error names the
// operation and path; the underlying error stays reachable with errors.Is.
type FS struct {
	fs billy.Filesystem
	// osRoot is the host directory backing fs, empty when fs is not
	// backed by the host filesystem.
	osRoot string
	mu     sync.Mutex
}

var _ parentfs.Filesystem = (*FS)(nil)

// NewFS wraps an existing go-billy filesystem.
func NewFS(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// NewInMemoryFS returns an empty in-memory filesystem.
func NewInMemoryFS() *FS {
	return &FS{fs: memfs.New()}
}

// NewOSFS returns a filesystem rooted at the host directory path.
func NewOSFS(path string) *FS {
	return &FS{fs: osfs.New(path), osRoot: path}
}

// Raw returns the underlying go-billy filesystem.
//
//nolint:ireturn // go-git consumes the billy interface directly.
func (b *FS) Raw() billy.Filesystem {
	return b.fs
}

// HostRoot returns the host directory backing the filesystem and whether
// there is one.
func (b *FS) HostRoot() (string, bool) {
	return b.osRoot, b.osRoot != ""
}

func fail(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("billy: %s %q: %w", op, path, err)
}

func (b *FS) file(op, name string, f billy.File, err error) (parentfs.File, error) {
	if err != nil {
		return nil, fail(op, name, err)
	}
	return &File{file: f, fs: b}, nil
}

//nolint:ireturn
func (b *FS) Create(name string) (parentfs.File, error) {
	f, err := b.fs.Create(name)
	return b.file("create", name, f, err)
}

//nolint:ireturn
func (b *FS) Open(name string) (parentfs.File, error) {
	f, err := b.fs.Open(name)
	return b.file("open", name, f, err)
}

//nolint:ireturn
func (b *FS) OpenFile(name string, flag int, perm os.FileMode) (parentfs.File, error) {
	f, err := b.fs.OpenFile(name, flag, perm)
	return b.file("openfile", name, f, err)
}

// Exists reports whether path exists. Dangling symlinks count as existing.
func (b *FS) Exists(path string) (bool, error) {
	_, err := b.fs.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, fail("stat", path, err)
}

// Mkdir creates path, whose parent must exist. Host-backed filesystems use
// mkdir(2); the in-memory backend serializes the check and the creation.
func (b *FS) Mkdir(name string, perm os.FileMode) error {
	if p, err := b.hostPath(name); err == nil {
		return fail("mkdir", name, os.Mkdir(p, perm))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.fs.Lstat(name); err == nil {
		return fail("mkdir", name, os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fail("mkdir", name, err)
	}
	parent, err := b.fs.Stat(path.Dir(name))
	if err != nil {
		return fail("mkdir", name, err)
	}
	if !parent.IsDir() {
		return fail("mkdir", name, os.ErrNotExist)
	}
	return fail("mkdir", name, b.fs.MkdirAll(name, perm))
}

func (b *FS) MkdirAll(path string, perm os.FileMode) error {
	return fail("mkdirall", path, b.fs.MkdirAll(path, perm))
}

func (b *FS) ReadDir(dirname string) ([]os.FileInfo, error) {
	list, err := b.fs.ReadDir(dirname)
	return list, fail("readdir", dirname, err)
}

func (b *FS) ReadFile(path string) ([]byte, error) {
	data, err := util.ReadFile(b.fs, path)
	return data, fail("readfile", path, err)
}

func (b *FS) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return fail("writefile", filename, util.WriteFile(b.fs, filename, data, perm))
}

func (b *FS) Remove(name string) error {
	return fail("remove", name, b.fs.Remove(name))
}

func (b *FS) RemoveAll(path string) error {
	return fail("removeall", path, util.RemoveAll(b.fs, path))
}

func (b *FS) Rename(oldpath, newpath string) error {
	return fail("rename", oldpath+" -> "+newpath, b.fs.Rename(oldpath, newpath))
}

func (b *FS) Stat(name string) (os.FileInfo, error) {
	info, err := b.fs.Stat(name)
	return info, fail("stat", name, err)
}

func (b *FS) Lstat(name string) (os.FileInfo, error) {
	info, err := b.fs.Lstat(name)
	return info, fail("lstat", name, err)
}

func (b *FS) Symlink(target, link string) error {
	return fail("symlink", link+" -> "+target, b.fs.Symlink(target, link))
}

func (b *FS) Readlink(link string) (string, error) {
	target, err := b.fs.Readlink(link)
	return target, fail("readlink", link, err)
}

func (b *FS) TempDir(dir, prefix string) (string, error) {
	name, err := util.TempDir(b.fs, dir, prefix)
	return name, fail("tempdir", filepath.Join(dir, prefix+"*"), err)
}

func (b *FS) Walk(root string, walkFn filepath.WalkFunc) error {
	return fail("walk", root, util.Walk(b.fs, root, walkFn))
}

// Chmod uses billy.Change when the backend has it, otherwise the host path.
func (b *FS) Chmod(name string, mode os.FileMode) error {
	if ch, ok := b.fs.(billy.Change); ok {
		return fail("chmod", name, ch.Chmod(name, mode))
	}
	p, err := b.hostPath(name)
	if err == nil {
		err = os.Chmod(p, mode)
	}
	return fail("chmod", name, err)
}

// Chtimes uses billy.Change when the backend has it, otherwise the host
// path. In-memory filesystems report fs.ErrNotSupported.
func (b *FS) Chtimes(name string, atime, mtime time.Time) error {
	if ch, ok := b.fs.(billy.Change); ok {
		return fail("chtimes", name, ch.Chtimes(name, atime, mtime))
	}
	p, err := b.hostPath(name)
	if err == nil {
		err = os.Chtimes(p, atime, mtime)
	}
	return fail("chtimes", name, err)
}

// hostPath maps name onto the host filesystem. ".." cannot escape osRoot.
func (b *FS) hostPath(name string) (string, error) {
	if b.osRoot == "" {
		return "", parentfs.ErrNotSupported
	}
	return filepath.Join(b.osRoot, filepath.Clean("/"+filepath.FromSlash(name))), nil
}
