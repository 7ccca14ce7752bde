package git

import (
	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	billyfs "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
)

// billyOf returns the go-billy filesystem behind fsys. go-git can only work
// on filesystems from the fs/billy package.
//
//nolint:ireturn // go-git consumes billy.Filesystem.
func billyOf(fsys fs.Filesystem) (gobilly.Filesystem, error) {
	b, ok := fsys.(*billyfs.FS)
	if !ok {
		return nil, WrapErrorf(ErrInvalidRef, "filesystem %T is not backed by go-billy", fsys)
	}
	return b.Raw(), nil
}

// newStorage stores objects on dotGit behind an LRU cache of maxBytes.
func newStorage(dotGit gobilly.Filesystem, maxBytes int64) *filesystem.Storage {
	return filesystem.NewStorage(dotGit, cache.NewObjectLRU(cache.FileSize(maxBytes)))
}
