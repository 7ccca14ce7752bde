// Package fstest provides a conformance suite for fs.Filesystem
// implementations.
//
// The suite checks the behaviour the build pipeline depends on: exclusive
// creation, recursive removal, lexical non-following walks and, where the
// backend supports them, symlinks and timestamp changes.
//
// Example usage:
//
//	func TestMyProvider(t *testing.T) {
//	    fstest.TestSuite(t, func(t *testing.T) fs.Filesystem {
//	        return myprovider.New(t.TempDir())
//	    }, fstest.Capabilities{Symlinks: true})
//	}
package fstest

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
)

// Capabilities describes optional behaviour of a provider.
type Capabilities struct {
	// Symlinks reports whether Symlink, Readlink and Lstat distinguish links.
	Symlinks bool
	// Times reports whether Chtimes is persisted and visible through Stat.
	Times bool
}

// TestSuite runs all applicable conformance tests. newFS must return a fresh,
// empty filesystem for each call.
func TestSuite(t *testing.T, newFS func(t *testing.T) fs.Filesystem, caps Capabilities) {
	t.Run("ReadWrite", func(t *testing.T) { testReadWrite(t, newFS(t)) })
	t.Run("ExclusiveCreate", func(t *testing.T) { testExclusiveCreate(t, newFS(t)) })
	t.Run("ExclusiveMkdir", func(t *testing.T) { testExclusiveMkdir(t, newFS(t)) })
	t.Run("RemoveAll", func(t *testing.T) { testRemoveAll(t, newFS(t)) })
	t.Run("WalkOrder", func(t *testing.T) { testWalkOrder(t, newFS(t)) })
	t.Run("Rename", func(t *testing.T) { testRename(t, newFS(t)) })

	t.Run("Symlinks", func(t *testing.T) {
		if !caps.Symlinks {
			t.Skip("provider does not support symlinks")
		}
		testSymlinks(t, newFS(t))
	})

	t.Run("Chtimes", func(t *testing.T) {
		fsys := newFS(t)
		if !caps.Times {
			require.NoError(t, fsys.MkdirAll("/d", 0o755))
			err := fsys.Chtimes("/d", time.Now(), time.Now())
			assert.ErrorIs(t, err, fs.ErrNotSupported)
			return
		}
		testChtimes(t, fsys)
	})
}

func testExclusiveMkdir(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.MkdirAll("/m", 0o755))
	require.NoError(t, fsys.Mkdir("/m/d", 0o755))

	info, err := fsys.Stat("/m/d")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.ErrorIs(t, fsys.Mkdir("/m/d", 0o755), os.ErrExist)

	require.NoError(t, fsys.WriteFile("/m/f", []byte("x"), 0o644))
	assert.ErrorIs(t, fsys.Mkdir("/m/f", 0o755), os.ErrExist)

	assert.Error(t, fsys.Mkdir("/missing/d", 0o755), "parent must exist")
}

func testReadWrite(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.MkdirAll("/a/b/c", 0o755))
	info, err := fsys.Stat("/a/b")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, fsys.WriteFile("/a/file.txt", []byte("hello"), 0o644))
	data, err := fsys.ReadFile("/a/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	f, err := fsys.Create("/a/created.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	st, err := f.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Size())
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	ok, err := fsys.Exists("/a/created.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fsys.Exists("/a/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fsys.Remove("/a/created.txt"))
	_, err = fsys.Stat("/a/created.txt")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func testExclusiveCreate(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.MkdirAll("/x", 0o755))

	f, err := fsys.OpenFile("/x/claim", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fsys.OpenFile("/x/claim", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))
}

func testRemoveAll(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.MkdirAll("/r/a/b", 0o755))
	require.NoError(t, fsys.WriteFile("/r/a/b/f", []byte("x"), 0o644))
	require.NoError(t, fsys.WriteFile("/r/top", []byte("y"), 0o644))

	require.NoError(t, fsys.RemoveAll("/r"))
	ok, err := fsys.Exists("/r")
	require.NoError(t, err)
	assert.False(t, ok)

	// Missing paths are not an error.
	require.NoError(t, fsys.RemoveAll("/r"))
}

func testWalkOrder(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.MkdirAll("/w/b", 0o755))
	require.NoError(t, fsys.MkdirAll("/w/a", 0o755))
	require.NoError(t, fsys.WriteFile("/w/b/2", nil, 0o644))
	require.NoError(t, fsys.WriteFile("/w/a/1", nil, 0o644))
	require.NoError(t, fsys.WriteFile("/w/c", nil, 0o644))

	var seen []string
	err := fsys.Walk("/w", func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/w", "/w/a", "/w/a/1", "/w/b", "/w/b/2", "/w/c"}, seen)
}

func testRename(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.WriteFile("/from", []byte("v"), 0o644))
	require.NoError(t, fsys.Rename("/from", "/to"))

	data, err := fsys.ReadFile("/to")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func testSymlinks(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.MkdirAll("/s", 0o755))
	require.NoError(t, fsys.WriteFile("/s/target", []byte("t"), 0o644))
	require.NoError(t, fsys.Symlink("target", "/s/link"))

	info, err := fsys.Lstat("/s/link")
	require.NoError(t, err)
	assert.True(t, fs.IsSymlink(info))

	target, err := fsys.Readlink("/s/link")
	require.NoError(t, err)
	assert.Equal(t, "target", target)

	// Dangling links exist even though their target does not.
	require.NoError(t, fsys.Symlink("nowhere", "/s/dangling"))
	ok, err := fsys.Exists("/s/dangling")
	require.NoError(t, err)
	assert.True(t, ok)

	var links int
	err = fsys.Walk("/s", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fs.IsSymlink(info) {
			links++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, links)
}

func testChtimes(t *testing.T, fsys fs.Filesystem) {
	require.NoError(t, fsys.MkdirAll("/t/d", 0o755))
	stamp := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, fsys.Chtimes("/t/d", stamp, stamp))
	info, err := fsys.Stat("/t/d")
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(stamp), "got %s", info.ModTime())
}
