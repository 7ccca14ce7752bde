package billy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parentfs "github.com/tellyworth/plugin-directory-old-experiment/fs"
	"github.com/tellyworth/plugin-directory-old-experiment/fs/fstest"
)

func TestInMemoryFS_Suite(t *testing.T) {
	fstest.TestSuite(t, func(*testing.T) parentfs.Filesystem {
		return NewInMemoryFS()
	}, fstest.Capabilities{Symlinks: true})
}

func TestOSFS_Suite(t *testing.T) {
	fstest.TestSuite(t, func(t *testing.T) parentfs.Filesystem {
		return NewOSFS(t.TempDir())
	}, fstest.Capabilities{Symlinks: true, Times: true})
}

func TestOSFS_HostPathStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	fsys := NewOSFS(root)

	require.NoError(t, fsys.MkdirAll("/inner", 0o755))
	stamp := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fsys.Chtimes("/../../inner", stamp, stamp))

	info, err := os.Stat(filepath.Join(root, "inner"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(stamp))
}

func TestOSFS_Chmod(t *testing.T) {
	root := t.TempDir()
	fsys := NewOSFS(root)

	require.NoError(t, fsys.MkdirAll("/shared", 0o700))
	require.NoError(t, fsys.Chmod("/shared", 0o777))

	info, err := os.Stat(filepath.Join(root, "shared"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o777), info.Mode().Perm())
}

func TestHostRoot(t *testing.T) {
	_, ok := NewInMemoryFS().HostRoot()
	assert.False(t, ok)

	root, ok := NewBaseOSFS().HostRoot()
	assert.True(t, ok)
	assert.Equal(t, "/", root)
}

func TestInMemoryFS_ChmodNotSupported(t *testing.T) {
	fsys := NewInMemoryFS()
	require.NoError(t, fsys.MkdirAll("/d", 0o755))
	assert.ErrorIs(t, fsys.Chmod("/d", 0o777), parentfs.ErrNotSupported)
}
