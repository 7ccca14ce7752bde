package workspace_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	billyfs "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
	"github.com/tellyworth/plugin-directory-old-experiment/workspace"
)

func TestAllocate_CreatesDirectory(t *testing.T) {
	fsys := billyfs.NewInMemoryFS()
	alloc := workspace.NewAllocator(fsys)

	ws, err := alloc.Allocate("/tmp/plugin-zip-builder", "hello-dolly")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ws.Path, "/tmp/plugin-zip-builder/hello-dolly-"))
	info, err := fsys.Stat(ws.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, ws.Path+"/a/b.zip", ws.Join("a", "b.zip"))
}

func TestAllocate_BaseIsWorldWritable(t *testing.T) {
	root := t.TempDir()
	alloc := workspace.NewAllocator(billyfs.NewOSFS(root))

	ws, err := alloc.Allocate("/shared", "p")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Release() })

	info, err := os.Stat(filepath.Join(root, "shared"))
	require.NoError(t, err)
	assert.Equal(t, workspace.DirMode, info.Mode().Perm())
}

func TestAllocate_SkipsTakenNames(t *testing.T) {
	fsys := billyfs.NewInMemoryFS()
	require.NoError(t, fsys.MkdirAll("/base/p-fixed0", 0o755))

	alloc := workspace.NewAllocator(fsys, workspace.WithNameSource(func() string { return "fixed" }))
	ws, err := alloc.Allocate("/base", "p")
	require.NoError(t, err)
	assert.Equal(t, "/base/p-fixed1", ws.Path)
}

// contendedFS lets another run create a directory at the first released
// placeholder name, just after the placeholder is removed.
type contendedFS struct {
	*billyfs.FS
	once sync.Once
}

func (c *contendedFS) Remove(name string) error {
	if err := c.FS.Remove(name); err != nil {
		return err
	}
	var err error
	c.once.Do(func() { err = c.FS.MkdirAll(name, 0o755) })
	return err
}

func TestAllocate_NameTakenAfterPlaceholderRemoved(t *testing.T) {
	fsys := &contendedFS{FS: billyfs.NewOSFS(t.TempDir())}

	alloc := workspace.NewAllocator(fsys, workspace.WithNameSource(func() string { return "fixed" }))
	ws, err := alloc.Allocate("/base", "p")
	require.NoError(t, err)
	assert.Equal(t, "/base/p-fixed1", ws.Path, "the contended name belongs to the other run")
}

func TestAllocate_Exhausted(t *testing.T) {
	fsys := billyfs.NewInMemoryFS()
	for _, name := range []string{"p-x0", "p-x1", "p-x2"} {
		require.NoError(t, fsys.WriteFile("/base/"+name, nil, 0o644))
	}

	alloc := workspace.NewAllocator(fsys,
		workspace.WithMaxAttempts(3),
		workspace.WithNameSource(func() string { return "x" }),
	)
	ws, err := alloc.Allocate("/base", "p")
	require.Error(t, err)
	assert.Nil(t, ws)
	assert.Equal(t, zberrors.CodeAllocationFailed, zberrors.GetCode(err))
}

func TestAllocate_ConcurrentRunsAreDistinct(t *testing.T) {
	root := t.TempDir()
	fsys := billyfs.NewOSFS(root)
	alloc := workspace.NewAllocator(fsys)

	const runs = 16
	paths := make([]string, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, err := alloc.Allocate("/base", "same")
			if assert.NoError(t, err) {
				paths[i] = ws.Path
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate workspace %s", p)
		seen[p] = true
	}
}

func TestRelease_Idempotent(t *testing.T) {
	fsys := billyfs.NewInMemoryFS()
	ws, err := workspace.NewAllocator(fsys).Allocate("/base", "p")
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile(ws.Join("slug", "file.txt"), []byte("x"), 0o644))

	require.NoError(t, ws.Release())
	require.NoError(t, ws.Release())

	ok, err := fsys.Exists(ws.Path)
	require.NoError(t, err)
	assert.False(t, ok)
}
