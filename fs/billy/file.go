package billy

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"
)

// File adapts a go-billy file to fs.File. Errors other than io.EOF carry the
// operation and file name.
type File struct {
	file billy.File
	fs   *FS
}

func (f *File) wrap(op string, err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	return fmt.Errorf("billy: %s %q: %w", op, f.file.Name(), err)
}

// Name returns the name the file was opened with.
func (f *File) Name() string {
	return f.file.Name()
}

func (f *File) Read(p []byte) (int, error) {
	n, err := f.file.Read(p)
	return n, f.wrap("read", err)
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	return n, f.wrap("write", err)
}

func (f *File) Close() error {
	return f.wrap("close", f.file.Close())
}

// Stat resolves the name through the owning FS, so chrooted names behave
// like path lookups.
func (f *File) Stat() (fs.FileInfo, error) {
	info, err := f.fs.fs.Stat(f.file.Name())
	return info, f.wrap("stat", err)
}

// Sync flushes the file when the backend is the host filesystem; in-memory
// files have nothing to flush.
func (f *File) Sync() error {
	s, ok := f.file.(interface{ Sync() error })
	if !ok {
		return nil
	}
	return f.wrap("sync", s.Sync())
}
