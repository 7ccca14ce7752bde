package fs

import (
	"io"
	"io/fs"
)

// File is an open file of a Filesystem. Build trees are read through it and
// archives are written through it.
type File interface {
	io.ReadWriteCloser

	// Name returns the name the file was opened with.
	Name() string
	// Stat describes the file.
	Stat() (fs.FileInfo, error)
	// Sync flushes written data to stable storage. Backends without
	// durable storage return nil.
	Sync() error
}
