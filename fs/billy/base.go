package billy

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// hostFS resolves every path against "/" so names handed to it are host
// paths, which svn working copies need.
type hostFS struct {
	osfs.ChrootOS
}

//nolint:ireturn
func (*hostFS) Chroot(dir string) (billy.Filesystem, error) { return osfs.New(dir), nil }

func (*hostFS) Root() string { return "/" }

// NewBaseOSFS returns the host filesystem used by the builder outside tests.
func NewBaseOSFS() *FS {
	return &FS{fs: &hostFS{}, osRoot: "/"}
}
