package git

import (
	"context"
	"fmt"
	"time"

	gobilly "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
)

const (
	// DefaultObjectCacheBytes bounds the in-memory object cache.
	DefaultObjectCacheBytes = 64 << 20

	// DefaultRemoteName is the remote pushed to when none is named.
	DefaultRemoteName = "origin"
)

// Options locates a repository on a filesystem.
type Options struct {
	// FS holds the repository. Required, and must come from fs/billy.
	FS fs.Filesystem

	// Workdir is the worktree root inside FS. Empty means the root of FS.
	Workdir string

	// Bare repositories keep their objects at Workdir and have no worktree.
	Bare bool

	// ObjectCacheBytes sizes the object LRU; zero selects
	// DefaultObjectCacheBytes.
	ObjectCacheBytes int64

	// Auth supplies credentials for remote URLs. Nil means anonymous.
	Auth AuthProvider

	// ShallowDepth limits Clone to the newest commits of a single branch.
	ShallowDepth int
}

// Validate reports options that cannot open a repository.
func (o *Options) Validate() error {
	switch {
	case o.FS == nil:
		return WrapError(ErrInvalidRef, "FS is required")
	case o.ObjectCacheBytes < 0:
		return WrapErrorf(ErrInvalidRef, "ObjectCacheBytes must not be negative, got %d", o.ObjectCacheBytes)
	case o.ShallowDepth < 0:
		return WrapErrorf(ErrInvalidRef, "ShallowDepth must not be negative, got %d", o.ShallowDepth)
	}
	return nil
}

// resolve validates opts, fills its defaults and returns the object storage
// and worktree filesystem. The worktree is nil for bare repositories.
func resolve(opts *Options) (*filesystem.Storage, gobilly.Filesystem, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, WrapError(err, "invalid options")
	}
	if opts.Workdir == "" {
		opts.Workdir = "."
	}
	if opts.ObjectCacheBytes == 0 {
		opts.ObjectCacheBytes = DefaultObjectCacheBytes
	}

	root, err := billyOf(opts.FS)
	if err != nil {
		return nil, nil, err
	}
	if root, err = root.Chroot(opts.Workdir); err != nil {
		return nil, nil, fmt.Errorf("workdir %q: %w", opts.Workdir, err)
	}
	if opts.Bare {
		return newStorage(root, opts.ObjectCacheBytes), nil, nil
	}

	dotGit, err := root.Chroot(".git")
	if err != nil {
		return nil, nil, fmt.Errorf("workdir %q: .git: %w", opts.Workdir, err)
	}
	return newStorage(dotGit, opts.ObjectCacheBytes), root, nil
}

func wrapRepo(repo *git.Repository, opts *Options) (*Repo, error) {
	r := &Repo{repo: repo, options: *opts}
	if opts.Bare {
		return r, nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree")
	}
	r.worktree = wt
	return r, nil
}

// Init creates an empty repository.
func Init(_ context.Context, opts *Options) (*Repo, error) {
	storage, wt, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	repo, err := git.Init(storage, wt)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}
	return wrapRepo(repo, opts)
}

// Open opens an existing repository.
func Open(_ context.Context, opts *Options) (*Repo, error) {
	storage, wt, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	repo, err := git.Open(storage, wt)
	if err != nil {
		return nil, WrapError(err, "failed to open repository")
	}
	return wrapRepo(repo, opts)
}

// Clone clones remoteURL into the location described by opts, honoring ctx
// cancellation.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}
	storage, wt, err := resolve(opts)
	if err != nil {
		return nil, err
	}

	auth, err := resolveAuth(opts.Auth, remoteURL)
	if err != nil {
		return nil, err
	}
	repo, err := git.CloneContext(ctx, storage, wt, &git.CloneOptions{
		URL:          remoteURL,
		Auth:         auth,
		Depth:        opts.ShallowDepth,
		SingleBranch: opts.ShallowDepth > 0,
	})
	if err != nil {
		return nil, WrapErrorf(err, "failed to clone %s", redactURL(remoteURL))
	}
	return wrapRepo(repo, opts)
}

// Signature identifies the author of a commit.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitOpts configures Commit.
type CommitOpts struct {
	// AllowEmpty records a commit even when the tree is unchanged.
	AllowEmpty bool
}

// Repo is an opened repository.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	options  Options
}

// Raw returns the underlying go-git repository.
func (r *Repo) Raw() *git.Repository {
	return r.repo
}

// WithAuth returns a copy of r that authenticates remote operations with
// provider.
func (r *Repo) WithAuth(provider AuthProvider) *Repo {
	cp := *r
	cp.options.Auth = provider
	return &cp
}
