// Package gitvcs implements vcs.Client on top of the git package, for
// deployments that keep sources and published archives in git repositories.
//
// Repository locations use the Subversion layout the builder speaks:
// "<repo>/trunk/" exports the default branch and "<repo>/tags/<name>/"
// exports the tag (or branch) called name.
package gitvcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	billyfs "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
	"github.com/tellyworth/plugin-directory-old-experiment/git"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

const (
	// DefaultAuthorName is used for commits when no author is configured.
	DefaultAuthorName = "zipbuilder"
	// DefaultAuthorEmail is used for commits when no author is configured.
	DefaultAuthorEmail = "zipbuilder@localhost"
)

// Client implements vcs.Client with go-git.
type Client struct {
	fs     fs.Filesystem
	author git.Signature
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	repos map[string]*checkout
}

type checkout struct {
	root string
	repo *git.Repo
}

var _ vcs.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithFilesystem sets the filesystem working copies and exports live on.
// Defaults to the host filesystem.
func WithFilesystem(fsys fs.Filesystem) Option {
	return func(c *Client) {
		c.fs = fsys
	}
}

// WithAuthor sets the commit author.
func WithAuthor(name, email string) Option {
	return func(c *Client) {
		if name != "" {
			c.author.Name = name
		}
		if email != "" {
			c.author.Email = email
		}
	}
}

// WithClock sets the time source for commit signatures.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		fs:     billyfs.NewBaseOSFS(),
		author: git.Signature{Name: DefaultAuthorName, Email: DefaultAuthorEmail},
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		repos:  make(map[string]*checkout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Checkout implements vcs.Client. git has no partial checkouts, so the
// depth is ignored and the full default branch is cloned.
func (c *Client) Checkout(ctx context.Context, url, dest string, opts vcs.CheckoutOptions) vcs.Result {
	repo, err := git.Clone(ctx, url, &git.Options{
		FS:      c.fs,
		Workdir: dest,
		Auth:    authFor(opts.Credentials),
	})
	if err != nil {
		return vcs.FailedErr(err)
	}

	root := path.Clean(dest)
	c.mu.Lock()
	c.pruneLocked()
	c.repos[root] = &checkout{root: root, repo: repo}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "cloned destination", "url", url, "dest", root)
	return vcs.OK()
}

// Update implements vcs.Client. A clone already holds every committed file,
// so updating restores p to its committed state, which also discards a
// failed rebuild. Directories are left alone.
func (c *Client) Update(ctx context.Context, p string, _ vcs.UpdateOptions) vcs.Result {
	co, rel, err := c.lookup(p)
	if err != nil {
		return vcs.FailedErr(err)
	}
	if rel == "." {
		return vcs.OK()
	}

	info, err := c.fs.Lstat(p)
	if err == nil && info.IsDir() {
		return vcs.OK()
	}

	if err := co.repo.Restore(ctx, rel); err != nil {
		return vcs.FailedErr(err)
	}
	return vcs.OK()
}

// Export implements vcs.Client.
func (c *Client) Export(ctx context.Context, url, dest string, opts vcs.ExportOptions) vcs.Result {
	repoURL, ref, err := ParseExportURL(url)
	if err != nil {
		return vcs.FailedErr(err)
	}

	err = git.Export(ctx, repoURL, c.fs, dest, git.ExportOptions{
		Ref:        ref,
		Submodules: !opts.IgnoreExternals,
		Auth:       authFor(opts.Credentials),
	})
	if err != nil {
		return vcs.FailedErr(err)
	}
	return vcs.OK()
}

// Add implements vcs.Client.
func (c *Client) Add(ctx context.Context, p string) vcs.Result {
	co, rel, err := c.lookup(p)
	if err != nil {
		return vcs.FailedErr(err)
	}
	if err := co.repo.Add(ctx, rel); err != nil {
		return vcs.FailedErr(err)
	}
	return vcs.OK()
}

// Commit implements vcs.Client. The commit is pushed to the clone's origin;
// a commit that cannot be pushed is reported as failed.
func (c *Client) Commit(ctx context.Context, p, message string, opts vcs.CommitOptions) vcs.Result {
	co, _, err := c.lookup(p)
	if err != nil {
		return vcs.FailedErr(err)
	}

	who := c.author
	who.When = c.now()

	sha, err := co.repo.Commit(ctx, message, who, git.CommitOpts{})
	if errors.Is(err, git.ErrEmptyCommit) {
		return vcs.Failed()
	}
	if err != nil {
		return vcs.FailedErr(err)
	}

	// Credentials given at commit time take precedence over checkout ones.
	repo := co.repo
	if !opts.Credentials.IsZero() {
		repo = repo.WithAuth(authFor(opts.Credentials))
	}
	if err := repo.Push(ctx, ""); err != nil && !errors.Is(err, git.ErrAlreadyUpToDate) {
		return vcs.Failed(fmt.Sprintf("committed %s locally but push failed: %v", short(sha), err))
	}

	c.logger.DebugContext(ctx, "pushed commit", "sha", sha, "root", co.root)
	return vcs.OK()
}

// pruneLocked forgets checkouts whose working copy no longer exists, which
// is how released workspaces leave the client. c.mu must be held.
func (c *Client) pruneLocked() {
	for root := range c.repos {
		if ok, err := c.fs.Exists(root); err == nil && !ok {
			delete(c.repos, root)
		}
	}
}

// lookup finds the checkout containing p and p's path relative to it.
func (c *Client) lookup(p string) (*checkout, string, error) {
	p = path.Clean(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	var best *checkout
	for root, co := range c.repos {
		if p != root && !strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/") {
			continue
		}
		if best == nil || len(root) > len(best.root) {
			best = co
		}
	}
	if best == nil {
		return nil, "", fmt.Errorf("%s is not inside a checked out working copy", p)
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(p, best.root), "/")
	if rel == "" {
		rel = "."
	}
	return best, rel, nil
}

// ParseExportURL splits a Subversion style location into the repository URL
// and the ref to export. "<repo>/trunk/" yields an empty ref (remote HEAD).
func ParseExportURL(url string) (repoURL, ref string, err error) {
	trimmed := strings.TrimSuffix(url, "/")

	if repo, ok := strings.CutSuffix(trimmed, "/trunk"); ok && repo != "" {
		return repo, "", nil
	}

	if i := strings.LastIndex(trimmed, "/tags/"); i > 0 {
		name := trimmed[i+len("/tags/"):]
		if name != "" && !strings.Contains(name, "/") {
			return trimmed[:i], name, nil
		}
	}

	return "", "", fmt.Errorf("unsupported export location %q: want <repo>/trunk/ or <repo>/tags/<name>/", url)
}

//nolint:ireturn // git.AuthProvider is the configured contract.
func authFor(creds vcs.Credentials) git.AuthProvider {
	if creds.IsZero() {
		return nil
	}
	return git.BasicAuth(creds.Username, creds.Password)
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
