package git

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Add stages files in the worktree for the next commit.
// Glob patterns are expanded; paths that don't exist are silently ignored
// (matching git add behavior). Directories are staged recursively.
func (r *Repo) Add(_ context.Context, paths ...string) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot add files in bare repository")
	}

	workdirFS := r.worktree.Filesystem
	var pathsToAdd []string

	for _, p := range paths {
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[") {
			matches, err := util.Glob(workdirFS, p)
			if err != nil {
				return WrapErrorf(err, "invalid glob pattern %q", p)
			}
			pathsToAdd = append(pathsToAdd, matches...)
			continue
		}
		if _, err := workdirFS.Lstat(p); err == nil {
			pathsToAdd = append(pathsToAdd, p)
		}
	}

	for _, p := range pathsToAdd {
		if _, err := r.worktree.Add(p); err != nil {
			return WrapErrorf(err, "failed to add path %q", p)
		}
	}
	return nil
}

// Commit creates a new commit with the specified message and author/committer.
// It returns the SHA of the new commit, or ErrEmptyCommit when nothing is
// staged and opts.AllowEmpty is false.
func (r *Repo) Commit(_ context.Context, msg string, who Signature, opts CommitOpts) (string, error) {
	if r.worktree == nil {
		return "", WrapError(ErrInvalidRef, "cannot commit in bare repository")
	}
	if msg == "" {
		return "", WrapError(ErrInvalidRef, "commit message cannot be empty")
	}
	if who.Name == "" || who.Email == "" {
		return "", WrapError(ErrInvalidRef, "committer name and email are required")
	}

	status, err := r.worktree.Status()
	if err != nil {
		return "", WrapError(err, "failed to get worktree status")
	}

	stagedCount := 0
	for _, fileStatus := range status {
		if fileStatus.Staging != git.Untracked && fileStatus.Staging != git.Unmodified {
			stagedCount++
		}
	}
	if stagedCount == 0 && !opts.AllowEmpty {
		return "", WrapError(ErrEmptyCommit, "no changes staged for commit")
	}

	sig := &object.Signature{Name: who.Name, Email: who.Email, When: who.When}
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: opts.AllowEmpty,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrEmptyCommit
		}
		return "", WrapError(err, "failed to create commit")
	}
	return hash.String(), nil
}

// Restore puts the file at p back into its committed state: tracked files get
// their HEAD content and index entry back, untracked files are deleted.
func (r *Repo) Restore(_ context.Context, p string) error {
	if r.worktree == nil {
		return WrapError(ErrInvalidRef, "cannot restore files in bare repository")
	}
	p = path.Clean(strings.TrimPrefix(p, "/"))

	file, err := r.headFile(p)
	if err != nil {
		return err
	}
	if file == nil {
		return r.forget(p)
	}

	reader, err := file.Reader()
	if err != nil {
		return WrapErrorf(err, "failed to read committed %q", p)
	}
	defer reader.Close()

	mode, err := file.Mode.ToOSFileMode()
	if err != nil {
		mode = 0o644
	}
	out, err := r.worktree.Filesystem.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return WrapErrorf(err, "failed to open %q", p)
	}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		return WrapErrorf(err, "failed to write %q", p)
	}
	if err := out.Close(); err != nil {
		return WrapErrorf(err, "failed to close %q", p)
	}

	if _, err := r.worktree.Add(p); err != nil {
		return WrapErrorf(err, "failed to reset index entry %q", p)
	}
	return nil
}

// headFile returns the committed file at p, or nil when HEAD has none.
func (r *Repo) headFile(p string) (*object.File, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(err, "failed to get HEAD reference")
	}

	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, WrapError(err, "failed to load HEAD commit")
	}

	file, err := commit.File(p)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapErrorf(err, "failed to look up %q", p)
	}
	return file, nil
}

// forget drops an uncommitted file from the index and the worktree.
func (r *Repo) forget(p string) error {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return WrapError(err, "failed to read index")
	}

	if _, err := idx.Entry(p); err == nil {
		if _, err := r.worktree.Remove(p); err != nil {
			return WrapErrorf(err, "failed to unstage %q", p)
		}
	} else if !errors.Is(err, index.ErrEntryNotFound) {
		return WrapErrorf(err, "failed to look up index entry %q", p)
	}

	if err := util.RemoveAll(r.worktree.Filesystem, p); err != nil {
		return WrapErrorf(err, "failed to remove %q", p)
	}
	return nil
}
