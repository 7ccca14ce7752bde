package git

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
)

// ExportOptions configures Export.
type ExportOptions struct {
	// Ref names the tag or branch to export. Empty exports the remote HEAD.
	// Short names are tried as a tag first, then as a branch.
	Ref string

	// Submodules checks out submodules into the exported tree.
	Submodules bool

	Auth AuthProvider
}

// Export writes the tree of remoteURL at opts.Ref into dir on fsys. Object
// storage is kept in memory, so dir receives the files only and no .git
// entry. dir is created when missing.
func Export(ctx context.Context, remoteURL string, fsys fs.Filesystem, dir string, opts ExportOptions) error {
	if remoteURL == "" {
		return WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}

	billyFS, err := billyOf(fsys)
	if err != nil {
		return err
	}
	if err := billyFS.MkdirAll(dir, 0o755); err != nil {
		return WrapErrorf(err, "failed to create export directory %q", dir)
	}
	worktreeFS, err := billyFS.Chroot(dir)
	if err != nil {
		return WrapErrorf(err, "failed to chroot to %q", dir)
	}

	authMethod, err := resolveAuth(opts.Auth, remoteURL)
	if err != nil {
		return err
	}

	candidates := []plumbing.ReferenceName{""}
	if opts.Ref != "" {
		candidates = referenceCandidates(opts.Ref)
	}

	var lastErr error
	for _, ref := range candidates {
		cloneOpts := &git.CloneOptions{
			URL:           remoteURL,
			Auth:          authMethod,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         1,
			Tags:          git.NoTags,
		}
		if opts.Submodules {
			cloneOpts.RecurseSubmodules = git.DefaultSubmoduleRecursionDepth
			cloneOpts.ShallowSubmodules = true
		}

		_, lastErr = git.CloneContext(ctx, memory.NewStorage(), worktreeFS, cloneOpts)
		if lastErr == nil {
			return nil
		}
		if !isMissingRef(lastErr) {
			break
		}
	}

	if isMissingRef(lastErr) {
		return WrapErrorf(ErrResolveFailed, "%s has no ref %q", redactURL(remoteURL), opts.Ref)
	}
	return WrapErrorf(lastErr, "failed to export %s", redactURL(remoteURL))
}

func referenceCandidates(ref string) []plumbing.ReferenceName {
	name := plumbing.ReferenceName(ref)
	if name.IsTag() || name.IsBranch() || name == plumbing.HEAD {
		return []plumbing.ReferenceName{name}
	}
	return []plumbing.ReferenceName{
		plumbing.NewTagReferenceName(ref),
		plumbing.NewBranchReferenceName(ref),
	}
}

func isMissingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.Is(err, plumbing.ErrReferenceNotFound) ||
		errors.As(err, &noMatch) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository)
}
