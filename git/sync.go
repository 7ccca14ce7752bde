package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
)

// Push sends the checked out branch to remote (DefaultRemoteName when empty).
// Other local branches are left alone and the remote is never force-updated:
// a rejected update returns ErrNotFastForward, nothing to send returns
// ErrAlreadyUpToDate.
func (r *Repo) Push(ctx context.Context, remote string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	head, err := r.repo.Head()
	if err != nil {
		return WrapError(ErrResolveFailed, "no checked out branch")
	}
	if !head.Name().IsBranch() {
		return WrapErrorf(ErrInvalidRef, "HEAD is detached at %s", head.Hash())
	}

	rc, err := r.repo.Remote(remote)
	if err != nil {
		return WrapErrorf(ErrResolveFailed, "remote %q not found", remote)
	}

	opts := &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", head.Name(), head.Name()))},
	}
	if opts.Auth, err = resolveAuth(r.options.Auth, rc.Config().URLs[0]); err != nil {
		return err
	}

	err = r.repo.PushContext(ctx, opts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return ErrAlreadyUpToDate
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return ErrNotFastForward
	default:
		return WrapErrorf(err, "failed to push %s to %s", head.Name().Short(), remote)
	}
}
