package git

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Underlying go-git errors are translated to these
// where callers need to branch on them.
var (
	// ErrAlreadyUpToDate means a push had nothing to send.
	ErrAlreadyUpToDate = errors.New("already up to date")
	// ErrAuthRequired means credentials for a remote could not be resolved.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNotFastForward means a push was refused because the remote moved.
	ErrNotFastForward = errors.New("not a fast-forward")
	// ErrInvalidRef covers malformed input and operations on the wrong kind
	// of repository.
	ErrInvalidRef = errors.New("invalid reference")
	// ErrResolveFailed means a remote, branch or tag does not exist.
	ErrResolveFailed = errors.New("cannot resolve revision")
	// ErrEmptyCommit means a commit would record no changes.
	ErrEmptyCommit = errors.New("nothing to commit")
)

// WrapError prefixes err with msg. Nil stays nil.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: msg, err: err}
}

// WrapErrorf is WrapError with a formatted message.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: fmt.Sprintf(format, args...), err: err}
}

type wrapped struct {
	msg string
	err error
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
