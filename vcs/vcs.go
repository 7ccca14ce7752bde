// Package vcs defines the version-control operations the ZIP builder needs:
// exporting source trees and publishing archives to a destination working
// copy.
//
// Operations report a Result instead of an error. Callers decide whether a
// failure is fatal for the run or only for one version, and the collected
// error messages are kept for the run report.
package vcs

import (
	"context"
	"fmt"
	"strings"
)

// Result is the outcome of one version-control operation.
type Result struct {
	Succeeded bool
	Errors    []string
}

// OK returns a successful Result.
func OK() Result {
	return Result{Succeeded: true}
}

// Failed returns an unsuccessful Result carrying msgs. Empty messages are dropped.
func Failed(msgs ...string) Result {
	r := Result{}
	for _, m := range msgs {
		if m = strings.TrimSpace(m); m != "" {
			r.Errors = append(r.Errors, m)
		}
	}
	return r
}

// FailedErr returns an unsuccessful Result describing err.
func FailedErr(err error) Result {
	if err == nil {
		return Failed()
	}
	return Failed(err.Error())
}

// FirstError returns the first error message, or "" when there is none.
func (r Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

// Err converts an unsuccessful Result into an error. It returns nil on success.
func (r Result) Err() error {
	if r.Succeeded {
		return nil
	}
	if len(r.Errors) == 0 {
		return fmt.Errorf("vcs operation failed without error output")
	}
	return fmt.Errorf("vcs operation failed: %s", strings.Join(r.Errors, "; "))
}

// Depth limits how much of a tree a checkout or update brings in.
type Depth int

const (
	// DepthInfinity fetches the full tree.
	DepthInfinity Depth = iota
	// DepthEmpty fetches only the target directory itself.
	DepthEmpty
	// DepthFiles fetches the directory and its immediate files.
	DepthFiles
	// DepthImmediates fetches immediate files and empty child directories.
	DepthImmediates
)

// String returns the Subversion spelling of the depth.
func (d Depth) String() string {
	switch d {
	case DepthEmpty:
		return "empty"
	case DepthFiles:
		return "files"
	case DepthImmediates:
		return "immediates"
	default:
		return "infinity"
	}
}

// Credentials authenticate against a repository. The zero value means anonymous.
type Credentials struct {
	Username string
	Password string
}

// IsZero reports whether no credentials are set.
func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

// CheckoutOptions configures Checkout.
type CheckoutOptions struct {
	Depth       Depth
	Credentials Credentials
}

// UpdateOptions configures Update.
type UpdateOptions struct {
	Depth Depth
	// SetDepth makes Depth sticky for the updated path instead of only
	// limiting this update.
	SetDepth bool
}

// ExportOptions configures Export.
type ExportOptions struct {
	// IgnoreExternals skips externally linked trees.
	IgnoreExternals bool
	Credentials     Credentials
}

// CommitOptions configures Commit.
type CommitOptions struct {
	Credentials Credentials
}

// Client is a version-control client.
//
// Paths are host paths of the destination working copy. URLs address
// repository locations; Export writes a clean tree without metadata to dest.
type Client interface {
	// Checkout creates a working copy of url at dest.
	Checkout(ctx context.Context, url, dest string, opts CheckoutOptions) Result
	// Update brings path up to date with the repository, fetching what the
	// working copy lacks. Local modifications are not guaranteed to be
	// discarded; remove a file first to get its committed content back.
	Update(ctx context.Context, path string, opts UpdateOptions) Result
	// Export writes the tree at url into dest.
	Export(ctx context.Context, url, dest string, opts ExportOptions) Result
	// Add schedules path for addition in the next commit. Already versioned
	// paths are accepted.
	Add(ctx context.Context, path string) Result
	// Commit records every pending change below path. A commit that changes
	// nothing is reported as unsuccessful without error messages.
	Commit(ctx context.Context, path, message string, opts CommitOptions) Result
}
