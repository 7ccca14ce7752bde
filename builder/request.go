package builder

import (
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/tellyworth/plugin-directory-old-experiment/archive"
	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/source"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

// Request asks for archives of versions of one package.
type Request struct {
	Slug     string
	Versions []string
	// Context is used as the commit message when set.
	Context string
}

// Validate checks the request. Errors carry CodeInvalidInput.
func (r Request) Validate() error {
	if err := validName("slug", r.Slug); err != nil {
		return err
	}
	if len(r.Versions) == 0 {
		return zberrors.New(zberrors.CodeInvalidInput, "at least one version is required")
	}
	for _, v := range r.Versions {
		if err := validName("version", v); err != nil {
			return err
		}
	}
	return nil
}

func validName(kind, s string) error {
	switch {
	case s == "":
		return zberrors.Newf(zberrors.CodeInvalidInput, "%s is required", kind)
	case s == "." || s == "..":
		return zberrors.Newf(zberrors.CodeInvalidInput, "invalid %s %q", kind, s)
	case strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0):
		return zberrors.Newf(zberrors.CodeInvalidInput, "%s %q must not contain path separators", kind, s)
	case strings.TrimSpace(s) != s:
		return zberrors.Newf(zberrors.CodeInvalidInput, "%s %q has surrounding whitespace", kind, s)
	}
	return nil
}

// versions returns the requested versions without duplicates, keeping the
// first occurrence of each.
func (r Request) versions() []string {
	seen := make(map[string]bool, len(r.Versions))
	out := make([]string, 0, len(r.Versions))
	for _, v := range r.Versions {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// CommitMessage returns the message the batch commit uses.
func (r Request) CommitMessage() string {
	if r.Context != "" {
		return r.Context
	}
	return fmt.Sprintf("Updated ZIPs for %s.", r.Slug)
}

// VersionKind classifies version labels for logs and metrics.
type VersionKind string

const (
	KindTrunk  VersionKind = "trunk"
	KindSemver VersionKind = "semver"
	KindTag    VersionKind = "tag"
)

// KindOf returns the kind of version.
func KindOf(version string) VersionKind {
	if version == source.Trunk {
		return KindTrunk
	}
	if _, err := semver.NewVersion(version); err == nil {
		return KindSemver
	}
	return KindTag
}

// ArchiveName returns the file name of the archive of version of slug.
func ArchiveName(slug, version string) string {
	return archive.Name(slug, version)
}

// Status is the outcome of one version.
type Status string

const (
	StatusBuilt   Status = "built"
	StatusSkipped Status = "skipped"
)

// VersionResult reports one version of a batch.
type VersionResult struct {
	Version     string
	Kind        VersionKind
	ArchivePath string
	BuildDir    string
	Status      Status
	// Err explains a skipped version.
	Err error
	// Retryable marks a skip that a later run with the same input may turn
	// into a build, such as an export that timed out.
	Retryable bool
	Archive   *archive.Result
	Duration  time.Duration
}

// BatchResult reports a batch build.
type BatchResult struct {
	Slug      string
	Workspace string
	Versions  []VersionResult
	Commit    vcs.Result
	// NoopCommit is set when a commit that changed nothing was accepted.
	NoopCommit bool
	// Disabled is set when no destination is configured and nothing ran.
	Disabled bool
}

// Built returns the versions that produced an archive.
func (b *BatchResult) Built() []string {
	return b.filter(StatusBuilt)
}

// Skipped returns the versions that failed.
func (b *BatchResult) Skipped() []string {
	return b.filter(StatusSkipped)
}

// OK reports whether the batch ran and its commit was accepted.
func (b *BatchResult) OK() bool {
	return !b.Disabled && (b.Commit.Succeeded || b.NoopCommit)
}

func (b *BatchResult) filter(s Status) []string {
	var out []string
	for _, v := range b.Versions {
		if v.Status == s {
			out = append(out, v.Version)
		}
	}
	return out
}
