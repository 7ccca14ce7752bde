package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tellyworth/plugin-directory-old-experiment/archive"
	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
	"github.com/tellyworth/plugin-directory-old-experiment/workspace"
)

// state is a step of a version build.
type state int

const (
	stateExporting state = iota
	stateNormalizing
	stateGenerating
	stateCleaningUp
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateExporting:
		return "exporting"
	case stateNormalizing:
		return "normalizing"
	case stateGenerating:
		return "generating"
	case stateCleaningUp:
		return "cleaning-up"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// buildVersion builds the archive of one version into the destination
// working copy and stages it. Failures are reported in the result, never
// returned, and leave the working copy as it was.
func (b *Builder) buildVersion(ctx context.Context, r *run, version string) VersionResult {
	start := time.Now()
	vr := VersionResult{
		Version:     version,
		Kind:        KindOf(version),
		ArchivePath: r.ws.Join(r.req.Slug, archive.Name(r.req.Slug, version)),
	}
	vr.BuildDir = vr.ArchivePath + "-files"
	logger := r.logger.With("version", version)

	if err := ctx.Err(); err != nil {
		vr.Status = StatusSkipped
		vr.Err = err
		logger.WarnContext(ctx, "version skipped, build cancelled")
		return vr
	}

	// Bring down the archive being replaced, if the destination has one.
	if up := b.client.Update(ctx, vr.ArchivePath, vcs.UpdateOptions{}); !up.Succeeded {
		logger.DebugContext(ctx, "no existing archive fetched", "error", up.FirstError())
	}

	var (
		cause error
		st    = stateExporting
	)
	transition := func(next state) {
		logger.DebugContext(ctx, "version state", "from", st, "to", next)
		st = next
	}
	failed := func(err error) {
		cause = err
		transition(stateCleaningUp)
	}

	for st != stateDone && st != stateFailed {
		switch st {
		case stateExporting:
			if err := b.makeBuildDir(vr.BuildDir); err != nil {
				failed(zberrors.WrapWithContext(err, zberrors.CodeExportFailed, "failed to create build directory",
					map[string]interface{}{"dir": vr.BuildDir}))
				continue
			}
			if err := b.exporter.Export(ctx, r.req.Slug, version, vr.BuildDir); err != nil {
				failed(err)
				continue
			}
			transition(stateNormalizing)

		case stateNormalizing:
			if _, err := b.normalizer.Normalize(ctx, vr.BuildDir); err != nil {
				failed(err)
				continue
			}
			transition(stateGenerating)

		case stateGenerating:
			res, err := b.generator.Generate(ctx, vr.BuildDir, r.req.Slug, vr.ArchivePath)
			if err != nil {
				failed(err)
				continue
			}
			vr.Archive = res
			transition(stateCleaningUp)

		case stateCleaningUp:
			if err := b.fs.RemoveAll(vr.BuildDir); err != nil {
				logger.WarnContext(ctx, "failed to remove build directory", "dir", vr.BuildDir, "error", err)
			}
			if cause != nil {
				transition(stateFailed)
			} else {
				transition(stateDone)
			}
		}
	}

	if cause == nil {
		if add := b.client.Add(ctx, vr.ArchivePath); !add.Succeeded {
			cause = zberrors.WrapWithContext(add.Err(), zberrors.CodePublishFailed, "failed to stage archive",
				map[string]interface{}{"archive": vr.ArchivePath})
		}
	}

	vr.Duration = time.Since(start)
	if cause != nil {
		b.revert(ctx, r, &vr)
		vr.Status = StatusSkipped
		vr.Err = cause
		vr.Retryable = zberrors.IsRetryable(cause)
		vr.Archive = nil
		logger.WarnContext(ctx, "version skipped",
			"error", cause, "code", zberrors.GetCode(cause), "status", zberrors.HTTPStatus(cause), "retryable", vr.Retryable)
		return vr
	}

	vr.Status = StatusBuilt
	logger.InfoContext(ctx, "version built",
		"archive", vr.ArchivePath, "size", vr.Archive.Size, "sha256", vr.Archive.SHA256, "duration", vr.Duration.Round(time.Millisecond))
	return vr
}

// revert restores the archive path to its committed state so a failed
// attempt leaves nothing staged. Update keeps local modifications, so the
// local copy is removed first and the committed one fetched again.
func (b *Builder) revert(ctx context.Context, r *run, vr *VersionResult) {
	// A cancelled run must still clean up after itself.
	ctx = context.WithoutCancel(ctx)
	if err := b.fs.RemoveAll(vr.ArchivePath); err != nil {
		r.logger.WarnContext(ctx, "failed to remove archive", "version", vr.Version, "archive", vr.ArchivePath, "error", err)
	}
	if up := b.client.Update(ctx, vr.ArchivePath, vcs.UpdateOptions{}); !up.Succeeded {
		r.logger.WarnContext(ctx, "failed to revert archive", "version", vr.Version, "archive", vr.ArchivePath, "error", up.FirstError())
	}
}

func (b *Builder) makeBuildDir(dir string) error {
	if err := b.fs.MkdirAll(dir, workspace.DirMode); err != nil {
		return err
	}
	if err := b.fs.Chmod(dir, workspace.DirMode); err != nil && !errors.Is(err, fs.ErrNotSupported) {
		return err
	}
	return nil
}
