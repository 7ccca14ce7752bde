package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/tellyworth/plugin-directory-old-experiment/builder"
	"github.com/tellyworth/plugin-directory-old-experiment/config"
	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/metrics"
	"github.com/tellyworth/plugin-directory-old-experiment/purge"
)

func newBuildCommand(a *app) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "build <slug> <version>...",
		Short: "Build the archives of versions of a plugin and publish them",
		Long: `Build the archives of versions of a plugin and publish them.

Use "trunk" for the development version. All archives built by one run are
published in a single commit; versions that fail are listed as skipped.`,
		Example: `  zipbuilder build akismet trunk 5.3 5.3.1
  zipbuilder build akismet 5.3.1 --context "akismet: r3012345"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, builder.Request{
				Slug:     args[0],
				Versions: args[1:],
				Context:  message,
			})
		},
	}
	cmd.Flags().StringVar(&message, "context", "", "commit message for the archive repository")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, req builder.Request) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := a.logger(cfg)

	if !cfg.PublishingEnabled() {
		logger.WarnContext(ctx, "not building", "reason", errDisabled)
		return nil
	}

	var (
		m    metrics.Metrics = metrics.Noop{}
		prom *metrics.Prom
	)
	if cfg.Metrics.Textfile != "" {
		if prom, err = metrics.NewProm(cfg.Metrics.Namespace); err != nil {
			return err
		}
		m = prom
	}

	b := builder.New(a.newClient(cfg, logger), builderOptions(cfg, logger, m)...)
	res, buildErr := b.Build(ctx, req)

	if prom != nil {
		if err := prom.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.WarnContext(ctx, "failed to write metrics", "error", err)
		}
	}
	if res != nil {
		report(cmd.OutOrStdout(), res)
	}
	return buildErr
}

func builderOptions(cfg *config.Config, logger *slog.Logger, m metrics.Metrics) []builder.Option {
	opts := []builder.Option{
		builder.WithLogger(logger),
		builder.WithDestination(cfg.SVNURL, cfg.DestinationCredentials()),
		builder.WithSourceRoot(cfg.SourceRoot),
		builder.WithExternalsAllowed(cfg.ExternalsAllowed...),
		builder.WithTmpDir(cfg.TmpDir),
		builder.WithExportTimeout(cfg.Timeouts.Export),
		builder.WithCommitTimeout(cfg.Timeouts.Commit),
		builder.WithAllowNoopCommit(cfg.AllowNoopCommit),
		builder.WithMetrics(m),
	}
	if cfg.XAccelRedirectLocation != "" && len(cfg.Purge.Hosts) > 0 {
		opts = append(opts, builder.WithInvalidator(&purge.HTTPPurger{
			Hosts:       cfg.Purge.Hosts,
			Location:    cfg.XAccelRedirectLocation,
			Client:      &http.Client{Timeout: cfg.Purge.Timeout},
			Concurrency: cfg.Purge.Concurrency,
			Logger:      logger,
		}))
	}
	return opts
}

// report prints one line per version.
func report(w io.Writer, res *builder.BatchResult) {
	for _, v := range res.Versions {
		switch {
		case v.Status == builder.StatusBuilt:
			fmt.Fprintf(w, "built    %-12s %s %d bytes sha256:%s\n",
				v.Version, builder.ArchiveName(res.Slug, v.Version), v.Archive.Size, v.Archive.SHA256)
		case v.Retryable:
			fmt.Fprintf(w, "skipped  %-12s %s (%s, retryable)\n",
				v.Version, v.Err, zberrors.GetCode(v.Err))
		default:
			fmt.Fprintf(w, "skipped  %-12s %s (%s)\n",
				v.Version, v.Err, zberrors.GetCode(v.Err))
		}
	}
	if res.NoopCommit {
		fmt.Fprintln(w, "nothing to commit")
	}
}
