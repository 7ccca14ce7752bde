package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tellyworth/plugin-directory-old-experiment/config"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs/gitvcs"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs/svn"
)

var (
	// Version is the release version (set via -ldflags).
	Version = "dev"
	// Commit is the source revision (set via -ldflags).
	Commit = "unknown"
)

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// app holds the state shared by the commands of one invocation.
type app struct {
	cfgFile string
	verbose bool

	stdout io.Writer
	stderr io.Writer

	// newClient creates the repository client for cfg.
	newClient func(cfg *config.Config, logger *slog.Logger) vcs.Client
}

func newApp() *app {
	return &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		newClient: newVCSClient,
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "zipbuilder",
		Short: "Build and publish plugin ZIP archives",
		Long: `Build and publish plugin ZIP archives.

Each requested version is exported from the source repository, packed into
a deterministic archive and committed to the archive repository together
with the other versions of the same run. A version that fails is skipped
without affecting the others.

Configuration is read from $XDG_CONFIG_HOME/zipbuilder/config.cue and from
PLUGIN_ZIP_* environment variables.`,
		SilenceUsage: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/zipbuilder/config.cue)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newBuildCommand(a))
	root.AddCommand(newConfigCommand(a))
	root.AddCommand(newVersionCommand())
	return root
}

func execute() {
	a := newApp()
	if err := fang.Execute(
		context.Background(),
		newRootCommand(a),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, _, err := config.Load(ctx, config.LoadOptions{Path: a.cfgFile})
	return cfg, err
}

// logger returns a charm logger on stderr as a slog.Logger.
func (a *app) logger(cfg *config.Config) *slog.Logger {
	level := log.Level(cfg.LogLevel())
	if a.verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		Prefix:          "zipbuilder",
		ReportTimestamp: true,
	})
	return slog.New(handler)
}

func newVCSClient(cfg *config.Config, logger *slog.Logger) vcs.Client {
	if cfg.Backend == config.BackendGit {
		return gitvcs.New(
			gitvcs.WithAuthor(cfg.Git.AuthorName, cfg.Git.AuthorEmail),
			gitvcs.WithLogger(logger),
		)
	}
	return svn.New(svn.WithLogger(logger))
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "zipbuilder "+versionString())
			return err
		},
	}
}

func newConfigCommand(a *app) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration as CUE, secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, file, err := config.Load(cmd.Context(), config.LoadOptions{Path: a.cfgFile})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if file != "" {
				fmt.Fprintf(out, "// loaded from %s\n", file)
			}
			_, err = io.WriteString(out, config.GenerateCUE(cfg.Redacted()))
			return err
		},
	})
	return cfgCmd
}

// errDisabled is reported in verbose output when publishing is off.
var errDisabled = errors.New("no destination repository configured (set PLUGIN_ZIP_SVN_URL)")
