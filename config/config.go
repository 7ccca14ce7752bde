// Package config loads the settings of the ZIP builder.
//
// Settings come from three layers, later ones winning:
//
//  1. built-in defaults
//  2. an optional CUE file, validated against the embedded #Config schema
//  3. environment variables prefixed with PLUGIN_ZIP_
//
// Nested keys map onto environment variables with "." replaced by "_", so
// purge.hosts is read from PLUGIN_ZIP_PURGE_HOSTS. List values in the
// environment are comma separated.
//
// # Basic Usage
//
//	cfg, path, err := config.Load(ctx, config.LoadOptions{})
//	if err != nil {
//	    return err
//	}
//	if !cfg.PublishingEnabled() {
//	    log.Warn("no destination configured")
//	}
//
// The file is looked up as zipbuilder/config.cue in the XDG config
// directories unless LoadOptions.Path names one explicitly.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

const (
	// AppName names the configuration directory.
	AppName = "zipbuilder"
	// FileName is the config file looked up below AppName.
	FileName = "config.cue"
	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "PLUGIN_ZIP"
)

// Backends.
const (
	BackendSVN = "svn"
	BackendGit = "git"
)

// Config holds the resolved settings.
type Config struct {
	// SVNURL is the destination repository. Publishing is disabled when empty.
	SVNURL  string `mapstructure:"svn_url"`
	SVNUser string `mapstructure:"svn_user"`
	SVNPass string `mapstructure:"svn_pass"`

	SourceRoot string `mapstructure:"source_root"`
	Backend    string `mapstructure:"backend"`
	TmpDir     string `mapstructure:"tmp_dir"`

	XAccelRedirectLocation string   `mapstructure:"x_accel_redirect_location"`
	ExternalsAllowed       []string `mapstructure:"externals_allowed"`
	AllowNoopCommit        bool     `mapstructure:"allow_noop_commit"`

	Purge    PurgeConfig    `mapstructure:"purge"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Git      GitConfig      `mapstructure:"git"`
	Log      LogConfig      `mapstructure:"log"`
}

// PurgeConfig configures cache invalidation.
type PurgeConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// TimeoutsConfig bounds repository operations. Zero disables a bound.
type TimeoutsConfig struct {
	Export time.Duration `mapstructure:"export"`
	Commit time.Duration `mapstructure:"commit"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics of a run in the node
	// exporter textfile format.
	Textfile  string `mapstructure:"textfile"`
	Namespace string `mapstructure:"namespace"`
}

// GitConfig sets the identity of commits made by the git backend.
type GitConfig struct {
	AuthorName  string `mapstructure:"author_name"`
	AuthorEmail string `mapstructure:"author_email"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		SourceRoot:       "http://plugins.svn.wordpress.org",
		Backend:          BackendSVN,
		TmpDir:           "/tmp/plugin-zip-builder",
		ExternalsAllowed: []string{"buddypress"},
		Purge: PurgeConfig{
			Hosts:       []string{},
			Timeout:     10 * time.Second,
			Concurrency: 4,
		},
		Timeouts: TimeoutsConfig{
			Export: 10 * time.Minute,
			Commit: 10 * time.Minute,
		},
		Metrics: MetricsConfig{Namespace: "zipbuilder"},
		Git: GitConfig{
			AuthorName:  "zipbuilder",
			AuthorEmail: "zipbuilder@localhost",
		},
		Log: LogConfig{Level: "info"},
	}
}

// PublishingEnabled reports whether a destination repository is configured.
func (c *Config) PublishingEnabled() bool {
	return c.SVNURL != ""
}

// DestinationCredentials returns the credentials for the destination.
func (c *Config) DestinationCredentials() vcs.Credentials {
	return vcs.Credentials{Username: c.SVNUser, Password: c.SVNPass}
}

// LogLevel returns the configured level, info when it is not recognised.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.SVNPass != "" {
		cp.SVNPass = "********"
	}
	cp.ExternalsAllowed = append([]string(nil), c.ExternalsAllowed...)
	cp.Purge.Hosts = append([]string(nil), c.Purge.Hosts...)
	return &cp
}
