package config

import (
	"fmt"
	"net/url"
	"strings"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
)

// Validate checks the settings the schema cannot see, such as values
// supplied through the environment.
func (c *Config) Validate() error {
	var problems []string

	switch c.Backend {
	case BackendSVN, BackendGit:
	default:
		problems = append(problems, fmt.Sprintf("backend %q must be %q or %q", c.Backend, BackendSVN, BackendGit))
	}

	if c.SVNURL != "" {
		if _, err := url.Parse(c.SVNURL); err != nil {
			problems = append(problems, fmt.Sprintf("svn_url: %v", err))
		}
	}
	if c.SourceRoot == "" {
		problems = append(problems, "source_root is required")
	}
	if !strings.HasPrefix(c.TmpDir, "/") {
		problems = append(problems, fmt.Sprintf("tmp_dir %q must be absolute", c.TmpDir))
	}

	if c.Timeouts.Export < 0 || c.Timeouts.Commit < 0 || c.Purge.Timeout < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if c.Purge.Concurrency < 1 {
		problems = append(problems, "purge.concurrency must be at least 1")
	}
	for _, h := range c.Purge.Hosts {
		if strings.TrimSpace(h) == "" || strings.Contains(h, "/") {
			problems = append(problems, fmt.Sprintf("purge host %q is not a host name", h))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if len(problems) > 0 {
		return zberrors.New(zberrors.CodeInvalidConfig,
			fmt.Sprintf("configuration validation failed: %s", strings.Join(problems, "; ")))
	}
	return nil
}
