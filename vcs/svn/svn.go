// Package svn implements vcs.Client by driving the svn command line client.
package svn

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tellyworth/plugin-directory-old-experiment/executor"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

// DefaultTimeout bounds every svn invocation.
const DefaultTimeout = 10 * time.Minute

var (
	errorLine     = regexp.MustCompile(`^svn: (E\d+): (.*)$`)
	committedLine = regexp.MustCompile(`(?m)^Committed revision \d+\.`)
)

// Client runs svn subcommands.
type Client struct {
	runner  executor.Runner
	timeout time.Duration
	logger  *slog.Logger
}

var _ vcs.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the executor used to run svn.
func WithRunner(r executor.Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

// WithTimeout sets the per-invocation timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client. By default it runs the svn binary from PATH with the
// locale pinned to en_US.UTF-8.
func New(opts ...Option) *Client {
	c := &Client{
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = executor.NewWrappedExecutor("svn", executor.WithLocale())
	}
	return c
}

// Checkout implements vcs.Client.
func (c *Client) Checkout(ctx context.Context, url, dest string, opts vcs.CheckoutOptions) vcs.Result {
	args := []string{"checkout", "--non-interactive", "--depth", opts.Depth.String()}
	args = append(args, credentialArgs(opts.Credentials)...)
	args = append(args, url, dest)
	res, _ := c.run(ctx, args)
	return res
}

// Update implements vcs.Client.
func (c *Client) Update(ctx context.Context, path string, opts vcs.UpdateOptions) vcs.Result {
	args := []string{"update", "--non-interactive"}
	if opts.SetDepth {
		args = append(args, "--set-depth", opts.Depth.String())
	} else if opts.Depth != vcs.DepthInfinity {
		args = append(args, "--depth", opts.Depth.String())
	}
	args = append(args, path)
	res, _ := c.run(ctx, args)
	return res
}

// Export implements vcs.Client.
func (c *Client) Export(ctx context.Context, url, dest string, opts vcs.ExportOptions) vcs.Result {
	args := []string{"export", "--non-interactive"}
	if opts.IgnoreExternals {
		args = append(args, "--ignore-externals")
	}
	args = append(args, credentialArgs(opts.Credentials)...)
	args = append(args, url, dest)
	res, _ := c.run(ctx, args)
	return res
}

// Add implements vcs.Client. Paths that are already versioned are accepted.
func (c *Client) Add(ctx context.Context, path string) vcs.Result {
	res, _ := c.run(ctx, []string{"add", "--non-interactive", "--force", "--parents", path})
	return res
}

// Commit implements vcs.Client. svn exits successfully when there is nothing
// to commit, so success is read from the "Committed revision" line.
func (c *Client) Commit(ctx context.Context, path, message string, opts vcs.CommitOptions) vcs.Result {
	args := []string{"commit", "--non-interactive", "-m", message}
	args = append(args, credentialArgs(opts.Credentials)...)
	args = append(args, path)

	res, out := c.run(ctx, args)
	if !res.Succeeded {
		return res
	}
	if !committedLine.MatchString(out.Stdout) {
		c.logger.DebugContext(ctx, "svn commit produced no revision", "path", path)
		return vcs.Failed()
	}
	return res
}

func (c *Client) run(ctx context.Context, args []string) (vcs.Result, *executor.Result) {
	var opts []executor.Option
	if c.timeout > 0 {
		opts = append(opts, executor.WithTimeout(c.timeout))
	}

	c.logger.DebugContext(ctx, "running svn", "args", redact(args))
	out, err := c.runner.Run(ctx, args, opts...)
	if out == nil {
		out = &executor.Result{}
	}
	if err != nil {
		msgs := parseErrors(out.Stderr)
		if len(msgs) == 0 {
			msgs = []string{firstNonEmpty(out.Output(), err.Error())}
		}
		c.logger.DebugContext(ctx, "svn failed", "subcommand", args[0], "errors", msgs)
		return vcs.Failed(msgs...), out
	}
	return vcs.OK(), out
}

func credentialArgs(creds vcs.Credentials) []string {
	if creds.IsZero() {
		return nil
	}
	args := []string{"--no-auth-cache"}
	if creds.Username != "" {
		args = append(args, "--username", creds.Username)
	}
	if creds.Password != "" {
		args = append(args, "--password", creds.Password)
	}
	return args
}

// parseErrors extracts "svn: E123456: message" lines as "E123456: message".
func parseErrors(stderr string) []string {
	var msgs []string
	for _, line := range strings.Split(stderr, "\n") {
		if m := errorLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			msgs = append(msgs, m[1]+": "+m[2])
		}
	}
	return msgs
}

func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--password" {
			out[i+1] = "***"
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
