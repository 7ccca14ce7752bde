// Package executor runs external programs for the ZIP builder.
//
// Only version-control operations are delegated to subprocesses; everything
// else (walking trees, touching directories, writing archives) happens in
// process. Commands run once with captured output, an optional timeout and a
// pinned locale so their output parses the same way on every host.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds the timeout configured with
// WithTimeout. It wraps context.DeadlineExceeded.
var ErrTimeout = fmt.Errorf("command timed out: %w", context.DeadlineExceeded)

// Result holds the output and exit status of a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Output returns the most useful textual output of the command: stderr when
// there is any, otherwise stdout.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	for _, s := range []string{r.Stderr, r.Stdout} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// Runner runs a fixed program with varying arguments. *WrappedExecutor
// implements it; tests substitute recording fakes.
type Runner interface {
	Run(ctx context.Context, args []string, opts ...Option) (*Result, error)
}

// Resolve returns the options a command runs with when given opts.
func Resolve(opts ...Option) Options {
	return Options{}.with(opts...)
}

// run executes program once.
func run(parent context.Context, program string, args []string, o Options) (*Result, error) {

	ctx := parent
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, o.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Env = environ(o.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	// Our own deadline becomes ErrTimeout; a cancelled parent is passed on.
	if err != nil && o.Timeout > 0 && parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrTimeout, o.Timeout)
	}
	res.Err = err

	if err == nil {
		return res, nil
	}
	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	return res, fmt.Errorf("command execution failed: %w", err)
}

// environ appends extra to the process environment in key order. Nil means
// inherit unchanged.
func environ(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// WrappedExecutor binds a program and a set of base options so callers only
// supply arguments.
type WrappedExecutor struct {
	program string
	base    Options
}

// NewWrappedExecutor creates an executor for program. The given options
// apply to every command it runs.
func NewWrappedExecutor(program string, opts ...Option) *WrappedExecutor {
	return &WrappedExecutor{program: program, base: Resolve(opts...)}
}

// Run implements Runner.
func (w *WrappedExecutor) Run(ctx context.Context, args []string, opts ...Option) (*Result, error) {
	res, err := run(ctx, w.program, args, w.base.with(opts...))
	if err != nil {
		sub := ""
		if len(args) > 0 {
			sub = args[0]
		}
		return res, fmt.Errorf("%s %s: %w", w.program, sub, err)
	}
	return res, nil
}
