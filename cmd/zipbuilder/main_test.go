package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellyworth/plugin-directory-old-experiment/config"
	billyfs "github.com/tellyworth/plugin-directory-old-experiment/fs/billy"
	"github.com/tellyworth/plugin-directory-old-experiment/source"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs/vcstest"
)

const srcRoot = "https://svn.example.org/plugins"

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	fake   *vcstest.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		fake:   vcstest.NewFake(billyfs.NewBaseOSFS()),
	}
	h.app = &app{
		stdout: h.stdout,
		stderr: h.stderr,
		newClient: func(*config.Config, *slog.Logger) vcs.Client {
			return h.fake
		},
	}
	return h
}

func (h *harness) run(args ...string) error {
	root := newRootCommand(h.app)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.cue")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("version"))
	assert.Contains(t, h.stdout.String(), "zipbuilder dev")
}

func TestConfigShow(t *testing.T) {
	h := newHarness(t)
	cfgFile := writeConfig(t, `
svn_url:  "https://svn.example.org/zips"
svn_pass: "hunter2"
`)

	require.NoError(t, h.run("config", "show", "--config", cfgFile))
	out := h.stdout.String()
	assert.Contains(t, out, "// loaded from "+cfgFile)
	assert.Contains(t, out, `svn_url: "https://svn.example.org/zips"`)
	assert.Contains(t, out, `svn_pass: "********"`)
	assert.NotContains(t, out, "hunter2")
}

func TestConfigShow_InvalidFile(t *testing.T) {
	h := newHarness(t)
	cfgFile := writeConfig(t, `backend: "cvs"`)

	assert.Error(t, h.run("config", "show", "--config", cfgFile))
}

func TestBuild_RequiresVersion(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.run("build", "foo"))
	assert.Empty(t, h.fake.Calls())
}

func TestBuild_Disabled(t *testing.T) {
	h := newHarness(t)
	t.Setenv("PLUGIN_ZIP_SVN_URL", "")
	cfgFile := writeConfig(t, fmt.Sprintf("tmp_dir: %q", t.TempDir()))

	require.NoError(t, h.run("build", "foo", "trunk", "--config", cfgFile))
	assert.Contains(t, h.stderr.String(), "not building")
	assert.Empty(t, h.fake.Calls())
}

func TestBuild(t *testing.T) {
	h := newHarness(t)
	tmp := t.TempDir()
	textfile := filepath.Join(t.TempDir(), "zipbuilder.prom")
	cfgFile := writeConfig(t, fmt.Sprintf(`
svn_url:     "https://svn.example.org/zips"
source_root: %q
tmp_dir:     %q
metrics: textfile: %q
`, srcRoot, tmp, textfile))

	h.fake.Sources[source.URLFor(srcRoot, "foo", "trunk")] = vcstest.Tree{Files: map[string]string{"foo.php": "<?php"}}
	h.fake.Sources[source.URLFor(srcRoot, "foo", "1.0")] = vcstest.Tree{Files: map[string]string{"foo.php": "<?php // 1.0"}}

	require.NoError(t, h.run("build", "foo", "trunk", "1.0", "2.0", "--context", "foo: r42", "--config", cfgFile))

	out := h.stdout.String()
	assert.Contains(t, out, "built    trunk")
	assert.Contains(t, out, "foo.zip")
	assert.Contains(t, out, "foo.1.0.zip")
	assert.Contains(t, out, "skipped  2.0")
	assert.Contains(t, out, "(EXPORT_FAILED, retryable)")

	calls := h.fake.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "commit", last.Op)
	assert.Equal(t, "foo: r42", last.Msg)
	assert.Contains(t, h.fake.Committed, "foo/foo.1.0.zip")

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `zipbuilder_versions_total{kind="semver",status="built"} 1`)
	assert.Contains(t, string(prom), `zipbuilder_batches_total{status="ok"} 1`)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace removed")
}

func TestBuild_CommitFailureExitsNonZero(t *testing.T) {
	h := newHarness(t)
	cfgFile := writeConfig(t, fmt.Sprintf(`
svn_url:     "https://svn.example.org/zips"
source_root: %q
tmp_dir:     %q
`, srcRoot, t.TempDir()))

	err := h.run("build", "foo", "1.0", "--config", cfgFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maybe there were no modified files")
	assert.Contains(t, h.stdout.String(), "skipped  1.0")
}
