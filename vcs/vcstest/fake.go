// Package vcstest provides an in-process vcs.Client for tests.
//
// Fake serves exports from trees registered in memory and emulates a
// destination working copy on a filesystem, so build pipelines can be tested
// without svn or git.
package vcstest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tellyworth/plugin-directory-old-experiment/fs"
	"github.com/tellyworth/plugin-directory-old-experiment/vcs"
)

// Tree is the content of one repository location.
type Tree struct {
	// Files maps slash separated relative paths to content.
	Files map[string]string
	// Links maps relative link paths to their targets.
	Links map[string]string
	// Dirs lists empty directories to create.
	Dirs []string
	// ModTime, when set, is applied to every exported file the way a
	// repository export stamps files with their commit time.
	ModTime time.Time
}

// Call records one operation.
type Call struct {
	Op     string
	Target string
	Dest   string
	Export vcs.ExportOptions
	Update vcs.UpdateOptions
	Depth  vcs.Depth
	Msg    string
}

// Fake implements vcs.Client.
type Fake struct {
	FS fs.Filesystem

	// Sources maps export URLs to trees. Unknown URLs fail like a missing
	// repository path.
	Sources map[string]Tree

	// Committed holds the files of the destination as of the last commit,
	// relative to the checkout root. Checkout writes them out.
	Committed map[string]string

	// CheckoutResult, AddResult and CommitResult override the emulated
	// outcome when set.
	CheckoutResult *vcs.Result
	AddResult      *vcs.Result
	CommitResult   *vcs.Result

	mu    sync.Mutex
	calls []Call
	root  string
	added map[string]bool
}

var _ vcs.Client = (*Fake)(nil)

// NewFake returns a Fake working on fsys.
func NewFake(fsys fs.Filesystem) *Fake {
	return &Fake{
		FS:        fsys,
		Sources:   make(map[string]Tree),
		Committed: make(map[string]string),
	}
}

// Calls returns the recorded operations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the recorded operations as "op target" strings.
func (f *Fake) Ops() []string {
	var ops []string
	for _, c := range f.Calls() {
		ops = append(ops, c.Op+" "+c.Target)
	}
	return ops
}

// Added returns the paths scheduled for addition, sorted.
func (f *Fake) Added() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.added {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Checkout implements vcs.Client.
func (f *Fake) Checkout(_ context.Context, url, dest string, opts vcs.CheckoutOptions) vcs.Result {
	f.record(Call{Op: "checkout", Target: url, Dest: dest, Depth: opts.Depth})
	if f.CheckoutResult != nil {
		return *f.CheckoutResult
	}

	f.mu.Lock()
	f.root = path.Clean(dest)
	f.added = make(map[string]bool)
	f.mu.Unlock()

	if err := f.FS.MkdirAll(dest, 0o755); err != nil {
		return vcs.FailedErr(err)
	}
	for rel, content := range f.Committed {
		if err := f.FS.WriteFile(path.Join(dest, rel), []byte(content), 0o644); err != nil {
			return vcs.FailedErr(err)
		}
	}
	return vcs.OK()
}

// Update implements vcs.Client the way svn does: a missing committed file
// is restored, while local modifications and unversioned files are kept.
func (f *Fake) Update(_ context.Context, p string, opts vcs.UpdateOptions) vcs.Result {
	f.record(Call{Op: "update", Target: p, Update: opts})

	rel, ok := f.rel(p)
	if !ok {
		return vcs.Failed(fmt.Sprintf("svn: E155007: '%s' is not a working copy", p))
	}
	exists, err := f.FS.Exists(p)
	if err != nil {
		return vcs.FailedErr(err)
	}
	if exists {
		return vcs.OK()
	}

	if content, tracked := f.Committed[rel]; tracked {
		if err := f.FS.WriteFile(p, []byte(content), 0o644); err != nil {
			return vcs.FailedErr(err)
		}
		return vcs.OK()
	}

	// A scheduled file that was deleted locally has nothing left to add.
	f.mu.Lock()
	delete(f.added, rel)
	f.mu.Unlock()
	return vcs.OK()
}

// Export implements vcs.Client.
func (f *Fake) Export(ctx context.Context, url, dest string, opts vcs.ExportOptions) vcs.Result {
	f.record(Call{Op: "export", Target: url, Dest: dest, Export: opts})

	if err := ctx.Err(); err != nil {
		return vcs.FailedErr(err)
	}
	tree, ok := f.Sources[url]
	if !ok {
		return vcs.Failed(fmt.Sprintf("E170000: URL '%s' doesn't exist", url))
	}

	if err := f.FS.MkdirAll(dest, 0o755); err != nil {
		return vcs.FailedErr(err)
	}
	for _, dir := range tree.Dirs {
		if err := f.FS.MkdirAll(path.Join(dest, dir), 0o755); err != nil {
			return vcs.FailedErr(err)
		}
	}
	for rel, content := range tree.Files {
		name := path.Join(dest, rel)
		if err := f.FS.WriteFile(name, []byte(content), 0o644); err != nil {
			return vcs.FailedErr(err)
		}
		if !tree.ModTime.IsZero() {
			if err := f.FS.Chtimes(name, tree.ModTime, tree.ModTime); err != nil {
				return vcs.FailedErr(err)
			}
		}
	}
	for rel, target := range tree.Links {
		if err := f.FS.Symlink(target, path.Join(dest, rel)); err != nil {
			return vcs.FailedErr(err)
		}
	}
	return vcs.OK()
}

// Add implements vcs.Client.
func (f *Fake) Add(_ context.Context, p string) vcs.Result {
	f.record(Call{Op: "add", Target: p})
	if f.AddResult != nil {
		return *f.AddResult
	}

	rel, ok := f.rel(p)
	if !ok {
		return vcs.Failed(fmt.Sprintf("svn: E155007: '%s' is not a working copy", p))
	}
	if exists, err := f.FS.Exists(p); err != nil || !exists {
		return vcs.Failed(fmt.Sprintf("svn: E155010: The node '%s' was not found.", p))
	}

	f.mu.Lock()
	f.added[rel] = true
	f.mu.Unlock()
	return vcs.OK()
}

// Commit implements vcs.Client. Added files and local modifications of
// committed files become the committed state; unversioned files are left
// out. A commit with neither changes nothing.
func (f *Fake) Commit(_ context.Context, p, message string, _ vcs.CommitOptions) vcs.Result {
	f.record(Call{Op: "commit", Target: p, Msg: message})
	if f.CommitResult != nil {
		return *f.CommitResult
	}

	f.mu.Lock()
	pending := make([]string, 0, len(f.added)+len(f.Committed))
	for rel := range f.added {
		pending = append(pending, rel)
	}
	for rel := range f.Committed {
		if !f.added[rel] {
			pending = append(pending, rel)
		}
	}
	f.mu.Unlock()

	changed := false
	for _, rel := range pending {
		info, err := f.FS.Stat(path.Join(f.root, rel))
		if err != nil || info.IsDir() {
			continue
		}
		data, err := f.FS.ReadFile(path.Join(f.root, rel))
		if err != nil {
			return vcs.FailedErr(err)
		}
		if old, ok := f.Committed[rel]; !ok || old != string(data) {
			f.Committed[rel] = string(data)
			changed = true
		}
	}
	if !changed {
		return vcs.Failed()
	}
	return vcs.OK()
}

func (f *Fake) rel(p string) (string, bool) {
	f.mu.Lock()
	root := f.root
	f.mu.Unlock()

	p = path.Clean(p)
	if root == "" || (p != root && !strings.HasPrefix(p, root+"/")) {
		return "", false
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
	if rel == "" {
		rel = "."
	}
	return rel, true
}
