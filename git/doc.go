// Package git is a small task-oriented wrapper over go-git used by the git
// publishing backend of the ZIP builder.
//
// It clones and opens working copies, stages and commits archives, restores
// files to their committed state and pushes. Export writes a clean tree of a
// branch or tag without repository metadata. All repository state is reached
// through the project's filesystem abstraction, so tests can run against
// in-memory filesystems.
//
// # Basic Usage
//
//	fsys := billyfs.NewOSFS("/srv/zips")
//
//	repo, err := git.Clone(ctx, "https://git.example.org/zips.git", &git.Options{
//	    FS:   fsys,
//	    Auth: git.BasicAuth("bot", token),
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := repo.Add(ctx, "hello-dolly/hello-dolly.zip"); err != nil {
//	    return err
//	}
//	if _, err := repo.Commit(ctx, "Updated ZIPs for hello-dolly.", git.Signature{
//	    Name:  "zipbuilder",
//	    Email: "zipbuilder@example.org",
//	    When:  time.Now(),
//	}, git.CommitOpts{}); err != nil {
//	    return err
//	}
//	err = repo.Push(ctx, "")
//
// # Error Handling
//
// Failures wrap sentinel errors that can be checked with errors.Is:
//
//	if errors.Is(err, git.ErrEmptyCommit) {
//	    // nothing was staged
//	}
package git
