// Package archive writes package trees into ZIP files whose bytes depend only
// on the tree: entries are written in byte-wise sorted order and headers
// carry nothing but name, mode and modification time.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
	"github.com/tellyworth/plugin-directory-old-experiment/fs"
)

// DefaultLevel matches the default level of the zip command line tool.
const DefaultLevel = 6

// Name returns the archive file name of version of slug: "<slug>.zip" for
// trunk and "<slug>.<version>.zip" otherwise.
func Name(slug, version string) string {
	if version == "trunk" {
		return slug + ".zip"
	}
	return slug + "." + version + ".zip"
}

// RelPath returns where the archive of version lives below the archive root.
func RelPath(slug, version string) string {
	return slug + "/" + Name(slug, version)
}

// Result describes a written archive.
type Result struct {
	Path    string
	Entries []string
	Size    int64
	SHA256  string
}

// Entry is one path to be archived.
type Entry struct {
	// Name is the archive name: slash separated, relative to the tree root,
	// with a trailing slash for directories.
	Name string
	// Path is the location on the filesystem.
	Path string
	Info os.FileInfo
}

// Generator writes archives.
type Generator struct {
	fs     fs.Filesystem
	level  int
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLevel sets the deflate level, from flate.BestSpeed to
// flate.BestCompression.
func WithLevel(level int) Option {
	return func(g *Generator) {
		g.level = level
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Generator that reads trees from and writes archives to fsys.
func New(fsys fs.Filesystem, opts ...Option) *Generator {
	g := &Generator{
		fs:     fsys,
		level:  DefaultLevel,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SortedEntries lists treeRoot/slug and everything below it. Names are
// relative to treeRoot, so each starts with slug. Entries are ordered by
// path before directory slashes are appended, the way a sorted file listing
// orders them. Symbolic links and other special files are left out.
func SortedEntries(fsys fs.Filesystem, treeRoot, slug string) ([]Entry, error) {
	var entries []Entry
	base := path.Join(treeRoot, slug)

	err := fsys.Walk(base, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		rel := strings.TrimPrefix(path.Join(slug, strings.TrimPrefix(p, base)), "/")
		entries = append(entries, Entry{Name: rel, Path: p, Info: info})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for i := range entries {
		if entries[i].Info.IsDir() {
			entries[i].Name += "/"
		}
	}
	return entries, nil
}

// Generate archives treeRoot/slug into archivePath, replacing any existing
// file. On failure no partial archive is left behind and the error carries
// CodeArchiveFailed.
func (g *Generator) Generate(ctx context.Context, treeRoot, slug, archivePath string) (*Result, error) {
	fail := func(err error, msg string) (*Result, error) {
		return nil, zberrors.WrapWithContext(err, zberrors.CodeArchiveFailed, msg, map[string]interface{}{
			"tree":    path.Join(treeRoot, slug),
			"archive": archivePath,
		})
	}

	if err := g.fs.RemoveAll(archivePath); err != nil {
		return fail(err, "failed to remove existing archive")
	}

	entries, err := SortedEntries(g.fs, treeRoot, slug)
	if err != nil {
		return fail(err, "failed to list tree")
	}

	res, err := g.write(ctx, archivePath, entries)
	if err != nil {
		if rmErr := g.fs.RemoveAll(archivePath); rmErr != nil {
			err = errors.Join(err, rmErr)
		}
		return fail(err, "failed to write archive")
	}

	g.logger.DebugContext(ctx, "archive written", "path", archivePath, "entries", len(res.Entries), "size", res.Size)
	return res, nil
}

func (g *Generator) write(ctx context.Context, archivePath string, entries []Entry) (res *Result, err error) {
	f, err := g.fs.OpenFile(archivePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sum := sha256.New()
	counter := &countingWriter{}
	zw := zip.NewWriter(io.MultiWriter(f, sum, counter))
	level := g.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.add(zw, e); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		names = append(names, e.Name)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}

	return &Result{
		Path:    archivePath,
		Entries: names,
		Size:    counter.n,
		SHA256:  hex.EncodeToString(sum.Sum(nil)),
	}, nil
}

func (g *Generator) add(zw *zip.Writer, e Entry) error {
	hdr, err := zip.FileInfoHeader(e.Info)
	if err != nil {
		return err
	}
	hdr.Name = e.Name
	hdr.Modified = e.Info.ModTime().UTC()

	if e.Info.IsDir() {
		hdr.Method = zip.Store
		_, err := zw.CreateHeader(hdr)
		return err
	}

	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	src, err := g.fs.Open(e.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
