// Package purge tells download caches that archives changed.
package purge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tellyworth/plugin-directory-old-experiment/archive"
	zberrors "github.com/tellyworth/plugin-directory-old-experiment/errors"
)

const (
	// MethodPurge is the request method cache servers accept for eviction.
	MethodPurge = "PURGE"

	// DefaultTimeout bounds each purge request.
	DefaultTimeout = 10 * time.Second

	// DefaultConcurrency bounds the number of requests in flight.
	DefaultConcurrency = 4
)

// Invalidator evicts cached copies of archives.
type Invalidator interface {
	// Invalidate evicts the archives of versions of slug.
	Invalidate(ctx context.Context, slug string, versions []string) error
}

// Noop implements Invalidator without doing anything.
type Noop struct{}

// Invalidate implements Invalidator.
func (Noop) Invalidate(context.Context, string, []string) error { return nil }

// HTTPPurger sends a PURGE request for every archive to every host.
type HTTPPurger struct {
	// Hosts are the cache servers, as host or host:port.
	Hosts []string
	// Location is the path prefix archives are served under. An empty
	// Location disables purging.
	Location string
	// Client defaults to an http.Client with DefaultTimeout.
	Client *http.Client
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int

	Logger *slog.Logger
}

var _ Invalidator = (*HTTPPurger)(nil)

// URL returns the purge URL of archive path p on host.
func (h *HTTPPurger) URL(host, p string) string {
	return "http://" + host + h.Location + strings.TrimPrefix(p, "/")
}

// Invalidate implements Invalidator. Every request is attempted; failures are
// joined into the returned error.
func (h *HTTPPurger) Invalidate(ctx context.Context, slug string, versions []string) error {
	if h.Location == "" || len(h.Hosts) == 0 || len(versions) == 0 {
		return nil
	}
	paths := make([]string, len(versions))
	for i, v := range versions {
		paths[i] = archive.RelPath(slug, v)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	limit := h.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		g    errgroup.Group
		errs = make([]error, len(paths)*len(h.Hosts))
	)
	g.SetLimit(limit)

	i := 0
	for _, p := range paths {
		for _, host := range h.Hosts {
			idx, url := i, h.URL(host, p)
			i++
			g.Go(func() error {
				errs[idx] = purge(ctx, client, url)
				if errs[idx] != nil {
					logger.WarnContext(ctx, "cache purge failed", "url", url, "error", errs[idx])
				} else {
					logger.DebugContext(ctx, "cache purged", "url", url)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return zberrors.Wrap(err, zberrors.CodePublishFailed, "cache purge failed")
	}
	return nil
}

func purge(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, MethodPurge, url, nil)
	if err != nil {
		return fmt.Errorf("purge %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("purge %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Caches answer 404 for objects they do not hold.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("purge %s: unexpected status %s", url, resp.Status)
	}
	return nil
}
