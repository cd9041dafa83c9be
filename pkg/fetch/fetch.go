// Package fetch runs the artifact pipeline: resolve the URL through the
// mirror table, derive the cache entry path, download into the cache if
// absent, verify the digest when one is pinned, and publish the entry at
// the requested destination.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"artifetch/pkg/cache"
	"artifetch/pkg/hashutil"
	"artifetch/pkg/mirror"
	"artifetch/pkg/transfer"
)

// Request is one artifact to fetch. ExpectedHash is optional; when empty
// the cache entry is keyed by a hash of the URL string and its content is
// never verified.
type Request struct {
	OutputPath   string
	URL          string
	ExpectedHash string
}

// Result reports what a fetch did.
type Result struct {
	EntryPath   string
	ResolvedURL string
	// Digest is the verified content digest; empty when no hash was pinned.
	Digest   string
	CacheHit bool
}

// Event is the record of one completed fetch operation.
type Event struct {
	Time        time.Time
	URL         string
	ResolvedURL string
	OutputPath  string
	Digest      string
	CacheHit    bool
	Outcome     string
	Duration    time.Duration
}

// Recorder persists fetch events. Recording is best-effort: failures are
// logged and never fail the operation.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Options configures a Client. Loaded once at construction and never
// mutated afterwards; a Client is safe for concurrent use across distinct
// cache keys.
type Options struct {
	CacheRoot string
	Mirrors   *mirror.Table
	Transfer  transfer.Transferrer
	// Algo selects the digest algorithm for verification and URL-derived
	// identities. Defaults to hashutil.DefaultAlgo.
	Algo     string
	Recorder Recorder
}

// Client runs fetch operations against one cache root.
type Client struct {
	opts Options
}

// New validates opts and applies defaults.
func New(opts Options) (*Client, error) {
	if opts.CacheRoot == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	if opts.Mirrors == nil {
		opts.Mirrors = mirror.Empty()
	}
	if opts.Transfer == nil {
		opts.Transfer = &transfer.HTTP{}
	}
	if opts.Algo == "" {
		opts.Algo = hashutil.DefaultAlgo
	}
	if _, err := hashutil.New(opts.Algo); err != nil {
		return nil, err
	}
	return &Client{opts: opts}, nil
}

// Fetch runs the pipeline for one request. Terminal on first failure; no
// stage is retried. Cancelling ctx aborts the transfer and leaves the cache
// no worse than "entry absent".
func (c *Client) Fetch(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := c.fetch(ctx, req)
	c.record(ctx, req, res, err, time.Since(start))
	return res, err
}

func (c *Client) fetch(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	resolved := c.opts.Mirrors.Resolve(req.URL)
	entryPath, err := cache.EntryPath(c.opts.CacheRoot, req.OutputPath, req.URL, req.ExpectedHash, c.opts.Algo)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	res := Result{EntryPath: entryPath, ResolvedURL: resolved}

	if _, err := os.Stat(entryPath); err == nil {
		res.CacheHit = true
		slog.Debug("cache hit", "entry", entryPath, "url", resolved)
	} else {
		slog.Debug("cache miss", "entry", entryPath, "url", resolved)
		if err := c.download(ctx, resolved, entryPath); err != nil {
			return res, err
		}
	}

	if req.ExpectedHash != "" {
		actual, err := c.verify(entryPath, resolved, req.ExpectedHash)
		if err != nil {
			return res, err
		}
		res.Digest = actual
	}

	if err := ensureDir(filepath.Dir(req.OutputPath)); err != nil {
		return res, err
	}
	if err := cache.Publish(entryPath, req.OutputPath); err != nil {
		return res, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	slog.Debug("published", "dest", req.OutputPath, "cache_hit", res.CacheHit)
	return res, nil
}

func validate(req Request) error {
	if req.OutputPath == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalidRequest)
	}
	if !strings.Contains(req.URL, ":") {
		return fmt.Errorf("%w: url %q contains no scheme", ErrInvalidRequest, req.URL)
	}
	return nil
}

// download transfers url into entryPath. The body is streamed to a
// process-unique temporary name and renamed into place, so a failed or
// aborted transfer never leaves a partial entry behind.
func (c *Client) download(ctx context.Context, url, entryPath string) error {
	if err := ensureDir(filepath.Dir(entryPath)); err != nil {
		return err
	}

	body, err := c.opts.Transfer.Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransferFailed, url, err)
	}
	defer body.Close()

	tmp := entryPath + ".tmp." + strconv.Itoa(os.Getpid())
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransferFailed, url, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrTransferFailed, url, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrTransferFailed, url, err)
	}
	if err := os.Rename(tmp, entryPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrTransferFailed, url, err)
	}
	slog.Debug("fetched", "url", url, "entry", entryPath)
	return nil
}

// ensureDir creates dir idempotently. A concurrent creation by another
// process counts as success; anything else that leaves the directory
// missing is fatal.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		if st, statErr := os.Stat(dir); statErr == nil && st.IsDir() {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrDirectoryCreation, dir, err)
	}
	return nil
}

// verify compares the entry digest against expected. On mismatch the entry
// is purged best-effort and the mismatch surfaces regardless of whether the
// purge succeeded.
func (c *Client) verify(entryPath, resolvedURL, expected string) (string, error) {
	actual, err := hashutil.Digest(entryPath, c.opts.Algo)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIntegrityMismatch, err)
	}
	if actual != expected {
		ierr := &IntegrityError{URL: resolvedURL, Expected: expected, Actual: actual}
		if rmErr := os.Remove(entryPath); rmErr != nil {
			ierr.CleanupErr = rmErr
			slog.Warn("failed to purge corrupt cache entry", "entry", entryPath, "error", rmErr)
		}
		return "", ierr
	}
	return actual, nil
}

func (c *Client) record(ctx context.Context, req Request, res Result, err error, dur time.Duration) {
	if c.opts.Recorder == nil {
		return
	}
	ev := Event{
		Time:        time.Now(),
		URL:         req.URL,
		ResolvedURL: res.ResolvedURL,
		OutputPath:  req.OutputPath,
		Digest:      res.Digest,
		CacheHit:    res.CacheHit,
		Outcome:     Kind(err),
		Duration:    dur,
	}
	if recErr := c.opts.Recorder.Record(ctx, ev); recErr != nil {
		slog.Warn("failed to record fetch event", "url", req.URL, "error", recErr)
	}
}
