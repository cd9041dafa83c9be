// Package cache derives content-addressed entry paths under a flat cache
// root and publishes verified entries to caller destinations.
//
// Entries are named <output-basename>-<content-identity>. The identity is
// the caller-pinned expected hash when one exists; otherwise it is a hash
// of the source URL string. URL-derived identity is a fetch-avoidance
// optimization only: a URL whose server-side content changes will keep
// serving the stale cached bytes until the URL string itself changes. Pin
// a content hash whenever correctness matters.
package cache

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"artifetch/pkg/hashutil"
)

// DefaultRoot returns the per-user cache root (~/.cache/artifetch), honoring
// the ARTIFETCH_CACHE override.
func DefaultRoot() (string, error) {
	if dir := os.Getenv("ARTIFETCH_CACHE"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "artifetch"), nil
}

// EntryPath computes the cache entry path for one artifact. Deterministic
// and injective in (output basename, identity); no filesystem access.
func EntryPath(cacheRoot, outputPath, url, expectedHash, algo string) (string, error) {
	identity := expectedHash
	if identity == "" {
		d, err := hashutil.DigestBytes([]byte(url), algo)
		if err != nil {
			return "", err
		}
		identity = d
	}
	name := filepath.Base(outputPath) + "-" + identity
	return filepath.Join(cacheRoot, name), nil
}

// Publish materializes the cache entry at destPath. It hard links when
// possible and falls back to a full byte copy when the link fails for any
// reason (cross-device destination, existing file, filesystem without link
// support). The entry must stay immutable after publication: link-published
// destinations share storage with the cache.
func Publish(entryPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory for %s: %w", destPath, err)
	}

	if err := os.Link(entryPath, destPath); err == nil {
		slog.Debug("published via hard link", "entry", entryPath, "dest", destPath)
		return nil
	} else {
		slog.Debug("hard link failed, copying", "dest", destPath, "error", err)
	}

	if err := copyFile(entryPath, destPath); err != nil {
		return fmt.Errorf("failed to publish %s: %w", destPath, err)
	}
	slog.Debug("published via copy", "entry", entryPath, "dest", destPath)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// A stale destination (possibly a link to an old entry) must not be
	// written through; replace it outright.
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Entry describes one cached artifact for inspection commands.
type Entry struct {
	Name string
	Size int64
}

// List returns the entries under the cache root, sorted by name. A missing
// root is an empty cache, not an error.
func List(cacheRoot string) ([]Entry, error) {
	dirents, err := os.ReadDir(cacheRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: d.Name(), Size: info.Size()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Remove deletes a single entry by name.
func Remove(cacheRoot, name string) error {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid cache entry name %q", name)
	}
	return os.Remove(filepath.Join(cacheRoot, name))
}

// Purge deletes every entry under the cache root. A missing root is a no-op.
func Purge(cacheRoot string) error {
	entries, err := List(cacheRoot)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(cacheRoot, e.Name)); err != nil {
			return err
		}
	}
	return nil
}
