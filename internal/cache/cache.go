// Package cache is the artifact download cache. It fetches manifest
// artifacts over HTTP exactly once, verifies them against their declared MD5
// digest, and optionally unpacks zip archives next to the cached file.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"setup-board/internal/installer"
	"setup-board/internal/logger"
	"setup-board/internal/manifest"
)

// ErrMiss reports that a filename has no cached copy.
var ErrMiss = errors.New("not in cache")

// Cache stores downloaded artifacts under a single directory. Zip artifacts
// additionally get an extraction directory named after the archive stem.
type Cache struct {
	Dir string

	// Client is the HTTP client for downloads; nil means http.DefaultClient.
	Client *http.Client
}

// New returns a cache rooted at dir.
func New(dir string) *Cache {
	return &Cache{Dir: dir}
}

// Item returns the cached path for filename, or ErrMiss.
func (c *Cache) Item(filename string) (string, error) {
	path := filepath.Join(c.Dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrMiss
	}
	return path, nil
}

// ExtractedDir returns the directory a zip artifact unpacks into,
// whether or not it exists yet.
func (c *Cache) ExtractedDir(filename string) string {
	return filepath.Join(c.Dir, strings.TrimSuffix(filename, ".zip"))
}

// Download fetches url into the cache as filename. The file lands under a
// temporary name first and is renamed only after the body is fully written,
// so a partial download never looks like a cache hit. When unzip is set the
// archive is also unpacked and the extraction directory returned; otherwise
// the archive path is returned. progress, when non-nil, receives the running
// byte count.
func (c *Cache) Download(ctx context.Context, url, filename string, unzip bool, progress func(written int64)) (string, error) {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, err)
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger.Debug("[DEBUG] Downloading %s -> %s\n", url, filename)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to GET %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Error("[ERROR] Failed to close response body: %s\n", cerr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: HTTP status %d", url, resp.StatusCode)
	}

	dest := filepath.Join(c.Dir, filename)
	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", tmp, err)
	}

	var body io.Reader = resp.Body
	if progress != nil {
		body = io.TeeReader(resp.Body, &countingWriter{report: progress})
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write response to file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("commit download %s: %w", filename, err)
	}
	logger.Debug("[DEBUG] Downloaded %s to %s\n", url, dest)

	if unzip {
		return c.unpack(filename, dest)
	}
	return dest, nil
}

// Fetch ensures a verified local copy of the manifest download and returns
// its path: the extraction directory when unzip is set, the file otherwise.
// A warm cache entry failing verification is evicted and fetched again once;
// a fresh download failing verification is an error.
func (c *Cache) Fetch(ctx context.Context, d manifest.Download, unzip bool, progress func(written int64)) (string, error) {
	if local, err := c.Item(d.Filename); err == nil {
		ok, err := c.verify(local, d.MD5)
		if err != nil {
			return "", err
		}
		if ok {
			logger.Debug("[DEBUG] Cache hit for %s\n", d.Filename)
			if unzip {
				return c.unpackIfNeeded(d.Filename, local)
			}
			return local, nil
		}
		logger.Warn("[WARN] Cached %s failed MD5 verification. Evicting and downloading again.\n", d.Filename)
		if err := c.evict(d.Filename); err != nil {
			return "", err
		}
	}

	local, err := c.Download(ctx, d.URL, d.Filename, unzip, progress)
	if err != nil {
		return "", err
	}
	archive := filepath.Join(c.Dir, d.Filename)
	ok, err := c.verify(archive, d.MD5)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("downloaded %s does not match declared md5 %s", d.Filename, d.MD5)
	}
	return local, nil
}

// unpackIfNeeded extracts a cached zip only when its extraction directory is
// absent, keeping warm-cache fetches free of repeated work.
func (c *Cache) unpackIfNeeded(filename, archive string) (string, error) {
	dir := c.ExtractedDir(filename)
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	return c.unpack(filename, archive)
}

func (c *Cache) unpack(filename, archive string) (string, error) {
	dir := c.ExtractedDir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create extraction dir: %w", err)
	}
	if _, err := installer.Extract(archive, dir); err != nil {
		return "", fmt.Errorf("unpack %s: %w", filename, err)
	}
	return dir, nil
}

// verify compares the file's MD5 against the declared digest. An empty
// declared digest skips verification and counts as a pass.
func (c *Cache) verify(path, declared string) (bool, error) {
	if declared == "" {
		return true, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s for verification: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, fmt.Errorf("hash %s: %w", path, err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(actual, declared), nil
}

// evict removes a cached archive and any extraction directory derived from it.
func (c *Cache) evict(filename string) error {
	if err := os.Remove(filepath.Join(c.Dir, filename)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evict %s: %w", filename, err)
	}
	if err := os.RemoveAll(c.ExtractedDir(filename)); err != nil {
		return fmt.Errorf("evict extracted %s: %w", filename, err)
	}
	return nil
}

// countingWriter reports the running byte total to a progress callback.
type countingWriter struct {
	written int64
	report  func(written int64)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	w.report(w.written)
	return len(p), nil
}
