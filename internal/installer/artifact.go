package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"setup-board/internal/environ"
	"setup-board/internal/logger"
	"setup-board/internal/manifest"
)

// Fetcher is the download/cache collaborator contract. The installer depends
// only on this interface, never on the cache implementation.
type Fetcher interface {
	// Fetch ensures a verified local copy of the download and returns its
	// path: an extraction directory when unzip is set, the file otherwise.
	Fetch(ctx context.Context, d manifest.Download, unzip bool, progress func(written int64)) (string, error)
}

// DestDir returns the directory an artifact materializes into.
func DestDir(d manifest.Download, toolsDir string) string {
	return filepath.Join(toolsDir, d.Name)
}

// BinDir returns the artifact's executable directory: its destination plus
// the optional suffix path segment.
func BinDir(d manifest.Download, toolsDir string) string {
	dir := DestDir(d, toolsDir)
	if d.Suffix != "" {
		dir = filepath.Join(dir, d.Suffix)
	}
	return dir
}

// InstallArtifact materializes one manifest download under the tools
// directory and prepends its executable directory to the environment's
// search path. The three materialization policies are mutually exclusive:
//   - zip URLs: the cache holds an unpacked tree, copied over the destination
//   - tar URLs: the archive is extracted into the destination
//   - anything else: the cached file is copied into the destination as-is
//
// Any failure is returned to the caller, which aborts the whole run; there
// is no per-artifact recovery.
func InstallArtifact(ctx context.Context, d manifest.Download, toolsDir string, fetcher Fetcher, env environ.Env, progress func(written int64)) error {
	unzip := IsZip(d.URL)

	local, err := fetcher.Fetch(ctx, d, unzip, progress)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", d.Name, err)
	}

	dest := DestDir(d, toolsDir)
	switch {
	case unzip:
		logger.Debug("[DEBUG] Copying unpacked %s into %s\n", d.Name, dest)
		if err := copyTree(local, dest); err != nil {
			return fmt.Errorf("materialize %s: %w", d.Name, err)
		}
	case IsTar(d.URL):
		if err := os.MkdirAll(dest, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		logger.Debug("[DEBUG] Extracting %s into %s\n", local, dest)
		if _, err := Extract(local, dest); err != nil {
			return fmt.Errorf("extract %s: %w", d.Name, err)
		}
	default:
		// Plain artifact: used as downloaded, no extraction.
		logger.Debug("[DEBUG] Copying %s into %s\n", local, dest)
		if err := os.MkdirAll(dest, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		if err := copyFile(local, filepath.Join(dest, filepath.Base(local))); err != nil {
			return fmt.Errorf("materialize %s: %w", d.Name, err)
		}
	}

	env.PrependPath(BinDir(d, toolsDir))
	return nil
}

// copyTree copies the directory tree at src over dst, creating directories
// as needed and overwriting existing files.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target)
	})
}

// copyFile copies a file preserving its mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source failed: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("mkdir failed: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("create target failed: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy failed: %w", err)
	}
	return out.Close()
}
