// Package project finds candidate project directories under a workspace by
// scanning for build descriptions that declare a project.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"setup-board/internal/logger"
)

// BuildFile is the build-description filename that marks a project directory.
const BuildFile = "CMakeLists.txt"

// marker is the declaration a build description must contain to count as a
// project root rather than an included fragment.
const marker = "project("

// Discover walks the tree rooted at root with an explicit last-in-first-out
// work list and returns the directories whose build description declares a
// project. Directories named "build" or ".git" are pruned without descent,
// so generated trees never produce duplicate candidates. Order is
// traversal-completion order, not sorted.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read workspace root %s: %w", root, err)
	}

	var stack []string
	for _, e := range entries {
		stack = append(stack, filepath.Join(root, e.Name()))
	}

	var candidates []string
	for len(stack) > 0 {
		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Lstat(path)
		if err != nil {
			// Concurrent mutation of the tree is tolerated; a vanished
			// entry is skipped, not fatal.
			logger.Debug("[DEBUG] Skipping %s: %v\n", path, err)
			continue
		}

		if info.IsDir() {
			name := filepath.Base(path)
			if name == "build" || name == ".git" {
				continue
			}
			children, err := os.ReadDir(path)
			if err != nil {
				logger.Debug("[DEBUG] Skipping unreadable dir %s: %v\n", path, err)
				continue
			}
			for _, c := range children {
				stack = append(stack, filepath.Join(path, c.Name()))
			}
			continue
		}

		if !info.Mode().IsRegular() || filepath.Base(path) != BuildFile {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Debug("[DEBUG] Skipping unreadable %s: %v\n", path, err)
			continue
		}
		if strings.Contains(string(raw), marker) {
			candidates = append(candidates, filepath.Dir(path))
		}
	}
	return candidates, nil
}

// IsProject reports whether dir contains a build description declaring a
// project, used to validate an explicitly chosen project path.
func IsProject(dir string) bool {
	raw, err := os.ReadFile(filepath.Join(dir, BuildFile))
	if err != nil {
		return false
	}
	return strings.Contains(string(raw), marker)
}
