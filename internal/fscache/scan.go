package fscache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/acolita/pty-shell-mcp/internal/task"
)

// ResolveSearchPath resolves a search path to an absolute directory,
// canonicalizing symlinks when possible.
func ResolveSearchPath(path string) (string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve search path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("path not found: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("search path must be a directory: %s", path)
	}
	if canonical, err := filepath.EvalSymlinks(root); err == nil {
		root = canonical
	}
	return root, nil
}

func absolutePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if canonical, err := filepath.EvalSymlinks(abs); err == nil {
		return canonical
	}
	return abs
}

// pathHasPrefix reports whether target sits at or below root.
func pathHasPrefix(target, root string) bool {
	if target == root {
		return true
	}
	return strings.HasPrefix(target, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}

func containsComponent(rel, target string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == target {
			return true
		}
	}
	return false
}

// ShouldSkipPath applies the discovery skip policy to a relative path: VCS
// internals are always noise, and node_modules is skipped unless the query
// explicitly mentions it.
func ShouldSkipPath(rel string, mentionsNodeModules bool) bool {
	if containsComponent(rel, ".git") {
		return true
	}
	if !mentionsNodeModules && containsComponent(rel, "node_modules") {
		return true
	}
	return false
}

// relativePath normalizes path to a forward-slash string relative to root.
func relativePath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

func classifyEntry(path string) (EntryType, int64, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, 0, false
	}
	var mtime int64
	if mod := info.ModTime(); !mod.IsZero() {
		mtime = mod.UnixMilli()
	}
	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink, mtime, true
	case mode.IsDir():
		return TypeDir, mtime, true
	default:
		return TypeFile, mtime, true
	}
}

// collectEntries scans root and records normalized relative paths with file
// metadata. node_modules entries are always stored; query-side filtering
// applies the exclusion. The walk heartbeats tok and aborts on cancellation.
func collectEntries(root string, includeHidden, useGitignore bool, tok *task.CancelToken) ([]Entry, error) {
	var ignore *ignoreFile
	if useGitignore {
		ignore = loadGitignore(root)
	}

	conf := fastwalk.Config{Follow: false}
	var (
		mu      sync.Mutex
		entries []Entry
	)

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if err := tok.Heartbeat(); err != nil {
			return err
		}

		rel := relativePath(root, path)
		if rel == "" {
			return nil
		}

		base := filepath.Base(path)
		if base == ".git" && d.IsDir() {
			return filepath.SkipDir
		}
		if !includeHidden && strings.HasPrefix(base, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore != nil && ignore.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entryType, mtime, ok := classifyEntry(path)
		if !ok {
			return nil
		}

		mu.Lock()
		entries = append(entries, Entry{Path: rel, Type: entryType, MTimeMs: mtime})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The walk is concurrent; sort for a deterministic scan order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
