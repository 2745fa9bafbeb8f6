// Package fscache provides a shared TTL cache of filesystem scans for
// discovery tools. Policy is passed in explicitly at construction; any
// environment overrides are resolved once at the boundary by the config
// package, never re-read here.
package fscache

import (
	"sync"
	"time"

	"github.com/acolita/pty-shell-mcp/internal/task"
)

// EntryType classifies a scanned filesystem entry.
type EntryType int

const (
	TypeFile EntryType = iota + 1
	TypeDir
	TypeSymlink
)

// String returns the wire name used by discovery tools.
func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// ParseEntryType maps a wire name back to an EntryType; zero means no match.
func ParseEntryType(s string) EntryType {
	switch s {
	case "file":
		return TypeFile
	case "dir":
		return TypeDir
	case "symlink":
		return TypeSymlink
	default:
		return 0
	}
}

// Entry is a single filesystem entry from a directory scan.
type Entry struct {
	// Path is relative to the scan root, using forward slashes.
	Path string `json:"path"`
	// Type is the resolved filesystem type (symlinks are not followed).
	Type EntryType `json:"file_type"`
	// MTimeMs is the modification time in milliseconds since the Unix
	// epoch; zero when unavailable.
	MTimeMs int64 `json:"mtime,omitempty"`
}

// Policy is the global cache policy.
type Policy struct {
	// TTL bounds how long a scan stays reusable. Zero disables caching.
	TTL time.Duration
	// EmptyRecheck is the cache age past which an empty query result
	// warrants a forced rescan before returning empty.
	EmptyRecheck time.Duration
	// MaxEntries bounds the number of cached scans; the oldest is evicted
	// beyond it.
	MaxEntries int
}

// DefaultPolicy mirrors the shipped defaults.
func DefaultPolicy() Policy {
	return Policy{
		TTL:          time.Second,
		EmptyRecheck: 200 * time.Millisecond,
		MaxEntries:   16,
	}
}

// Key identifies one cached scan.
type Key struct {
	Root          string
	IncludeHidden bool
	UseGitignore  bool
}

type cacheEntry struct {
	createdAt time.Time
	entries   []Entry
}

// ScanResult is a cache-aware scan outcome. CacheAge is zero for a fresh
// scan; callers use it to implement the empty-result fast recheck.
type ScanResult struct {
	Entries  []Entry
	CacheAge time.Duration
}

// Cache is a TTL cache of directory scans keyed by (root, hidden,
// gitignore).
type Cache struct {
	mu      sync.RWMutex
	policy  Policy
	entries map[Key]cacheEntry
}

// New creates a cache with the given policy.
func New(policy Policy) *Cache {
	return &Cache{
		policy:  policy,
		entries: make(map[Key]cacheEntry),
	}
}

// Policy returns the active policy.
func (c *Cache) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// SetPolicy swaps the policy at runtime (config hot-reload).
func (c *Cache) SetPolicy(policy Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = policy
}

// Len reports the number of cached scans.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrScan returns entries for root under the TTL policy, scanning fresh
// when the cache misses or has expired.
func (c *Cache) GetOrScan(root string, includeHidden, useGitignore bool, tok *task.CancelToken) (ScanResult, error) {
	policy := c.Policy()
	if policy.TTL <= 0 {
		entries, err := collectEntries(root, includeHidden, useGitignore, tok)
		if err != nil {
			return ScanResult{}, err
		}
		return ScanResult{Entries: entries}, nil
	}

	key := Key{Root: root, IncludeHidden: includeHidden, UseGitignore: useGitignore}
	now := time.Now()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		age := now.Sub(entry.createdAt)
		if age < policy.TTL {
			c.mu.Unlock()
			return ScanResult{Entries: entry.entries, CacheAge: age}, nil
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	entries, err := collectEntries(root, includeHidden, useGitignore, tok)
	if err != nil {
		return ScanResult{}, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{createdAt: now, entries: entries}
	c.evictOldestLocked()
	c.mu.Unlock()

	return ScanResult{Entries: entries}, nil
}

// ForceRescan drops any cached scan for root and scans fresh. When store is
// false the result does not repopulate the cache.
func (c *Cache) ForceRescan(root string, includeHidden, useGitignore, store bool, tok *task.CancelToken) ([]Entry, error) {
	key := Key{Root: root, IncludeHidden: includeHidden, UseGitignore: useGitignore}

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	entries, err := collectEntries(root, includeHidden, useGitignore, tok)
	if err != nil {
		return nil, err
	}
	if store {
		c.mu.Lock()
		c.entries[key] = cacheEntry{createdAt: time.Now(), entries: entries}
		c.evictOldestLocked()
		c.mu.Unlock()
	}
	return entries, nil
}

// InvalidatePath removes cached scans whose root contains target, because a
// mutation under that root makes the scan stale. Relative targets resolve
// against the current directory.
func (c *Cache) InvalidatePath(target string) {
	abs := absolutePath(target)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if pathHasPrefix(abs, key.Root) {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll clears every cached scan.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Cache) evictOldestLocked() {
	if c.policy.MaxEntries <= 0 || len(c.entries) <= c.policy.MaxEntries {
		return
	}
	var oldestKey Key
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.createdAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.createdAt
			first = false
		}
	}
	delete(c.entries, oldestKey)
}
