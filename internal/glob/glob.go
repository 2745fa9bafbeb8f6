// Package glob implements filesystem discovery with glob patterns, ignore
// semantics, and shared scan caching. It resolves a search root, obtains
// scanned entries from the fscache, applies glob matching plus optional
// file-type filtering, and optionally streams each accepted match through a
// callback.
package glob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/acolita/pty-shell-mcp/internal/fscache"
	"github.com/acolita/pty-shell-mcp/internal/task"
)

// Options configures one glob query.
type Options struct {
	// Pattern is the glob to match (e.g. "*.go"). Bare names match at any
	// depth. An empty pattern matches everything.
	Pattern string
	// Path is the directory to search.
	Path string
	// FileType filters matches by type; zero means no filter.
	FileType fscache.EntryType
	// Hidden includes hidden files (default false).
	Hidden bool
	// MaxResults bounds the result set; values <= 0 mean unlimited.
	MaxResults int
	// NoGitignore disables .gitignore handling (it is on by default).
	NoGitignore bool
	// Cache enables the shared scan cache (default off: always scan fresh).
	Cache bool
	// SortByMTime ranks matches by descending mtime before truncation.
	SortByMTime bool
	// IncludeNodeModules includes node_modules entries; nil infers it from
	// whether the pattern mentions them.
	IncludeNodeModules *bool
	// Timeout bounds the query; zero means no deadline.
	Timeout time.Duration
}

// Result is the payload of a completed glob query.
type Result struct {
	Matches []fscache.Entry `json:"matches"`
	Total   int             `json:"total_matches"`
}

// MatchFunc receives each accepted match as it is found.
type MatchFunc func(fscache.Entry)

// runConfig is the resolved per-query configuration.
type runConfig struct {
	root                string
	pattern             string
	includeHidden       bool
	fileType            fscache.EntryType
	maxResults          int
	useGitignore        bool
	mentionsNodeModules bool
	sortByMTime         bool
	useCache            bool
}

// normalizePattern prefixes bare patterns so "*.go" matches at any depth,
// mirroring the behavior of path-aware patterns being taken literally.
func normalizePattern(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = "*"
	}
	if strings.Contains(pattern, "/") || strings.HasPrefix(pattern, "**") {
		return pattern
	}
	return "**/" + pattern
}

// Run dispatches a glob query and returns a future resolving to its result.
// The query runs off the caller's goroutine and heartbeats its cancel token
// while filtering.
func Run(ctx context.Context, cache *fscache.Cache, opts Options, onMatch MatchFunc) *task.Future[Result] {
	pattern := normalizePattern(opts.Pattern)
	tok := task.NewCancelToken(opts.Timeout, ctx)

	return task.Go("glob", func() (Result, error) {
		root, err := fscache.ResolveSearchPath(opts.Path)
		if err != nil {
			return Result{}, err
		}
		mentions := strings.Contains(pattern, "node_modules")
		if opts.IncludeNodeModules != nil {
			mentions = *opts.IncludeNodeModules
		}
		return run(cache, runConfig{
			root:                root,
			pattern:             pattern,
			includeHidden:       opts.Hidden,
			fileType:            opts.FileType,
			maxResults:          opts.MaxResults,
			useGitignore:        !opts.NoGitignore,
			mentionsNodeModules: mentions,
			sortByMTime:         opts.SortByMTime,
			useCache:            opts.Cache,
		}, onMatch, tok)
	})
}

// run executes matching and filtering over scanned entries.
func run(cache *fscache.Cache, cfg runConfig, onMatch MatchFunc, tok *task.CancelToken) (Result, error) {
	if !doublestar.ValidatePattern(cfg.pattern) {
		return Result{}, fmt.Errorf("invalid glob pattern: %q", cfg.pattern)
	}

	var matches []fscache.Entry
	if cfg.useCache {
		scan, err := cache.GetOrScan(cfg.root, cfg.includeHidden, cfg.useGitignore, tok)
		if err != nil {
			return Result{}, err
		}
		matches, err = filterEntries(scan.Entries, cfg, onMatch, tok)
		if err != nil {
			return Result{}, err
		}
		// Empty-result fast recheck: zero matches from an old enough cached
		// scan forces one rescan before returning empty.
		if len(matches) == 0 && scan.CacheAge >= cache.Policy().EmptyRecheck {
			fresh, err := cache.ForceRescan(cfg.root, cfg.includeHidden, cfg.useGitignore, true, tok)
			if err != nil {
				return Result{}, err
			}
			matches, err = filterEntries(fresh, cfg, onMatch, tok)
			if err != nil {
				return Result{}, err
			}
		}
	} else {
		fresh, err := cache.ForceRescan(cfg.root, cfg.includeHidden, cfg.useGitignore, false, tok)
		if err != nil {
			return Result{}, err
		}
		matches, err = filterEntries(fresh, cfg, onMatch, tok)
		if err != nil {
			return Result{}, err
		}
	}

	if cfg.sortByMTime {
		// Rank by mtime descending, then truncate.
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].MTimeMs > matches[j].MTimeMs
		})
		if cfg.maxResults > 0 && len(matches) > cfg.maxResults {
			matches = matches[:cfg.maxResults]
		}
	}
	return Result{Matches: matches, Total: len(matches)}, nil
}

// filterEntries collects matching entries from a pre-scanned list. When not
// sorting it stops early at the result limit; mtime ranking needs the full
// candidate set.
func filterEntries(entries []fscache.Entry, cfg runConfig, onMatch MatchFunc, tok *task.CancelToken) ([]fscache.Entry, error) {
	var matches []fscache.Entry
	for _, entry := range entries {
		if err := tok.Heartbeat(); err != nil {
			return nil, err
		}
		if fscache.ShouldSkipPath(entry.Path, cfg.mentionsNodeModules) {
			continue
		}
		if !doublestar.MatchUnvalidated(cfg.pattern, entry.Path) {
			continue
		}
		if cfg.fileType != 0 && cfg.fileType != entry.Type {
			continue
		}
		if onMatch != nil {
			onMatch(entry)
		}
		matches = append(matches, entry)
		if !cfg.sortByMTime && cfg.maxResults > 0 && len(matches) >= cfg.maxResults {
			break
		}
	}
	return matches, nil
}
