package fscache

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ignoreRule is one parsed .gitignore line.
type ignoreRule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// ignoreFile holds the parsed ignore rules of a scan root: the repository
// root .gitignore plus .git/info/exclude. Nested .gitignore files, global
// excludes, parent repositories, and .ignore files are not consulted, so
// entries only those would hide still appear in scans.
type ignoreFile struct {
	rules []ignoreRule
}

// loadGitignore parses the root's ignore files; missing or unreadable files
// yield no rules, and no rules at all yields nil (nothing ignored).
func loadGitignore(root string) *ignoreFile {
	// info/exclude ranks below the root .gitignore, so it parses first and
	// later rules win on conflict.
	var rules []ignoreRule
	for _, name := range []string{
		filepath.Join(".git", "info", "exclude"),
		".gitignore",
	} {
		rules = append(rules, parseIgnoreFile(filepath.Join(root, name))...)
	}
	if len(rules) == 0 {
		return nil
	}
	return &ignoreFile{rules: rules}
}

// parseIgnoreFile parses one file of gitignore-syntax lines.
func parseIgnoreFile(path string) []ignoreRule {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var rules []ignoreRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule := ignoreRule{}
		if strings.HasPrefix(line, "!") {
			rule.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			rule.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			rule.anchored = true
			line = line[1:]
		}
		if line == "" {
			continue
		}
		rule.pattern = line
		rules = append(rules, rule)
	}
	return rules
}

// Ignored reports whether the relative path matches the ignore rules. The
// last matching rule wins, as in git.
func (f *ignoreFile) Ignored(rel string, isDir bool) bool {
	ignored := false
	for _, rule := range f.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		pattern := rule.pattern
		if !rule.anchored && !strings.Contains(pattern, "/") {
			pattern = "**/" + pattern
		}
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			ignored = !rule.negate
		}
	}
	return ignored
}
