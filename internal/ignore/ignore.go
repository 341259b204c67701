// Package ignore applies .mdumbignore visibility rules. Ignored documents are
// hidden from listings and the catalog but stay readable and writable by
// direct path.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Filename is the name of the ignore file at the content root.
const Filename = ".mdumbignore"

const defaultCacheSize = 16

// Ruleset is the compiled set of patterns for one content root.
type Ruleset struct {
	root     string
	patterns []string
	loaded   bool
	ignore   *gitignore.GitIgnore
}

// Match reports whether rel (slash separated, relative to the root) is
// ignored. Directories are tested both with and without a trailing slash
// so that "drafts/" and "drafts" patterns each hide the folder.
func (r *Ruleset) Match(rel string, isDir bool) bool {
	if r == nil || len(r.patterns) == 0 {
		return false
	}
	p := normalize(rel)
	if p == "" {
		return false
	}
	if isDir {
		if r.ignore.MatchesPath(p + "/") {
			return true
		}
	}
	return r.ignore.MatchesPath(p)
}

// Patterns returns a copy of the effective patterns.
func (r *Ruleset) Patterns() []string {
	return append([]string(nil), r.patterns...)
}

// Status describes the ruleset cached for a root.
type Status struct {
	Loaded       bool   `json:"loaded"`
	Root         string `json:"root"`
	PatternCount int    `json:"patternCount"`
}

// Matcher loads and caches rulesets per content root.
type Matcher struct {
	cache  *lru.Cache[string, *Ruleset]
	logger *slog.Logger
}

// New creates a Matcher. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *Ruleset](defaultCacheSize)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(fmt.Sprintf("ignore: create cache: %v", err))
	}
	return &Matcher{cache: cache, logger: logger}
}

// Load returns the ruleset for root, reading the ignore file on first use.
// A missing or unreadable file yields an empty ruleset. Concurrent first
// loads may both read the file; the result is the same either way.
func (m *Matcher) Load(root string) *Ruleset {
	key := filepath.Clean(root)
	if rs, ok := m.cache.Get(key); ok {
		return rs
	}
	rs := m.read(key)
	m.cache.Add(key, rs)
	return rs
}

// IsIgnored reports whether the file at rel under root is hidden.
func (m *Matcher) IsIgnored(rel, root string) bool {
	return m.Load(root).Match(rel, false)
}

// IsPathIgnored reports whether rel under root is hidden, treating it as a
// directory when isDir is set.
func (m *Matcher) IsPathIgnored(rel string, isDir bool, root string) bool {
	return m.Load(root).Match(rel, isDir)
}

// ClearCache drops every cached ruleset so the next lookup rereads the file.
func (m *Matcher) ClearCache() {
	m.cache.Purge()
}

// Status reports what is cached for root without loading it.
func (m *Matcher) Status(root string) Status {
	key := filepath.Clean(root)
	rs, ok := m.cache.Peek(key)
	if !ok {
		return Status{Root: key}
	}
	return Status{Loaded: rs.loaded, Root: key, PatternCount: len(rs.patterns)}
}

func (m *Matcher) read(root string) *Ruleset {
	rs := &Ruleset{root: root, loaded: true}
	path := filepath.Join(root, Filename)

	patterns, err := readPatterns(path)
	switch {
	case err == nil:
		rs.patterns = patterns
		m.logger.Debug("loaded ignore file",
			slog.String("path", path),
			slog.Int("patterns", len(patterns)))
	case errors.Is(err, fs.ErrNotExist):
	default:
		m.logger.Warn("failed to read ignore file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	rs.ignore = gitignore.CompileIgnoreLines(rs.patterns...)
	return rs
}

func readPatterns(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fs.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

func normalize(rel string) string {
	p := strings.ReplaceAll(rel, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return strings.TrimSuffix(p, "/")
}
