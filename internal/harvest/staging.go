package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DefaultMediaPatterns selects the still images a post can carry.
var DefaultMediaPatterns = []string{"*.jpg", "*.jpeg", "*.png"}

// MediaMatcher selects media files by name using gitignore pattern syntax.
// Matching is case-insensitive and negated patterns ("!*_thumb.jpg") exclude
// files matched by earlier patterns.
type MediaMatcher struct {
	m gitignore.Matcher
}

// NewMediaMatcher compiles patterns; an empty list means DefaultMediaPatterns.
func NewMediaMatcher(patterns []string) MediaMatcher {
	if len(patterns) == 0 {
		patterns = DefaultMediaPatterns
	}
	var ps []gitignore.Pattern
	for _, line := range patterns {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(strings.ToLower(line), nil))
	}
	return MediaMatcher{m: gitignore.NewMatcher(ps)}
}

// Match reports whether a file name is media.
func (mm MediaMatcher) Match(name string) bool {
	return mm.m.Match([]string{strings.ToLower(name)}, false)
}

// Staging is the temporary download area for one post at a time.
type Staging struct {
	Dir string
}

// Reset empties the staging area, creating it if needed.
func (s Staging) Reset() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("reset staging: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("reset staging: %w", err)
	}
	return nil
}

// Collect returns the staged media files in name order.
func (s Staging) Collect(mm MediaMatcher) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("collect staged media: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !mm.Match(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(s.Dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Remove deletes the staging area.
func (s Staging) Remove() error {
	return os.RemoveAll(s.Dir)
}
