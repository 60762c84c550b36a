// Package ignore excludes data files from indexing using gitignore-style
// pattern files.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultFile is the ignore file looked up in the data directory root.
const DefaultFile = ".helpdeskignore"

// DefaultPatterns apply when the data directory has no ignore file.
var DefaultPatterns = []string{"**/.*"}

// Parser reads gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are returned when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// Parse reads every ignore file in root and returns the combined glob
// patterns. Fallback patterns are returned when none exist.
func (p *Parser) Parse(root string) ([]string, error) {
	var patterns []string
	foundAny := false

	for _, name := range p.IgnoreFiles {
		filePatterns, err := parseFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
		foundAny = true
	}

	if !foundAny {
		return p.FallbackPatterns, nil
	}
	return deduplicate(patterns), nil
}

func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return patterns, nil
}

// parseLine converts one ignore file line into a doublestar pattern.
// Comments, blank lines and negations yield "".
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern follows gitignore anchoring: a leading or inner slash anchors
// the pattern to the root, otherwise it matches at any depth. A trailing
// slash matches everything below a directory.
func toGlobPattern(pattern string) string {
	dir := strings.HasSuffix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")

	anchored := strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if !anchored && !strings.HasPrefix(pattern, "**") {
		pattern = "**/" + pattern
	}
	if dir {
		pattern += "/**"
	}
	return pattern
}

func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// Matcher reports whether a path relative to the data directory is ignored.
// A nil Matcher ignores nothing.
type Matcher struct {
	patterns []string
}

// NewMatcher validates patterns and returns a Matcher for them.
func NewMatcher(patterns []string) (*Matcher, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	return &Matcher{patterns: patterns}, nil
}

// Load builds the Matcher for a data directory from DefaultFile, falling
// back to DefaultPatterns.
func Load(root string) (*Matcher, error) {
	patterns, err := NewParser([]string{DefaultFile}, DefaultPatterns).Parse(root)
	if err != nil {
		return nil, err
	}
	return NewMatcher(patterns)
}

// Match reports whether rel (slash or OS separated) is ignored. A path is
// also ignored when any of its parent directories matches.
func (m *Matcher) Match(rel string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	for candidate := rel; candidate != "." && candidate != "/"; candidate = filepath.ToSlash(filepath.Dir(candidate)) {
		for _, p := range m.patterns {
			if ok, _ := doublestar.Match(p, candidate); ok {
				return true
			}
		}
	}
	return false
}

// Patterns returns the patterns in effect.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return m.patterns
}
