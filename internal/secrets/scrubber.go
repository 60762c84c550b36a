// Package secrets redacts credentials from text before it is shown to the
// language model or returned to callers.
package secrets

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/fyrsmithlabs/helpdesk/internal/config"
)

const defaultRedaction = "[REDACTED]"

// Rule is one detection pattern.
type Rule struct {
	ID          string
	Description string
	Pattern     string

	// Keywords, when set, must appear (case-insensitively) somewhere in the
	// content before Pattern is tried.
	Keywords []string
}

// Config configures a Scrubber.
type Config struct {
	Enabled   bool
	Rules     []Rule
	Redaction string

	// AllowList holds patterns whose matches are never redacted.
	AllowList []string
}

// DefaultConfig returns an enabled configuration with DefaultRules.
func DefaultConfig() *Config {
	return &Config{Enabled: true, Rules: DefaultRules(), Redaction: defaultRedaction}
}

// FromSettings builds the scrubber configuration from the secrets section.
func FromSettings(s config.SecretsConfig) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = s.Enabled
	return cfg
}

// Result reports what Scrub changed. Matched values are never included.
type Result struct {
	Scrubbed string
	ByRule   map[string]int
	Total    int
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return r.Total > 0
}

// Scrubber redacts secrets. It is immutable after New and safe for
// concurrent use.
type Scrubber struct {
	enabled   bool
	redaction string
	rules     []compiledRule
	allow     []*regexp.Regexp
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

type span struct{ start, end int }

// New compiles cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Scrubber{enabled: cfg.Enabled, redaction: cfg.Redaction}
	if s.redaction == "" {
		s.redaction = defaultRedaction
	}
	if !cfg.Enabled {
		return s, nil
	}

	for i, rule := range cfg.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d: ID is required", i)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil || rule.Pattern == "" {
			return nil, fmt.Errorf("rule %s: invalid pattern: %v", rule.ID, err)
		}
		cr := compiledRule{id: rule.ID, pattern: pattern}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		s.rules = append(s.rules, cr)
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}
	return s, nil
}

// MustNew is New that panics on error.
func MustNew(cfg *Config) *Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Enabled reports whether Scrub does anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub replaces every match with the redaction string. Overlapping
// matches collapse into one redaction.
func (s *Scrubber) Scrub(content string) Result {
	result := Result{Scrubbed: content, ByRule: map[string]int{}}
	if !s.Enabled() || content == "" {
		return result
	}

	var spans []span
	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			spans = append(spans, span{m[0], m[1]})
			result.ByRule[rule.id]++
			result.Total++
		}
	}
	if len(spans) == 0 {
		return result
	}

	merged := mergeSpans(spans)
	out := make([]byte, 0, len(content))
	prev := 0
	for _, sp := range merged {
		out = append(out, content[prev:sp.start]...)
		out = append(out, s.redaction...)
		prev = sp.end
	}
	out = append(out, content[prev:]...)
	result.Scrubbed = string(out)
	return result
}

// String is Scrub(content).Scrubbed.
func (s *Scrubber) String(content string) string {
	return s.Scrub(content).Scrubbed
}

func (r compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
