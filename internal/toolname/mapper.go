// Package toolname maps raw tool identifiers to timeline labels and decides
// which identifiers stay hidden.
package toolname

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	bareAgentPattern = regexp.MustCompile(`(?i)^(clera|agent)$`)
	separators       = strings.NewReplacer("_", " ", "-", " ")
)

// Visibility can hide additional tool names on top of the built-in rules.
type Visibility interface {
	Hidden(toolName string) bool
}

// Mapper resolves labels and visibility for tool names. It holds no mutable
// state and is safe for concurrent use.
type Mapper struct {
	exact      map[string]string
	rules      []keywordRule
	visibility Visibility
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithVisibility installs an extra visibility check.
func WithVisibility(v Visibility) Option {
	return func(m *Mapper) {
		m.visibility = v
	}
}

// WithLabels adds or overrides exact labels.
func WithLabels(labels map[string]string) Option {
	return func(m *Mapper) {
		for k, v := range labels {
			m.exact[k] = v
		}
	}
}

// New creates a mapper with the built-in label table and keyword rules.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		exact: make(map[string]string, len(exactLabels)),
		rules: make([]keywordRule, len(defaultRules)),
	}
	for k, v := range exactLabels {
		m.exact[k] = v
	}
	copy(m.rules, defaultRules)
	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].Priority > m.rules[j].Priority
	})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MapToolName returns the label for a raw tool name. An empty label means the
// tool is deliberately suppressed.
func (m *Mapper) MapToolName(raw string) string {
	if label, ok := m.exact[raw]; ok {
		return label
	}
	if label, ok := m.exact[NormalizeKey(raw)]; ok {
		return label
	}

	lower := strings.ToLower(raw)
	for _, rule := range m.rules {
		if matchesAll(lower, rule.Keywords) {
			return rule.Label
		}
	}

	return defaultLabel(raw)
}

// ShouldFilterTool reports whether the tool must not appear in the timeline.
func (m *Mapper) ShouldFilterTool(raw string) bool {
	if m.MapToolName(raw) == "" {
		return true
	}
	if raw == SentinelRunCompleted {
		return true
	}
	if bareAgentPattern.MatchString(raw) {
		return true
	}
	if strings.HasSuffix(raw, "_agent") && !strings.HasPrefix(raw, "transfer_") {
		return true
	}
	if m.visibility != nil && m.visibility.Hidden(raw) {
		return true
	}
	return false
}

// IsAgentNode reports whether a graph node name identifies an agent rather
// than a tool.
func IsAgentNode(name string) bool {
	return strings.HasSuffix(name, "_agent") && !strings.HasPrefix(name, "transfer_")
}

// NormalizeKey returns the dedup key for a raw tool name.
func NormalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.Join(strings.FieldsFunc(key, func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t'
	}), "_")
	return key
}

func matchesAll(s string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, kw := range keywords {
		if !strings.Contains(s, kw) {
			return false
		}
	}
	return true
}

// defaultLabel turns "get_fx_rate" into "Get Fx Rate".
func defaultLabel(raw string) string {
	words := strings.Fields(separators.Replace(raw))
	if len(words) == 0 {
		return ""
	}
	// Casers are stateful, so build one per call.
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(words, " "))
}
