// Package match finds every span that must be replaced in a text: entity
// originals and variations from a registry snapshot, plus pattern-rule
// matches from the catalog. Scanning is left to right, longest match first,
// and the resulting list never overlaps.
package match

import (
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/registry"
)

// Kind distinguishes what produced a match.
type Kind string

const (
	KindEntity  Kind = "entity"
	KindPattern Kind = "pattern"
)

// Match is one replaceable span. Text is the literal substring actually
// matched, which may be a variation rather than the canonical original.
type Match struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text"`
	Kind   Kind   `json:"kind"`
	Entity string `json:"entity,omitempty"` // normalized original key
	Rule   string `json:"rule,omitempty"`

	order int
}

// Len returns the matched span length in bytes.
func (m Match) Len() int {
	return m.End - m.Start
}

// literalCandidate is one compiled entity literal.
type literalCandidate struct {
	re        *regexp.Regexp
	entityKey string
	order     int
}

// Matcher scans text against a fixed registry snapshot and pattern catalog.
// It holds no mutable state: Scan is a pure function and safe for
// concurrent use across documents.
type Matcher struct {
	literals    []literalCandidate
	rules       []*pattern.Rule
	patternBase int
	logger      *zap.Logger
}

// New compiles a matcher for the given snapshot and catalog. Entity literals
// match case-insensitively unless the owning entity is case-sensitive
// (acronym handling); all literal matching is token-boundary checked.
func New(snap *registry.Snapshot, catalog *pattern.Catalog, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Matcher{logger: logger}

	entities := snap.Entities()
	for i := range entities {
		e := &entities[i]
		for _, lit := range e.Literals() {
			expr := regexp.QuoteMeta(lit)
			if !e.CaseSensitive {
				expr = "(?i)" + expr
			}
			m.literals = append(m.literals, literalCandidate{
				// QuoteMeta output always compiles.
				re:        regexp.MustCompile(expr),
				entityKey: e.Key(),
				order:     i,
			})
		}
	}

	m.patternBase = len(entities)
	m.rules = catalog.Rules()

	logger.Debug("Matcher compiled",
		zap.Int("entities", len(entities)),
		zap.Int("literals", len(m.literals)),
		zap.Int("pattern_rules", len(m.rules)),
	)

	return m
}

// Scan produces the ordered, non-overlapping match list for text. At each
// position the longest candidate wins; ties go to the earliest-declared
// entity, then the earliest-declared rule. Once a span is consumed,
// scanning resumes after it.
func (m *Matcher) Scan(text string) []Match {
	if text == "" {
		return nil
	}

	var candidates []Match

	for _, c := range m.literals {
		for _, loc := range c.re.FindAllStringIndex(text, -1) {
			if !TokenBounded(text, loc[0], loc[1]) {
				continue
			}
			candidates = append(candidates, Match{
				Start:  loc[0],
				End:    loc[1],
				Text:   text[loc[0]:loc[1]],
				Kind:   KindEntity,
				Entity: c.entityKey,
				order:  c.order,
			})
		}
	}

	for j, rule := range m.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			candidates = append(candidates, Match{
				Start: loc[0],
				End:   loc[1],
				Text:  text[loc[0]:loc[1]],
				Kind:  KindPattern,
				Rule:  rule.Name,
				order: m.patternBase + j,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len() // longest first
		}
		return a.order < b.order
	})

	// Greedy sweep: the first candidate at each position is the winner;
	// anything overlapping an already-consumed span is dropped.
	matches := make([]Match, 0, len(candidates))
	consumedEnd := 0
	for _, c := range candidates {
		if c.Start < consumedEnd {
			continue
		}
		matches = append(matches, c)
		consumedEnd = c.End
	}

	return matches
}

// TokenBounded reports whether the span [start, end) sits on token
// boundaries: the match must not begin or end inside an alphanumeric run
// that extends beyond it. This is what keeps "Jon" from matching inside
// "Jonathan".
func TokenBounded(text string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		first, _ := utf8.DecodeRuneInString(text[start:])
		if isWordRune(prev) && isWordRune(first) {
			return false
		}
	}
	if end < len(text) {
		last, _ := utf8.DecodeLastRuneInString(text[:end])
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(last) && isWordRune(next) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
