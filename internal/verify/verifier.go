// Package verify re-scans redacted output for leaks: entity literals that
// survived, sub-tokens of multi-word originals, and pattern-rule matches.
// It also checks cross-document alias consistency over a run's substitution
// records. Verification never mutates text or registry.
package verify

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/match"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/redact"
	"github.com/textveil/textveil/internal/registry"
)

// Kind classifies a leak finding.
type Kind string

const (
	// KindExact is an entity original or variation still present verbatim.
	KindExact Kind = "exact"
	// KindPartial is a word-level sub-sequence of an original or variation
	// (a surname alone, for example) surviving where the full literal was
	// supposed to be replaced.
	KindPartial Kind = "partial"
	// KindPattern is a pattern rule still matching in the output.
	KindPattern Kind = "pattern"
)

// Finding is one leak occurrence.
type Finding struct {
	Kind   Kind   `json:"kind"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"text"`
	Source string `json:"source"` // entity original key or rule name
}

// Report is the per-document verification verdict.
type Report struct {
	DocumentID string    `json:"document_id"`
	Findings   []Finding `json:"findings"`
	Pass       bool      `json:"pass"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// Options tunes the verifier.
type Options struct {
	// MinPartialLength is the minimum character length for a partial-leak
	// candidate; shorter sub-tokens ("Q", "de") are too noisy to report.
	MinPartialLength int
	// CheckPatterns enables the pattern-leak pass.
	CheckPatterns bool
}

// DefaultOptions returns the standard verifier settings.
func DefaultOptions() Options {
	return Options{MinPartialLength: 4, CheckPatterns: true}
}

type partialCandidate struct {
	re     *regexp.Regexp
	source string
}

// Verifier scans redacted text against a fixed registry snapshot. Safe for
// concurrent use across documents.
type Verifier struct {
	matcher  *match.Matcher
	partials []partialCandidate
	opts     Options
	logger   *zap.Logger
}

// New builds a verifier over the same snapshot and catalog the forward pass
// used. Partial-leak candidates are every contiguous word sub-sequence of
// every multi-word original/variation, minus sub-sequences that are
// themselves registry literals (the exact pass owns those) or words of an
// alias (which legitimately appear in output).
func New(snap *registry.Snapshot, catalog *pattern.Catalog, opts Options, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MinPartialLength <= 0 {
		opts.MinPartialLength = DefaultOptions().MinPartialLength
	}

	v := &Verifier{
		matcher: match.New(snap, catalog, logger),
		opts:    opts,
		logger:  logger,
	}

	entities := snap.Entities()

	aliasWords := make(map[string]bool)
	fullLiterals := make(map[string]bool)
	for i := range entities {
		for _, w := range splitWords(entities[i].Alias) {
			aliasWords[strings.ToLower(w)] = true
		}
		for _, lit := range entities[i].Literals() {
			fullLiterals[strings.ToLower(lit)] = true
		}
	}

	seen := make(map[string]bool)
	for i := range entities {
		e := &entities[i]
		for _, lit := range e.Literals() {
			words := splitWords(lit)
			if len(words) < 2 {
				continue // a single word has no proper sub-sequence
			}
			for lo := 0; lo < len(words); lo++ {
				for hi := lo + 1; hi <= len(words); hi++ {
					if lo == 0 && hi == len(words) {
						continue // the full literal is the exact pass's job
					}
					phrase := strings.Join(words[lo:hi], " ")
					key := strings.ToLower(phrase)
					if len(phrase) < opts.MinPartialLength || seen[key] || fullLiterals[key] {
						continue
					}
					if hi-lo == 1 && aliasWords[key] {
						continue
					}
					seen[key] = true
					v.partials = append(v.partials, partialCandidate{
						re:     compilePhrase(words[lo:hi], e.CaseSensitive),
						source: e.Key(),
					})
				}
			}
		}
	}

	logger.Debug("Verifier compiled",
		zap.Int("entities", len(entities)),
		zap.Int("partial_candidates", len(v.partials)),
		zap.Int("min_partial_length", opts.MinPartialLength),
	)

	return v
}

// VerifyDocument scans one redacted document and returns its report.
// Absence of findings is the passing, non-error result.
func (v *Verifier) VerifyDocument(documentID, text string) *Report {
	report := &Report{
		DocumentID: documentID,
		ScannedAt:  time.Now(),
	}

	var exactSpans [][2]int

	for _, m := range v.matcher.Scan(text) {
		switch m.Kind {
		case match.KindEntity:
			report.Findings = append(report.Findings, Finding{
				Kind:   KindExact,
				Start:  m.Start,
				End:    m.End,
				Text:   m.Text,
				Source: m.Entity,
			})
			exactSpans = append(exactSpans, [2]int{m.Start, m.End})
		case match.KindPattern:
			if v.opts.CheckPatterns {
				report.Findings = append(report.Findings, Finding{
					Kind:   KindPattern,
					Start:  m.Start,
					End:    m.End,
					Text:   m.Text,
					Source: m.Rule,
				})
			}
		}
	}

	for _, pc := range v.partials {
		for _, loc := range pc.re.FindAllStringIndex(text, -1) {
			if !match.TokenBounded(text, loc[0], loc[1]) {
				continue
			}
			if overlapsAny(loc[0], loc[1], exactSpans) {
				continue // already reported as an exact leak
			}
			report.Findings = append(report.Findings, Finding{
				Kind:   KindPartial,
				Start:  loc[0],
				End:    loc[1],
				Text:   text[loc[0]:loc[1]],
				Source: pc.source,
			})
		}
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})

	report.Pass = len(report.Findings) == 0

	v.logger.Debug("Document verified",
		zap.String("document_id", documentID),
		zap.Int("findings", len(report.Findings)),
		zap.Bool("pass", report.Pass),
	)

	return report
}

// Inconsistency reports one entity replaced by more than one distinct alias
// string across a batch redacted in consistent mode.
type Inconsistency struct {
	Entity    string   `json:"entity"`
	Aliases   []string `json:"aliases"`
	Documents []string `json:"documents"`
}

// CheckConsistency inspects a run's substitution records for cross-document
// alias drift. Records produced with random identifiers are excluded: their
// per-document variance is intentional.
func CheckConsistency(records []*redact.Record) []Inconsistency {
	type agg struct {
		aliases map[string]bool
		docs    map[string]bool
	}
	byEntity := make(map[string]*agg)
	var order []string

	for _, rec := range records {
		if rec == nil || rec.Technique == redact.TechniqueRandom || len(rec.RandomAliases) > 0 {
			continue
		}
		for _, s := range rec.Substitutions {
			if s.Kind != match.KindEntity {
				continue
			}
			a := byEntity[s.Source]
			if a == nil {
				a = &agg{aliases: make(map[string]bool), docs: make(map[string]bool)}
				byEntity[s.Source] = a
				order = append(order, s.Source)
			}
			a.aliases[s.Replacement] = true
			a.docs[rec.DocumentID] = true
		}
	}

	var result []Inconsistency
	for _, entity := range order {
		a := byEntity[entity]
		if len(a.aliases) < 2 {
			continue
		}
		result = append(result, Inconsistency{
			Entity:    entity,
			Aliases:   sortedKeys(a.aliases),
			Documents: sortedKeys(a.docs),
		})
	}
	return result
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !('0' <= r && r <= '9') && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && r < 0x80
	})
}

// compilePhrase builds a recognizer for a word sequence with flexible
// whitespace between words.
func compilePhrase(words []string, caseSensitive bool) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	expr := strings.Join(quoted, `\s+`)
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	return regexp.MustCompile(expr)
}

func overlapsAny(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
