package redact

import (
	"time"

	"github.com/textveil/textveil/internal/match"
)

// Substitution is one applied replacement: what span was replaced, with
// what, and which entity or rule produced it.
type Substitution struct {
	Start       int        `json:"start"`
	End         int        `json:"end"`
	Matched     string     `json:"matched"`
	Replacement string     `json:"replacement"`
	Source      string     `json:"source"` // canonical original or rule name
	Kind        match.Kind `json:"kind"`
}

// Record is the per-document substitution log. It is what the verifier's
// consistency check and the schema exporter consume, and it holds the only
// copy of random-mode mappings.
type Record struct {
	RunID            string            `json:"run_id"`
	DocumentID       string            `json:"document_id"`
	Technique        Technique         `json:"technique"`
	RegistryRevision string            `json:"registry_revision"`
	Substitutions    []Substitution    `json:"substitutions"`
	RandomAliases    map[string]string `json:"random_aliases,omitempty"` // entity key -> issued id
	CreatedAt        time.Time         `json:"created_at"`
}

// CountByKind tallies substitutions by source kind.
func (r *Record) CountByKind() map[match.Kind]int {
	counts := make(map[match.Kind]int)
	for _, s := range r.Substitutions {
		counts[s.Kind]++
	}
	return counts
}

// RunSummary aggregates the substitution records of one run.
type RunSummary struct {
	Documents          int                `json:"documents"`
	TotalSubstitutions int                `json:"total_substitutions"`
	ByKind             map[match.Kind]int `json:"by_kind"`
	BySource           map[string]int     `json:"by_source"`
}

// Summarize builds a run summary from per-document records.
func Summarize(records []*Record) RunSummary {
	summary := RunSummary{
		ByKind:   make(map[match.Kind]int),
		BySource: make(map[string]int),
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		summary.Documents++
		summary.TotalSubstitutions += len(rec.Substitutions)
		for _, s := range rec.Substitutions {
			summary.ByKind[s.Kind]++
			summary.BySource[s.Source]++
		}
	}
	return summary
}
