// Package redact applies a selected substitution technique to the match
// list of a document, producing the redacted text and a per-document
// substitution record.
package redact

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/match"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/registry"
)

// RegistryInconsistencyError reports a match whose source entity is absent
// from the active registry snapshot. Fatal for the document; a silent skip
// would be a leak.
type RegistryInconsistencyError struct {
	Literal    string
	DocumentID string
}

func (e *RegistryInconsistencyError) Error() string {
	return fmt.Sprintf("registry inconsistency in document %s: matched entity %q is absent from the active registry snapshot", e.DocumentID, e.Literal)
}

// Engine performs span-based replacement over a registry snapshot and a
// pattern catalog. It is stateless across documents and safe for
// concurrent use.
type Engine struct {
	snapshot *registry.Snapshot
	catalog  *pattern.Catalog
	logger   *zap.Logger
}

// NewEngine creates a replacement engine bound to one registry snapshot.
func NewEngine(snap *registry.Snapshot, catalog *pattern.Catalog, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{snapshot: snap, catalog: catalog, logger: logger}
}

// Snapshot returns the registry snapshot the engine was built against.
func (e *Engine) Snapshot() *registry.Snapshot {
	return e.snapshot
}

// Redact applies the run's technique to the match list and rebuilds the
// text in a single span-based pass, so earlier substitutions never shift
// later offsets. The match list must be the matcher's output for this exact
// text: ordered and non-overlapping.
func (e *Engine) Redact(documentID, text string, matches []match.Match, rc *RunContext) (string, *Record, error) {
	record := &Record{
		RunID:            rc.RunID,
		DocumentID:       documentID,
		Technique:        rc.Technique,
		RegistryRevision: e.snapshot.Revision(),
		CreatedAt:        time.Now(),
	}

	replaceEntities := rc.Technique != TechniquePatternOnly
	replacePatterns := rc.Technique == TechniquePatternOnly || rc.Technique == TechniqueHybrid
	randomEntities := rc.Technique == TechniqueRandom || (rc.Technique == TechniqueHybrid && rc.HybridRandom)

	// Per-document state: pattern numbering and random alias issuance are
	// both scoped to this document unless a rule says otherwise.
	docSeen := make(map[string]map[string]int)
	docNext := make(map[string]int)
	var randomAliases map[string]string
	usedIDs := make(map[string]bool)

	subs := make([]Substitution, 0, len(matches))

	for _, m := range matches {
		switch m.Kind {
		case match.KindEntity:
			if !replaceEntities {
				continue
			}
			ent := e.snapshot.Lookup(m.Entity)
			if ent == nil {
				return "", nil, &RegistryInconsistencyError{Literal: m.Text, DocumentID: documentID}
			}

			replacement := ent.Alias
			if randomEntities {
				if randomAliases == nil {
					randomAliases = make(map[string]string)
				}
				id, ok := randomAliases[ent.Key()]
				if !ok {
					var err error
					id, err = newRandomID(ent.Type, usedIDs)
					if err != nil {
						return "", nil, fmt.Errorf("failed to generate random identifier: %w", err)
					}
					randomAliases[ent.Key()] = id
					usedIDs[id] = true
				}
				replacement = id
			}

			subs = append(subs, Substitution{
				Start:       m.Start,
				End:         m.End,
				Matched:     m.Text,
				Replacement: replacement,
				Source:      ent.Original,
				Kind:        match.KindEntity,
			})

		case match.KindPattern:
			if !replacePatterns {
				continue
			}
			rule, ok := e.catalog.Rule(m.Rule)
			if !ok {
				return "", nil, fmt.Errorf("match references unknown pattern rule %q", m.Rule)
			}

			var n int
			if rule.Scope == pattern.ScopeGlobal {
				n = rc.globalNumber(rule.Name, m.Text)
			} else {
				key := strings.ToLower(m.Text)
				seen := docSeen[rule.Name]
				if seen == nil {
					seen = make(map[string]int)
					docSeen[rule.Name] = seen
				}
				if num, ok := seen[key]; ok {
					n = num
				} else {
					docNext[rule.Name]++
					n = docNext[rule.Name]
					seen[key] = n
				}
			}

			subs = append(subs, Substitution{
				Start:       m.Start,
				End:         m.End,
				Matched:     m.Text,
				Replacement: rule.Render(n),
				Source:      rule.Name,
				Kind:        match.KindPattern,
			})
		}
	}

	// Rebuild once from the computed spans.
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range subs {
		b.WriteString(text[last:s.Start])
		b.WriteString(s.Replacement)
		last = s.End
	}
	b.WriteString(text[last:])

	record.Substitutions = subs
	record.RandomAliases = randomAliases

	e.logger.Debug("Document redacted",
		zap.String("document_id", documentID),
		zap.String("technique", string(rc.Technique)),
		zap.Int("matches", len(matches)),
		zap.Int("substitutions", len(subs)),
	)

	return b.String(), record, nil
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newRandomID issues an identifier like PERSON-K7Q2M9XA, unique within the
// current document.
func newRandomID(t registry.Type, used map[string]bool) (string, error) {
	prefix := "ID"
	switch t {
	case registry.TypePerson:
		prefix = "PERSON"
	case registry.TypeOrganization:
		prefix = "ORG"
	case registry.TypeLocation:
		prefix = "LOC"
	}

	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i := range buf {
			buf[i] = idAlphabet[int(buf[i])%len(idAlphabet)]
		}
		id := prefix + "-" + string(buf)
		if !used[id] {
			return id, nil
		}
	}
}
