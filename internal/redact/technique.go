package redact

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Technique selects how replacement literals are derived. Behavior differs
// only in that derivation, so techniques are a closed enum consumed by one
// engine entry point rather than separate implementations.
type Technique string

const (
	// TechniqueConsistent replaces entity matches with the registry alias:
	// identical entity in, identical alias out, across every document in
	// the run.
	TechniqueConsistent Technique = "consistent"
	// TechniqueRandom replaces entity matches with freshly generated
	// identifiers, consistent within one document but never shared across
	// documents or recorded in the registry.
	TechniqueRandom Technique = "random"
	// TechniquePatternOnly replaces only pattern-rule matches; entity
	// matches pass through. Used when no entity mapping is supplied.
	TechniquePatternOnly Technique = "pattern-only"
	// TechniqueHybrid replaces entities (consistent or random per the run
	// context) and patterns in one unified pass.
	TechniqueHybrid Technique = "hybrid"
)

// ParseTechnique validates a technique string.
func ParseTechnique(s string) (Technique, error) {
	switch Technique(s) {
	case TechniqueConsistent, TechniqueRandom, TechniquePatternOnly, TechniqueHybrid:
		return Technique(s), nil
	default:
		return "", fmt.Errorf("unknown redaction technique: %s (must be consistent, random, pattern-only, or hybrid)", s)
	}
}

// RunContext carries per-run state: the selected technique and the
// counters for pattern rules whose numbering scope spans the whole batch.
// It is shared across the documents of one run and safe for concurrent use.
type RunContext struct {
	RunID        string
	Technique    Technique
	HybridRandom bool // hybrid runs issue random ids instead of aliases

	mu         sync.Mutex
	globalSeen map[string]map[string]int // rule -> matched text -> number
	globalNext map[string]int
}

// NewRunContext creates a run context with a fresh run id.
func NewRunContext(technique Technique, hybridRandom bool) *RunContext {
	return &RunContext{
		RunID:        uuid.NewString(),
		Technique:    technique,
		HybridRandom: hybridRandom,
		globalSeen:   make(map[string]map[string]int),
		globalNext:   make(map[string]int),
	}
}

// globalNumber returns the placeholder number for a globally scoped rule
// match. Identical matched text keeps its number for the whole run.
func (rc *RunContext) globalNumber(rule, matched string) int {
	key := strings.ToLower(matched)

	rc.mu.Lock()
	defer rc.mu.Unlock()

	seen := rc.globalSeen[rule]
	if seen == nil {
		seen = make(map[string]int)
		rc.globalSeen[rule] = seen
	}
	if n, ok := seen[key]; ok {
		return n
	}
	rc.globalNext[rule]++
	seen[key] = rc.globalNext[rule]
	return seen[key]
}
