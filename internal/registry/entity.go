package registry

import (
	"sort"
	"strings"
	"time"
)

// Type classifies the real-world identity behind an entity.
type Type string

const (
	TypePerson       Type = "person"
	TypeOrganization Type = "organization"
	TypeLocation     Type = "location"
	TypeOther        Type = "other"
)

// ParseType maps a string to a known entity type, defaulting to TypeOther.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypePerson:
		return TypePerson
	case TypeOrganization:
		return TypeOrganization
	case TypeLocation:
		return TypeLocation
	default:
		return TypeOther
	}
}

// Entity is a single identity tracked by the registry. Original and every
// variation refer to the same identity; Alias is the one substitute issued
// for all of them in consistent mode.
type Entity struct {
	Original      string
	Alias         string
	Type          Type
	Variations    []string
	Notes         string
	CaseSensitive bool
	Added         time.Time
}

// Key returns the normalized identity key for the entity.
func (e *Entity) Key() string {
	return normalize(e.Original)
}

// Literals returns the original plus all variations, deduplicated.
func (e *Entity) Literals() []string {
	literals := make([]string, 0, len(e.Variations)+1)
	seen := map[string]bool{normalize(e.Original): true}
	literals = append(literals, e.Original)
	for _, v := range e.Variations {
		key := normalize(v)
		if !seen[key] {
			seen[key] = true
			literals = append(literals, v)
		}
	}
	return literals
}

// clone returns a deep copy of the entity.
func (e *Entity) clone() Entity {
	c := *e
	c.Variations = append([]string(nil), e.Variations...)
	return c
}

// equivalent reports whether two entities carry the same mapping, ignoring
// notes and timestamps. Used for idempotent re-adds.
func (e *Entity) equivalent(other *Entity) bool {
	if normalize(e.Original) != normalize(other.Original) ||
		normalize(e.Alias) != normalize(other.Alias) ||
		e.Type != other.Type ||
		e.CaseSensitive != other.CaseSensitive {
		return false
	}
	return normalizedSet(e.Variations) == normalizedSet(other.Variations)
}

// Record is the serialization-neutral form of an entity, used by the store
// and the HTTP API.
type Record struct {
	Original      string    `json:"original"`
	Alias         string    `json:"alias"`
	Type          string    `json:"type"`
	Variations    []string  `json:"variations"`
	Notes         string    `json:"notes,omitempty"`
	CaseSensitive bool      `json:"case_sensitive,omitempty"`
	Added         time.Time `json:"added,omitempty"`
}

// entityFromRecord builds an Entity from its serialized form.
func entityFromRecord(rec Record) Entity {
	return Entity{
		Original:      strings.TrimSpace(rec.Original),
		Alias:         strings.TrimSpace(rec.Alias),
		Type:          ParseType(rec.Type),
		Variations:    trimAll(rec.Variations),
		Notes:         rec.Notes,
		CaseSensitive: rec.CaseSensitive,
		Added:         rec.Added,
	}
}

// recordFromEntity is the inverse of entityFromRecord.
func recordFromEntity(e *Entity) Record {
	return Record{
		Original:      e.Original,
		Alias:         e.Alias,
		Type:          string(e.Type),
		Variations:    append([]string(nil), e.Variations...),
		Notes:         e.Notes,
		CaseSensitive: e.CaseSensitive,
		Added:         e.Added,
	}
}

// normalize lowercases a literal for index and uniqueness comparisons.
// Uniqueness is always case-insensitive; the per-entity CaseSensitive flag
// only affects matching, never registry invariants.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizedSet(values []string) string {
	keys := make([]string, 0, len(values))
	for _, v := range values {
		keys = append(keys, normalize(v))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x00")
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
