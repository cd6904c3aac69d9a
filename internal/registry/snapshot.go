package registry

import "fmt"

// Snapshot is an immutable copy of the registry taken at a point in time.
// Matchers and verifiers are built against a snapshot, so concurrent batch
// runs can use distinct registry revisions safely while mutations continue
// on the live registry.
type Snapshot struct {
	revision  string
	entities  []Entity
	byLiteral map[string]int
}

// Snapshot captures the current registry state.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &Snapshot{
		revision:  fmt.Sprintf("r%d", r.revision),
		entities:  make([]Entity, 0, len(r.entities)),
		byLiteral: make(map[string]int, len(r.byLiteral)),
	}
	for _, e := range r.entities {
		s.entities = append(s.entities, e.clone())
	}
	for k, v := range r.byLiteral {
		s.byLiteral[k] = v
	}
	return s
}

// Lookup returns the entity owning the literal, or nil.
func (s *Snapshot) Lookup(literal string) *Entity {
	idx, ok := s.byLiteral[normalize(literal)]
	if !ok {
		return nil
	}
	return &s.entities[idx]
}

// Entities returns the snapshot's entities in registry order. Callers must
// not mutate the returned slice.
func (s *Snapshot) Entities() []Entity {
	return s.entities
}

// Revision returns the revision tag the snapshot was taken at.
func (s *Snapshot) Revision() string {
	return s.revision
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.entities)
}
