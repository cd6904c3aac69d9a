package registry

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry owns the canonical entity-to-alias mapping. All mutation goes
// through Add/Remove/AddVariation/Merge under an exclusive lock; redaction
// runs read from an immutable Snapshot so a batch never observes a partial
// mutation.
type Registry struct {
	mu        sync.RWMutex
	entities  []*Entity
	byLiteral map[string]int // normalized original/variation -> entity index
	byAlias   map[string]int // normalized alias -> entity index
	created   time.Time
	updated   time.Time
	revision  uint64
	logger    *zap.Logger
}

// Stats summarizes registry contents.
type Stats struct {
	Total   int          `json:"total"`
	ByType  map[Type]int `json:"by_type"`
	Created time.Time    `json:"created"`
	Updated time.Time    `json:"updated"`
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	return &Registry{
		byLiteral: make(map[string]int),
		byAlias:   make(map[string]int),
		created:   now,
		updated:   now,
		logger:    logger,
	}
}

// NewFromRecords builds a registry from imported records, validating every
// invariant. Any violation rejects the whole import.
func NewFromRecords(records []Record, logger *zap.Logger) (*Registry, error) {
	r := New(logger)
	for _, rec := range records {
		if err := r.Add(entityFromRecord(rec)); err != nil {
			return nil, fmt.Errorf("invalid registry record %q: %w", rec.Original, err)
		}
	}
	return r, nil
}

// Add registers a new entity. Adding an identical entity again is a no-op;
// any collision with an existing original, alias, or variation fails with
// ConflictError or AmbiguousVariationError and leaves the registry unchanged.
func (r *Registry) Add(e Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	added, err := r.addLocked(e)
	if err != nil {
		return err
	}
	if added {
		r.touchLocked()
		r.logger.Debug("Entity added",
			zap.String("original", e.Original),
			zap.String("alias", e.Alias),
			zap.String("type", string(e.Type)),
			zap.Int("variations", len(e.Variations)),
		)
	}
	return nil
}

// addLocked validates and appends an entity. Returns false when the identical
// entity already exists (idempotent re-add). Callers hold the write lock.
func (r *Registry) addLocked(e Entity) (bool, error) {
	if e.Original == "" {
		return false, fmt.Errorf("entity original must not be empty")
	}
	if e.Alias == "" {
		return false, fmt.Errorf("entity alias must not be empty (original %q)", e.Original)
	}

	key := e.Key()
	aliasKey := normalize(e.Alias)

	if aliasKey == key {
		return false, &ConflictError{Literal: e.Alias, Existing: e.Original, Reason: "alias equals its own original"}
	}

	if idx, ok := r.byLiteral[key]; ok {
		owner := r.entities[idx]
		if owner.Key() == key {
			if owner.equivalent(&e) {
				return false, nil
			}
			return false, &ConflictError{Literal: e.Original, Existing: owner.Original, Reason: "original already mapped to a different alias"}
		}
		return false, &AmbiguousVariationError{Literal: e.Original, EntityA: owner.Original, EntityB: e.Original}
	}
	if idx, ok := r.byAlias[key]; ok {
		return false, &ConflictError{Literal: e.Original, Existing: r.entities[idx].Original, Reason: "original equals an alias already in use"}
	}

	if idx, ok := r.byAlias[aliasKey]; ok {
		return false, &ConflictError{Literal: e.Alias, Existing: r.entities[idx].Original, Reason: "alias already in use by a different original"}
	}
	if idx, ok := r.byLiteral[aliasKey]; ok {
		return false, &ConflictError{Literal: e.Alias, Existing: r.entities[idx].Original, Reason: "alias equals a literal owned by another entity"}
	}

	// Validate and dedupe variations before touching any state.
	variations := make([]string, 0, len(e.Variations))
	seen := map[string]bool{key: true}
	for _, v := range e.Variations {
		if v == "" {
			return false, fmt.Errorf("empty variation for entity %q", e.Original)
		}
		vkey := normalize(v)
		if seen[vkey] {
			continue
		}
		if vkey == aliasKey {
			return false, &ConflictError{Literal: v, Existing: e.Original, Reason: "variation equals the entity's own alias"}
		}
		if idx, ok := r.byLiteral[vkey]; ok {
			return false, &AmbiguousVariationError{Literal: v, EntityA: r.entities[idx].Original, EntityB: e.Original}
		}
		if idx, ok := r.byAlias[vkey]; ok {
			return false, &ConflictError{Literal: v, Existing: r.entities[idx].Original, Reason: "variation equals an alias already in use"}
		}
		seen[vkey] = true
		variations = append(variations, v)
	}

	stored := e.clone()
	stored.Variations = variations
	if stored.Added.IsZero() {
		stored.Added = time.Now()
	}

	idx := len(r.entities)
	r.entities = append(r.entities, &stored)
	r.byLiteral[key] = idx
	for _, v := range variations {
		r.byLiteral[normalize(v)] = idx
	}
	r.byAlias[aliasKey] = idx
	return true, nil
}

// Lookup returns the entity owning the literal (its original or any
// variation). Comparison is case-insensitive exact-token.
func (r *Registry) Lookup(literal string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byLiteral[normalize(literal)]
	if !ok {
		return Entity{}, false
	}
	return r.entities[idx].clone(), true
}

// Remove deletes the entity owning the given original. Returns false when no
// such entity exists.
func (r *Registry) Remove(original string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(original)
	idx, ok := r.byLiteral[key]
	if !ok || r.entities[idx].Key() != key {
		return false
	}

	r.entities = append(r.entities[:idx], r.entities[idx+1:]...)
	r.rebuildIndexLocked()
	r.touchLocked()
	r.logger.Debug("Entity removed", zap.String("original", original))
	return true
}

// AddVariation attaches another literal form to an existing entity.
func (r *Registry) AddVariation(original, variation string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if variation == "" {
		return fmt.Errorf("empty variation for entity %q", original)
	}

	key := normalize(original)
	idx, ok := r.byLiteral[key]
	if !ok {
		return fmt.Errorf("unknown entity %q: %w", original, ErrNotFound)
	}
	owner := r.entities[idx]

	vkey := normalize(variation)
	if existing, ok := r.byLiteral[vkey]; ok {
		if existing == idx {
			return nil // already a literal of this entity
		}
		return &AmbiguousVariationError{Literal: variation, EntityA: r.entities[existing].Original, EntityB: owner.Original}
	}
	if aliasIdx, ok := r.byAlias[vkey]; ok {
		return &ConflictError{Literal: variation, Existing: r.entities[aliasIdx].Original, Reason: "variation equals an alias already in use"}
	}

	owner.Variations = append(owner.Variations, variation)
	r.byLiteral[vkey] = idx
	r.touchLocked()
	return nil
}

// EntityUpdate carries the mutable fields of an entity. Nil fields are left
// unchanged; the original itself is immutable (remove and re-add to rename).
type EntityUpdate struct {
	Alias         *string
	Type          *Type
	Variations    *[]string
	Notes         *string
	CaseSensitive *bool
}

// Update mutates the entity owning the given original. Every uniqueness
// invariant is revalidated against the rest of the registry before anything
// is applied, so a conflicting update leaves the registry unchanged. An
// update that changes nothing is a no-op and does not bump the revision.
func (r *Registry) Update(original string, upd EntityUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(original)
	idx, ok := r.byLiteral[key]
	if !ok || r.entities[idx].Key() != key {
		return fmt.Errorf("unknown entity %q: %w", original, ErrNotFound)
	}
	owner := r.entities[idx]

	next := owner.clone()
	if upd.Alias != nil {
		next.Alias = *upd.Alias
	}
	if upd.Type != nil {
		next.Type = *upd.Type
	}
	if upd.Variations != nil {
		next.Variations = append([]string(nil), (*upd.Variations)...)
	}
	if upd.Notes != nil {
		next.Notes = *upd.Notes
	}
	if upd.CaseSensitive != nil {
		next.CaseSensitive = *upd.CaseSensitive
	}

	if next.Alias == "" {
		return fmt.Errorf("entity alias must not be empty (original %q)", owner.Original)
	}
	aliasKey := normalize(next.Alias)
	if aliasKey == key {
		return &ConflictError{Literal: next.Alias, Existing: owner.Original, Reason: "alias equals its own original"}
	}
	if i, ok := r.byAlias[aliasKey]; ok && i != idx {
		return &ConflictError{Literal: next.Alias, Existing: r.entities[i].Original, Reason: "alias already in use by a different original"}
	}
	if i, ok := r.byLiteral[aliasKey]; ok && i != idx {
		return &ConflictError{Literal: next.Alias, Existing: r.entities[i].Original, Reason: "alias equals a literal owned by another entity"}
	}

	variations := make([]string, 0, len(next.Variations))
	seen := map[string]bool{key: true}
	for _, v := range next.Variations {
		if v == "" {
			return fmt.Errorf("empty variation for entity %q", owner.Original)
		}
		vkey := normalize(v)
		if seen[vkey] {
			continue
		}
		if vkey == aliasKey {
			return &ConflictError{Literal: v, Existing: owner.Original, Reason: "variation equals the entity's own alias"}
		}
		if i, ok := r.byLiteral[vkey]; ok && i != idx {
			return &AmbiguousVariationError{Literal: v, EntityA: r.entities[i].Original, EntityB: owner.Original}
		}
		if i, ok := r.byAlias[vkey]; ok && i != idx {
			return &ConflictError{Literal: v, Existing: r.entities[i].Original, Reason: "variation equals an alias already in use"}
		}
		seen[vkey] = true
		variations = append(variations, v)
	}
	next.Variations = variations

	if owner.equivalent(&next) && owner.Notes == next.Notes {
		return nil
	}

	*owner = next
	r.rebuildIndexLocked()
	r.touchLocked()
	r.logger.Debug("Entity updated",
		zap.String("original", owner.Original),
		zap.String("alias", owner.Alias),
		zap.String("type", string(owner.Type)),
		zap.Int("variations", len(owner.Variations)),
	)
	return nil
}

// Export returns all entities as serialization-neutral records, in
// registry order.
func (r *Registry) Export() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]Record, 0, len(r.entities))
	for _, e := range r.entities {
		records = append(records, recordFromEntity(e))
	}
	return records
}

// Stats returns entity counts by type plus registry timestamps.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:   len(r.entities),
		ByType:  make(map[Type]int),
		Created: r.created,
		Updated: r.updated,
	}
	for _, e := range r.entities {
		stats.ByType[e.Type]++
	}
	return stats
}

// Len returns the number of entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Revision returns the current revision tag, bumped on every successful
// mutation.
func (r *Registry) Revision() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("r%d", r.revision)
}

// rebuildIndexLocked recomputes both lookup indexes from the entity list.
func (r *Registry) rebuildIndexLocked() {
	r.byLiteral = make(map[string]int, len(r.entities)*2)
	r.byAlias = make(map[string]int, len(r.entities))
	for idx, e := range r.entities {
		r.byLiteral[e.Key()] = idx
		for _, v := range e.Variations {
			r.byLiteral[normalize(v)] = idx
		}
		r.byAlias[normalize(e.Alias)] = idx
	}
}

func (r *Registry) touchLocked() {
	r.updated = time.Now()
	r.revision++
}
