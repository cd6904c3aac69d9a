package registry

import (
	"fmt"

	"go.uber.org/zap"
)

// MergeStrategy selects how an original-name collision is resolved during
// merge.
type MergeStrategy string

const (
	// MergeSkip keeps the existing entity and drops the incoming one,
	// recording a conflict.
	MergeSkip MergeStrategy = "skip"
	// MergeOverwrite replaces the existing entity's alias and variations
	// with the incoming ones.
	MergeOverwrite MergeStrategy = "overwrite"
	// MergeKeepBoth keeps the existing entity and re-adds the incoming one
	// under a disambiguated alias. The existing entity continues to own the
	// shared literal for matching.
	MergeKeepBoth MergeStrategy = "keep-both"
)

// ParseMergeStrategy validates a strategy string.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeSkip, MergeOverwrite, MergeKeepBoth:
		return MergeStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown merge strategy: %s (must be skip, overwrite, or keep-both)", s)
	}
}

// MergeResult reports what a merge did.
type MergeResult struct {
	Added       int      `json:"added"`
	Skipped     int      `json:"skipped"`
	Overwritten int      `json:"overwritten"`
	Renamed     int      `json:"renamed"`
	Conflicts   []string `json:"conflicts,omitempty"`
}

// Merge imports every entity from other into r. Original-name collisions are
// resolved per the strategy; any invariant violation the strategy cannot
// cover (an alias collision between two different originals, an ambiguous
// variation) rejects the entire merge and leaves r unchanged.
func (r *Registry) Merge(other *Registry, strategy MergeStrategy) (*MergeResult, error) {
	if _, err := ParseMergeStrategy(string(strategy)); err != nil {
		return nil, err
	}

	incoming := other.Export()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Apply everything to a scratch copy; commit only on full success.
	work := New(zap.NewNop())
	for _, e := range r.entities {
		clone := e.clone()
		work.entities = append(work.entities, &clone)
	}
	work.rebuildIndexLocked()

	result := &MergeResult{}

	for _, rec := range incoming {
		in := entityFromRecord(rec)
		key := in.Key()

		if idx, ok := work.byLiteral[key]; ok {
			owner := work.entities[idx]

			// Identical mapping re-imported: nothing to resolve.
			if owner.Key() == key && owner.equivalent(&in) {
				result.Skipped++
				continue
			}

			switch strategy {
			case MergeSkip:
				result.Skipped++
				result.Conflicts = append(result.Conflicts,
					fmt.Sprintf("%s: kept existing alias %q, dropped incoming %q", owner.Original, owner.Alias, in.Alias))

			case MergeOverwrite:
				if owner.Key() != key {
					// Incoming original collides with another entity's
					// variation; overwriting would leave two claimants.
					return nil, &AmbiguousVariationError{Literal: in.Original, EntityA: owner.Original, EntityB: in.Original}
				}
				work.removeAtLocked(idx)
				if _, err := work.addLocked(in); err != nil {
					return nil, err
				}
				result.Overwritten++

			case MergeKeepBoth:
				renamed, note := work.disambiguateLocked(in)
				if _, err := work.addLocked(renamed); err != nil {
					return nil, err
				}
				result.Renamed++
				result.Conflicts = append(result.Conflicts, note)
			}
			continue
		}

		added, err := work.addLocked(in)
		if err != nil {
			return nil, err
		}
		if added {
			result.Added++
		} else {
			result.Skipped++
		}
	}

	r.entities = work.entities
	r.byLiteral = work.byLiteral
	r.byAlias = work.byAlias
	r.touchLocked()

	r.logger.Info("Registry merge completed",
		zap.String("strategy", string(strategy)),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("overwritten", result.Overwritten),
		zap.Int("renamed", result.Renamed),
		zap.Int("conflicts", len(result.Conflicts)),
	)

	return result, nil
}

// removeAtLocked splices out the entity at idx and rebuilds the indexes.
func (r *Registry) removeAtLocked(idx int) {
	r.entities = append(r.entities[:idx], r.entities[idx+1:]...)
	r.rebuildIndexLocked()
}

// disambiguateLocked rewrites an incoming entity so it can coexist with the
// entity already holding its original: the alias gets a numeric suffix if
// taken, the original is suffixed to preserve uniqueness, and variations
// already claimed elsewhere are dropped.
func (r *Registry) disambiguateLocked(in Entity) (Entity, string) {
	out := in.clone()

	alias := in.Alias
	for n := 2; r.literalTakenLocked(alias); n++ {
		alias = fmt.Sprintf("%s-%d", in.Alias, n)
	}
	out.Alias = alias

	original := in.Original
	for n := 2; r.literalTakenLocked(original); n++ {
		original = fmt.Sprintf("%s#%d", in.Original, n)
	}
	out.Original = original

	kept := out.Variations[:0]
	for _, v := range out.Variations {
		if !r.literalTakenLocked(v) {
			kept = append(kept, v)
		}
	}
	out.Variations = kept

	note := fmt.Sprintf("%s: kept both, incoming stored as %q -> %q", in.Original, out.Original, out.Alias)
	return out, note
}

// literalTakenLocked reports whether the literal is already an original,
// variation, or alias in the registry.
func (r *Registry) literalTakenLocked(literal string) bool {
	key := normalize(literal)
	if _, ok := r.byLiteral[key]; ok {
		return true
	}
	_, ok := r.byAlias[key]
	return ok
}
