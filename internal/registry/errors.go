package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an operation addressed to an original the registry
// does not hold.
var ErrNotFound = errors.New("entity not found")

// ConflictError reports a registry invariant violation on add or merge:
// an alias already issued to a different original, or an original already
// mapped to a different alias. Recoverable; the caller can rename or pick
// a merge strategy.
type ConflictError struct {
	Literal  string // the literal that collided
	Existing string // original of the entity that already owns it
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry conflict on %q: %s (held by %q)", e.Literal, e.Reason, e.Existing)
}

// AmbiguousVariationError reports that two different entities would claim
// the same literal, which would make substitution ambiguous. Rejected at
// add/merge time so the matcher never needs to resolve it.
type AmbiguousVariationError struct {
	Literal string
	EntityA string
	EntityB string
}

func (e *AmbiguousVariationError) Error() string {
	return fmt.Sprintf("ambiguous variation %q: claimed by both %q and %q", e.Literal, e.EntityA, e.EntityB)
}
