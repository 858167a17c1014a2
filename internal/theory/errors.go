package theory

import (
	"errors"
	"strconv"
)

// Sentinel errors for the fatal and diagnostic error kinds a build can
// raise.
var (
	// ErrInvalidWeight: a clause weight is not a number. Fatal for the
	// whole build; must be detected before any substitution work.
	ErrInvalidWeight = errors.New("theory: clause weight is NaN")

	// ErrUnsupportedDynamic: a dynamic literal was encountered but
	// dynamics are disabled for this build. Fatal.
	ErrUnsupportedDynamic = errors.New("theory: dynamic predicate encountered but dynamics are disabled")

	// ErrContradictoryHardConstraints: merging +Inf with -Inf for
	// identical ground literals. Fatal.
	ErrContradictoryHardConstraints = errors.New("theory: contradictory hard constraints (+Inf merged with -Inf)")

	// ErrEmptyMRF: zero atoms remain after the reachability closure.
	// Fatal: the caller's theory is vacuous.
	ErrEmptyMRF = errors.New("theory: reachability closure produced zero ground atoms")
)

// OutOfRangeError and ConflictingEvidence are defined in their owning
// packages (identity, evidence) since they carry package-specific
// context; theory only owns the kinds that are intrinsic to clause
// construction and MRF assembly.

// UnreachableClause is a non-fatal diagnostic: a clause left in the
// coordinator's "remaining" set at completion, because none of its
// literals ever became reachable from the query predicates.
type UnreachableClause struct {
	ClauseIndex int
}

func (d UnreachableClause) String() string {
	return "clause " + strconv.Itoa(d.ClauseIndex) + " is unreachable from any query predicate"
}
