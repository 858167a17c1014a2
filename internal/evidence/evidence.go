// Package evidence implements the Evidence DB: an immutable,
// lookup-only per-predicate truth-value store over {True, False,
// Unknown}, with optional probabilities.
package evidence

import (
	"fmt"
	"math"

	"mlnground/internal/predspace"
	"mlnground/internal/schema"
)

// State is an atom's truth value under the evidence.
type State int

const (
	StateUnknown State = iota
	StateTrue
	StateFalse
)

func (s State) String() string {
	switch s {
	case StateTrue:
		return "True"
	case StateFalse:
		return "False"
	default:
		return "Unknown"
	}
}

// PredicateEvidence is the per-signature specialization contract shared
// by all six variants in this package.
type PredicateEvidence interface {
	State(atomID int) State
	Probability(atomID int) float64 // NaN if none recorded
	IsTriState() bool
	IsProbabilistic() bool

	// Counts reports, without scanning the predicate's full atomID
	// range, how many of its `length` ground atoms are True and False;
	// the grounder's literal-ordering heuristic needs these aggregate
	// counts, not a per-atom lookup.
	Counts(length int) (numTrue, numFalse int)
}

// --- closed-world variants: absence means False ---

// ClosedWorldPositives holds only a positives set; every other atom in
// the predicate's range is False. Never Unknown.
type ClosedWorldPositives struct{ Positives map[int]bool }

func (e *ClosedWorldPositives) State(id int) State {
	if e.Positives[id] {
		return StateTrue
	}
	return StateFalse
}
func (e *ClosedWorldPositives) Probability(int) float64 { return math.NaN() }
func (e *ClosedWorldPositives) IsTriState() bool        { return false }
func (e *ClosedWorldPositives) IsProbabilistic() bool   { return false }
func (e *ClosedWorldPositives) Counts(length int) (int, int) {
	t := len(e.Positives)
	return t, length - t
}

// ClosedWorldPositivesUnknowns adds an explicit unknowns set on top of
// closed-world semantics: atoms neither positive nor unknown are False.
type ClosedWorldPositivesUnknowns struct {
	Positives map[int]bool
	Unknowns  map[int]bool
}

func (e *ClosedWorldPositivesUnknowns) State(id int) State {
	if e.Positives[id] {
		return StateTrue
	}
	if e.Unknowns[id] {
		return StateUnknown
	}
	return StateFalse
}
func (e *ClosedWorldPositivesUnknowns) Probability(int) float64 { return math.NaN() }
func (e *ClosedWorldPositivesUnknowns) IsTriState() bool        { return len(e.Unknowns) > 0 }
func (e *ClosedWorldPositivesUnknowns) IsProbabilistic() bool   { return false }
func (e *ClosedWorldPositivesUnknowns) Counts(length int) (int, int) {
	t := len(e.Positives)
	u := len(e.Unknowns)
	return t, length - t - u
}

// ClosedWorldProbabilistic is closed-world with per-positive
// probabilities; absence is False with no probability recorded.
type ClosedWorldProbabilistic struct {
	Positives     map[int]bool
	Probabilities map[int]float64
}

func (e *ClosedWorldProbabilistic) State(id int) State {
	if e.Positives[id] {
		return StateTrue
	}
	return StateFalse
}
func (e *ClosedWorldProbabilistic) Probability(id int) float64 {
	if p, ok := e.Probabilities[id]; ok {
		return p
	}
	return math.NaN()
}
func (e *ClosedWorldProbabilistic) IsTriState() bool      { return false }
func (e *ClosedWorldProbabilistic) IsProbabilistic() bool { return true }
func (e *ClosedWorldProbabilistic) Counts(length int) (int, int) {
	t := len(e.Positives)
	return t, length - t
}

// --- open-world variants: absence means Unknown ---

// OpenWorldPosNeg records positives and negatives explicitly; anything
// else is Unknown.
type OpenWorldPosNeg struct {
	Positives map[int]bool
	Negatives map[int]bool
}

func (e *OpenWorldPosNeg) State(id int) State {
	if e.Positives[id] {
		return StateTrue
	}
	if e.Negatives[id] {
		return StateFalse
	}
	return StateUnknown
}
func (e *OpenWorldPosNeg) Probability(int) float64 { return math.NaN() }
func (e *OpenWorldPosNeg) IsTriState() bool        { return true }
func (e *OpenWorldPosNeg) IsProbabilistic() bool   { return false }
func (e *OpenWorldPosNeg) Counts(int) (int, int)   { return len(e.Positives), len(e.Negatives) }

// OpenWorldPosNegProbabilistic adds probabilities on top of
// OpenWorldPosNeg.
type OpenWorldPosNegProbabilistic struct {
	Positives     map[int]bool
	Negatives     map[int]bool
	Probabilities map[int]float64
}

func (e *OpenWorldPosNegProbabilistic) State(id int) State {
	if e.Positives[id] {
		return StateTrue
	}
	if e.Negatives[id] {
		return StateFalse
	}
	return StateUnknown
}
func (e *OpenWorldPosNegProbabilistic) Probability(id int) float64 {
	if p, ok := e.Probabilities[id]; ok {
		return p
	}
	return math.NaN()
}
func (e *OpenWorldPosNegProbabilistic) IsTriState() bool      { return true }
func (e *OpenWorldPosNegProbabilistic) IsProbabilistic() bool { return true }
func (e *OpenWorldPosNegProbabilistic) Counts(int) (int, int) {
	return len(e.Positives), len(e.Negatives)
}

// UniformDummy is a uniform-state specialization for predicates with no
// recorded evidence at all: every atom reports the same fixed state.
type UniformDummy struct{ Fixed State }

func (e *UniformDummy) State(int) State         { return e.Fixed }
func (e *UniformDummy) Probability(int) float64 { return math.NaN() }
func (e *UniformDummy) IsTriState() bool        { return e.Fixed == StateUnknown }
func (e *UniformDummy) IsProbabilistic() bool   { return false }
func (e *UniformDummy) Counts(length int) (int, int) {
	switch e.Fixed {
	case StateTrue:
		return length, 0
	case StateFalse:
		return 0, length
	default:
		return 0, 0
	}
}

// DB is the top-level, immutable Evidence DB spanning every predicate in
// a PredicateSpace.
type DB struct {
	space  *predspace.Space
	byPred map[schema.Signature]PredicateEvidence
}

// State looks up atomID's truth value, bounds-checking it against the
// owning predicate's identity range via the PredicateSpace.
func (db *DB) State(atomID int) (State, error) {
	sig, err := db.space.SignatureOf(atomID)
	if err != nil {
		return StateUnknown, fmt.Errorf("evidence: %w", err)
	}
	pe, ok := db.byPred[sig]
	if !ok {
		return StateUnknown, nil
	}
	return pe.State(atomID), nil
}

// Probability is as State but returns a probability (NaN if none).
func (db *DB) Probability(atomID int) (float64, error) {
	sig, err := db.space.SignatureOf(atomID)
	if err != nil {
		return math.NaN(), fmt.Errorf("evidence: %w", err)
	}
	pe, ok := db.byPred[sig]
	if !ok {
		return math.NaN(), nil
	}
	return pe.Probability(atomID), nil
}

// CountsFor reports sig's aggregate True/False counts over its full
// identity range of the given length. A predicate absent from the DB
// reports (0, 0); a UniformDummy reports according to its fixed state.
func (db *DB) CountsFor(sig schema.Signature, length int) (numTrue, numFalse int) {
	pe, ok := db.byPred[sig]
	if !ok {
		return 0, 0
	}
	return pe.Counts(length)
}

// ForSignature returns the per-predicate specialization for sig, or nil.
func (db *DB) ForSignature(sig schema.Signature) PredicateEvidence {
	return db.byPred[sig]
}

// IsTriState reports whether sig's evidence has any Unknown groundings.
func (db *DB) IsTriState(sig schema.Signature) bool {
	if pe, ok := db.byPred[sig]; ok {
		return pe.IsTriState()
	}
	return false
}

// IsProbabilistic reports whether sig's evidence carries probabilities.
func (db *DB) IsProbabilistic(sig schema.Signature) bool {
	if pe, ok := db.byPred[sig]; ok {
		return pe.IsProbabilistic()
	}
	return false
}
