package evidence

import (
	"errors"
	"fmt"
	"math"

	"mlnground/internal/predspace"
	"mlnground/internal/schema"
)

// ErrConflictingEvidence is the sentinel for a contradictory fact set
// (same atom asserted both true and false, a reassigned probability, or
// a probability of exactly 1.0/0.0 mixed with an explicit Unknown for
// the same atom).
var ErrConflictingEvidence = errors.New("evidence: conflicting facts")

// Fact is one raw assertion about a ground atom, as supplied by the
// (out-of-scope) collaborator that parses textual evidence.
type Fact struct {
	AtomID      int
	Positive    bool
	Unknown     bool
	Probability float64 // NaN if not asserted
}

// Builder accumulates facts per predicate and produces an immutable DB.
// Facts for a predicate not explicitly added default to UniformDummy on
// Build: all-Unknown for open-world (query/hidden) predicates, all-False
// for closed-world evidence predicates.
type Builder struct {
	space *predspace.Space
	facts map[schema.Signature][]Fact
}

// NewBuilder creates a Builder bound to space; every fact added must
// belong to a predicate declared in space.
func NewBuilder(space *predspace.Space) *Builder {
	return &Builder{space: space, facts: make(map[schema.Signature][]Fact)}
}

// Add records one fact for sig. Build validates consistency across all
// facts added for sig.
func (b *Builder) Add(sig schema.Signature, f Fact) {
	b.facts[sig] = append(b.facts[sig], f)
}

// Build validates every predicate's accumulated facts and assembles the
// immutable DB. A predicate is classified into one of the six
// specializations based on which kinds of facts it received:
//   - only positives                         -> ClosedWorldPositives
//   - positives + unknowns, no probabilities -> ClosedWorldPositivesUnknowns
//   - positives + probabilities, no unknowns -> ClosedWorldProbabilistic
//   - evidence declared open-world: positives + negatives, no probs -> OpenWorldPosNeg
//   - open-world + probabilities             -> OpenWorldPosNegProbabilistic
//   - no facts at all                        -> UniformDummy{Unknown} for
//     open-world predicates, UniformDummy{False} for evidence predicates
func (b *Builder) Build() (*DB, error) {
	db := &DB{space: b.space, byPred: make(map[schema.Signature]PredicateEvidence)}

	// Classify every declared predicate, not just those touched by Add:
	// a closed-world predicate with zero facts must still default to
	// all-False, and an open-world one to all-Unknown, which requires a
	// byPred entry to exist at all.
	for _, sig := range b.space.Signatures() {
		pe, err := classify(sig, b.facts[sig], b.space.IsOpenWorld(sig))
		if err != nil {
			return nil, err
		}
		db.byPred[sig] = pe
	}

	return db, nil
}

func classify(sig schema.Signature, facts []Fact, openWorld bool) (PredicateEvidence, error) {
	positives := make(map[int]bool)
	negatives := make(map[int]bool)
	unknowns := make(map[int]bool)
	probs := make(map[int]float64)
	haveProbs := false

	for _, f := range facts {
		if f.Unknown {
			if positives[f.AtomID] || negatives[f.AtomID] {
				return nil, fmt.Errorf("%w: atom %d asserted both a truth value and Unknown for %s", ErrConflictingEvidence, f.AtomID, sig)
			}
			if p, ok := probs[f.AtomID]; ok && (p == 1.0 || p == 0.0) {
				return nil, fmt.Errorf("%w: atom %d mixes a definite probability with Unknown for %s", ErrConflictingEvidence, f.AtomID, sig)
			}
			unknowns[f.AtomID] = true
			continue
		}

		if unknowns[f.AtomID] {
			return nil, fmt.Errorf("%w: atom %d asserted both a truth value and Unknown for %s", ErrConflictingEvidence, f.AtomID, sig)
		}
		if f.Positive {
			if negatives[f.AtomID] {
				return nil, fmt.Errorf("%w: atom %d asserted both true and false for %s", ErrConflictingEvidence, f.AtomID, sig)
			}
			positives[f.AtomID] = true
		} else {
			if positives[f.AtomID] {
				return nil, fmt.Errorf("%w: atom %d asserted both true and false for %s", ErrConflictingEvidence, f.AtomID, sig)
			}
			negatives[f.AtomID] = true
		}

		if !math.IsNaN(f.Probability) {
			if existing, ok := probs[f.AtomID]; ok && existing != f.Probability {
				return nil, fmt.Errorf("%w: atom %d reassigned a different probability for %s", ErrConflictingEvidence, f.AtomID, sig)
			}
			if unknowns[f.AtomID] && (f.Probability == 1.0 || f.Probability == 0.0) {
				return nil, fmt.Errorf("%w: atom %d mixes a definite probability with Unknown for %s", ErrConflictingEvidence, f.AtomID, sig)
			}
			probs[f.AtomID] = f.Probability
			haveProbs = true
		}
	}

	switch {
	case len(facts) == 0:
		if openWorld {
			return &UniformDummy{Fixed: StateUnknown}, nil
		}
		return &UniformDummy{Fixed: StateFalse}, nil

	case openWorld && haveProbs:
		return &OpenWorldPosNegProbabilistic{Positives: positives, Negatives: negatives, Probabilities: probs}, nil

	case openWorld:
		return &OpenWorldPosNeg{Positives: positives, Negatives: negatives}, nil

	case haveProbs:
		return &ClosedWorldProbabilistic{Positives: positives, Probabilities: probs}, nil

	case len(unknowns) > 0:
		return &ClosedWorldPositivesUnknowns{Positives: positives, Unknowns: unknowns}, nil

	default:
		return &ClosedWorldPositives{Positives: positives}, nil
	}
}
