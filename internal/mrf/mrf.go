// Package mrf implements the final assembly stage that turns a finished
// coordinator.Result into a Markov Random Field: one Constraint per
// surviving clique, one GroundAtom per referenced atomID, and a
// rescaled DependencyMap, ready to hand to a weight learner or
// inference routine.
package mrf

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"mlnground/internal/coordinator"
	"mlnground/internal/logging"
	"mlnground/internal/schema"
	"mlnground/internal/theory"
)

// mcSatParam is the fixed rate constant in the soft-constraint
// unit-satisfaction formula 1 - e^(-|weight|*mcSatParam).
const mcSatParam = 1.0

// baseHardBound is the additive constant in the hard-weight bound, large
// enough that a single hard constraint always outweighs the sum of every
// soft constraint's maximum possible contribution.
const baseHardBound = 10.0

// Constraint is one ground clique's contribution to the field: the
// literals it covers (signed atomIDs, negative meaning negated), its
// weight (rewritten to H for a clique that merged to +Inf), and the
// probability that a single random-flip sample satisfies it.
type Constraint struct {
	ID          int
	Weight      float64
	Literals    []int
	Hard        bool
	UnitSatProb float64
	ClauseIndex int // stable only for single-clause cliques; diagnostic use
}

// GroundAtom is one atomID's record in the field: its clique incidence
// (possibly empty, for a bare query atom), whether it was asked for by
// the query signature set, and the hard-constraint cost budget H it
// carries into inference.
type GroundAtom struct {
	AtomID     int
	Cliques    []int
	IsQuery    bool
	HardBudget float64
}

// MRF is the finished field: every constraint keyed by its global
// cliqueID, every ground atom, the dependency map (clique -> clause ->
// signed frequency, rescaled), and the hard-weight bound used for every
// Hard constraint's Weight.
type MRF struct {
	BuildID     string
	HardBound   float64
	Constraints map[int]Constraint
	Atoms       map[int]GroundAtom
	DepMap      map[int]map[int]float64
}

// Build assembles an MRF from a finished coordinator run. mln supplies
// the clause set needed to compute the hard-weight bound H; result is
// the coordinator's output. Returns theory.ErrEmptyMRF if result carries
// zero atoms (Run already checks this, but Build is also reachable
// directly against a hand-built Result in tests).
func Build(mln *theory.MLN, result coordinator.Result) (*MRF, error) {
	log := logging.Get(logging.CategoryMRF)

	if result.QueryAtoms.GetCardinality() == 0 && len(result.AtomsToClqs) == 0 {
		return nil, theory.ErrEmptyMRF
	}

	h := hardBound(mln)
	log.Infow("hard weight bound computed", "H", h, "build_id", result.BuildID)

	constraints := make(map[int]Constraint, len(result.Cliques))
	for id, e := range result.Cliques {
		c := Constraint{ID: id, Literals: append([]int(nil), e.Variables...), ClauseIndex: e.ClauseIndex}
		if math.IsInf(e.Weight, 1) || math.IsInf(e.Weight, -1) {
			c.Hard = true
			c.Weight = h
			c.UnitSatProb = 1.0
		} else {
			c.Hard = false
			c.Weight = e.Weight
			c.UnitSatProb = 1 - math.Exp(-math.Abs(e.Weight)*mcSatParam)
		}
		constraints[id] = c
	}

	atoms := make(map[int]GroundAtom, len(result.AtomsToClqs))
	for atomID, cliqueIDs := range result.AtomsToClqs {
		atoms[atomID] = GroundAtom{AtomID: atomID, Cliques: dedupeInts(cliqueIDs), HardBudget: h}
	}
	addQueryAtoms(atoms, result.QueryAtoms, h)

	// The negative-frequency rescale only applies to the noNegWeights
	// split; rescaleDepMap checks each entry's origin clause so that
	// eliminateNegatedUnit-inverted frequencies pass through unscaled.
	depMap := result.DepMap
	if result.Flags.NoNegWeights {
		depMap = rescaleDepMap(result.DepMap, mln)
	}

	log.Infow("MRF assembled", "build_id", result.BuildID, "constraints", len(constraints), "atoms", len(atoms))
	return &MRF{
		BuildID:     result.BuildID.String(),
		HardBound:   h,
		Constraints: constraints,
		Atoms:       atoms,
		DepMap:      depMap,
	}, nil
}

func addQueryAtoms(atoms map[int]GroundAtom, queryAtoms *roaring.Bitmap, hardBudget float64) {
	it := queryAtoms.Iterator()
	for it.HasNext() {
		atomID := int(it.Next())
		a := atoms[atomID]
		a.AtomID = atomID
		a.IsQuery = true
		a.HardBudget = hardBudget
		atoms[atomID] = a
	}
}

func dedupeInts(vs []int) []int {
	if len(vs) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(vs))
	out := make([]int, 0, len(vs))
	for _, v := range vs {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// hardBound computes H = 10 + sum over every non-hard clause with at
// least one variable of |weight| times the product of each clause
// variable's domain size times the product of each distinct function
// term's own argument-domain sizes. The function-term factor is a
// deliberately conservative over-approximation: a function term
// contributes no new grounding combinatorics of its own (its value is
// determined by its argument variables, already counted), but treating
// it as if it did keeps H a safe upper bound without requiring the
// builder to reason about which variables a function term shares with
// the rest of the clause.
func hardBound(mln *theory.MLN) float64 {
	sum := 0.0
	for _, c := range mln.Clauses {
		if c.IsHard() || len(c.Variables()) == 0 {
			continue
		}
		product := 1.0
		for _, size := range variableDomainSizes(c, mln) {
			product *= float64(size)
		}
		for _, sig := range functionDomainSizes(c, mln) {
			product *= float64(sig)
		}
		sum += math.Abs(c.Weight) * product
	}
	return baseHardBound + sum
}

// variableDomainSizes resolves each of clause's distinct variables to
// the size of the constant domain it ranges over, taken from the first
// literal position in which the variable appears.
func variableDomainSizes(c *theory.Clause, mln *theory.MLN) []int {
	sizes := make(map[string]int)
	order := make([]string, 0, len(c.Variables()))
	for _, lit := range c.Literals {
		domains, ok := mln.DomainsFor(lit.Atom.Predicate)
		if !ok {
			continue
		}
		for i, arg := range lit.Atom.Args {
			name, isVar := theory.VariableSymbol(arg)
			if !isVar {
				continue
			}
			if _, seen := sizes[name]; seen {
				continue
			}
			if i >= len(domains) {
				continue
			}
			sizes[name] = domains[i].Len()
			order = append(order, name)
		}
	}
	out := make([]int, 0, len(order))
	for _, name := range order {
		out = append(out, sizes[name])
	}
	return out
}

// functionDomainSizes resolves every distinct function signature
// mentioned anywhere in clause's literals to the product of its declared
// argument-domain sizes, used as a stand-in for the term's own
// contribution to the clause's grounding space.
func functionDomainSizes(c *theory.Clause, mln *theory.MLN) []int {
	seen := make(map[schema.Signature]bool)
	var out []int
	for _, lit := range c.Literals {
		for _, sig := range theory.FunctionSignaturesIn(lit.Atom) {
			if seen[sig] {
				continue
			}
			seen[sig] = true
			names, ok := mln.Schema.FunctionDomains[sig]
			if !ok {
				continue
			}
			product := 1
			for _, name := range names {
				cs := mln.Constants[name]
				product *= cs.Len()
			}
			out = append(out, product)
		}
	}
	return out
}

// rescaleDepMap copies depMap, applying the noNegWeights rescale rule
// exactly once: a clique whose entries came from a clause split by
// noNegWeights carries negative per-clause frequencies that must be
// divided by that clause's body size (literal count) before they are
// usable as learning-time sufficient statistics. An entry is rescaled
// only when its origin clause actually took the split — a negative
// clause weight under noNegWeights — since eliminateNegatedUnit also
// inverts freq on weight >= 0 clauses but rewrites one emission for
// one, and those entries must pass through unscaled even when both
// flags are set on the same build.
func rescaleDepMap(depMap map[int]map[int]float64, mln *theory.MLN) map[int]map[int]float64 {
	out := make(map[int]map[int]float64, len(depMap))
	for cliqueID, byClause := range depMap {
		scaled := make(map[int]float64, len(byClause))
		for clauseIdx, freq := range byClause {
			if freq < 0 && splitByNoNegWeights(mln, clauseIdx) {
				if bodySize := clauseBodySize(mln, clauseIdx); bodySize > 1 {
					freq /= float64(bodySize)
				}
			}
			scaled[clauseIdx] = freq
		}
		out[cliqueID] = scaled
	}
	return out
}

// splitByNoNegWeights reports whether clauseIndex identifies a declared
// clause that the noNegWeights rewrite splits per literal: exactly the
// clauses with a negative weight. Synthetic query-unit clauses (indexed
// past the declared set) are zero-weight and never split.
func splitByNoNegWeights(mln *theory.MLN, clauseIndex int) bool {
	if clauseIndex < 0 || clauseIndex >= len(mln.Clauses) {
		return false
	}
	return mln.Clauses[clauseIndex].Weight < 0
}

func clauseBodySize(mln *theory.MLN, clauseIndex int) int {
	if clauseIndex < 0 || clauseIndex >= len(mln.Clauses) {
		return 1
	}
	return len(mln.Clauses[clauseIndex].Literals)
}
