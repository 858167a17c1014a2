// Package grounder implements the Clause Grounder: given one
// clause and the current reachability frontier, it enumerates every
// substitution of the clause's variables, prunes tautologies and
// out-of-frontier substitutions against the Evidence DB, rewrites
// weights per the configured flags, and emits the survivors as clique
// entries sharded across the Clique Register.
package grounder

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"mlnground/internal/clique"
	"mlnground/internal/evidence"
	"mlnground/internal/identity"
	"mlnground/internal/schema"
	"mlnground/internal/theory"
)

// Flags are the two weight-rewriting switches, chosen once for the
// whole build (they are learning-system knobs, not per-clause).
type Flags struct {
	NoNegWeights         bool
	EliminateNegatedUnit bool
}

// Dispatch delivers one clique.Entry to the shard that owns it, computed
// as |hashKey| mod len(shards) (remapped off zero below).
type Dispatch func(shardIndex int, e clique.Entry)

// Result is what a single Ground call reports back to the coordinator:
// the open-world predicate signatures this clause's surviving
// substitutions actually referenced, which the coordinator unions into
// its interesting-signature set for the next reachability round.
type Result struct {
	OpenWorldSignatures map[schema.Signature]bool
}

// literalPlan is the per-literal precomputed state the ordering pass and
// substitution loop both need.
type literalPlan struct {
	lit      theory.Literal
	dynamic  bool
	dynFn    theory.DynamicPredicate
	varCount int

	idf     *identity.Function
	pe      evidence.PredicateEvidence
	isQuery bool
	isOpen  bool

	fastPath bool  // every argument is a plain clause variable
	perm     []int // fastPath only: arg position -> index into the substitution array
	score    float64
}

// Ground enumerates clause's substitutions against mln, prunes them
// against atomsDB and the evidence DB, rewrites surviving weights per
// flags, and dispatches the resulting clique.Entry values via dispatch.
// clauseIndex is stamped onto every emitted entry for dependency-map
// bookkeeping; numShards must match the clique-register shard count
// dispatch routes over.
func Ground(clauseIndex int, clause *theory.Clause, mln *theory.MLN, atomsDB *roaring.Bitmap, flags Flags, numShards int, dispatch Dispatch) (Result, error) {
	result := Result{OpenWorldSignatures: make(map[schema.Signature]bool)}

	if math.IsNaN(clause.Weight) {
		return Result{}, theory.ErrInvalidWeight
	}

	clauseVars := clause.Variables()
	varIndex := make(map[string]int, len(clauseVars))
	for i, v := range clauseVars {
		varIndex[v] = i
	}

	plans := make([]*literalPlan, len(clause.Literals))
	for i, lit := range clause.Literals {
		p, err := planLiteral(lit, mln, varIndex)
		if err != nil {
			return Result{}, err
		}
		if p.dynamic && p.dynFn == nil {
			// Detectable statically from the clause's literal set alone:
			// fail before any substitution work (no partial results for
			// a failing clause).
			return Result{}, theory.ErrUnsupportedDynamic
		}
		plans[i] = p
	}
	orderLiterals(plans)

	domains := make([]*schema.ConstantsSet, len(clauseVars))
	for i, v := range clauseVars {
		// A clause variable's domain is whichever predicate argument
		// position it first appears in; since all occurrences of the
		// same variable must share a domain for the clause to be
		// well-typed, any literal mentioning it will do.
		domains[i] = domainOf(v, clause, mln)
	}

	var groundErr error
	enumerate(domains, func(substitution []int) {
		if groundErr != nil {
			return
		}
		if err := groundOne(substitution, clauseVars, domains, plans, clause.Weight, clauseIndex, atomsDB, mln, flags, numShards, dispatch, result.OpenWorldSignatures); err != nil {
			groundErr = err
		}
	})
	if groundErr != nil {
		return Result{}, groundErr
	}

	return result, nil
}

func planLiteral(lit theory.Literal, mln *theory.MLN, varIndex map[string]int) (*literalPlan, error) {
	sig := lit.Atom.Predicate
	p := &literalPlan{lit: lit}

	seen := make(map[string]bool)
	p.fastPath = true
	p.perm = make([]int, len(lit.Atom.Args))
	for i, arg := range lit.Atom.Args {
		name, isVar := variableName(arg)
		if !isVar {
			p.fastPath = false
			continue
		}
		if !seen[name] {
			seen[name] = true
			p.varCount++
		}
		idx, ok := varIndex[name]
		if !ok {
			p.fastPath = false
			continue
		}
		p.perm[i] = idx
	}

	if mln.Schema.IsDynamic(sig) {
		p.dynamic = true
		p.dynFn = mln.Schema.DynamicPredicates[sig]
		return p, nil
	}

	p.idf = mln.Space.IdentityOf(sig)
	if p.idf == nil {
		return nil, fmt.Errorf("grounder: predicate %s has no declared identity function", sig)
	}
	p.pe = mln.Evidence.ForSignature(sig)
	p.isQuery = mln.Space.IsQuery(sig)
	p.isOpen = mln.Space.IsOpenWorld(sig)

	length := p.idf.Length
	numTrue, numFalse := mln.Evidence.CountsFor(sig, length)
	unknown := length - numTrue - numFalse
	var unsat int
	if lit.Positive {
		unsat = length - numTrue
	} else {
		unsat = length - numFalse
	}
	if length > 0 {
		p.score = float64(unsat+unknown) / float64(length)
	}
	return p, nil
}

// variableName reports the variable symbol of t if t is a bare
// ast.Variable term (the only shape the fast EncodeIndirect path
// supports); anything else (a constant, a nested function application)
// falls back to the slower per-substitution grounding path.
func variableName(t theory.Term) (string, bool) {
	return theory.VariableSymbol(t)
}

// orderLiterals applies the literal-ordering comparator in place, stably.
func orderLiterals(plans []*literalPlan) {
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		switch {
		case !a.dynamic && !b.dynamic:
			return a.score < b.score
		case a.dynamic && b.dynamic:
			return a.varCount < b.varCount
		default:
			nonDynamic := a
			aIsDynamic := a.dynamic
			if aIsDynamic {
				nonDynamic = b
			}
			if nonDynamic.pe != nil && nonDynamic.pe.IsTriState() {
				return aIsDynamic
			}
			return a.varCount < b.varCount
		}
	})
}

// domainOf finds the ConstantsSet governing variable name by scanning
// the clause's literals for its first occurrence in a plain-variable
// argument position.
func domainOf(name string, clause *theory.Clause, mln *theory.MLN) *schema.ConstantsSet {
	for _, lit := range clause.Literals {
		domains, ok := mln.DomainsFor(lit.Atom.Predicate)
		if !ok {
			continue
		}
		for i, arg := range lit.Atom.Args {
			if n, isVar := variableName(arg); isVar && n == name && i < len(domains) {
				return domains[i]
			}
		}
	}
	return nil
}

// enumerate walks the Cartesian product of domains, calling visit with a
// freshly-allocated substitution array of per-variable constant indices
// for every combination.
func enumerate(domains []*schema.ConstantsSet, visit func(substitution []int)) {
	n := len(domains)
	if n == 0 {
		visit(nil)
		return
	}
	idxs := make([]int, n)
	var recurse func(k int)
	recurse = func(k int) {
		if k == n {
			visit(append([]int(nil), idxs...))
			return
		}
		d := domains[k]
		if d == nil {
			return
		}
		for i := 0; i < d.Len(); i++ {
			idxs[k] = i
			recurse(k + 1)
		}
	}
	recurse(0)
}
