package grounder

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"mlnground/internal/clique"
	"mlnground/internal/evidence"
	"mlnground/internal/identity"
	"mlnground/internal/schema"
	"mlnground/internal/theory"
)

// groundOne runs the per-substitution pruning procedure for a single
// point in the Cartesian product, then rewrites and dispatches whatever
// survives.
func groundOne(
	substitution []int,
	clauseVars []string,
	varDomains []*schema.ConstantsSet,
	plans []*literalPlan,
	weight float64,
	clauseIndex int,
	atomsDB *roaring.Bitmap,
	mln *theory.MLN,
	flags Flags,
	numShards int,
	dispatch Dispatch,
	openSigs map[schema.Signature]bool,
) error {
	var current []int
	var binding map[string]string

	for _, p := range plans {
		if p.dynamic {
			if p.dynFn == nil {
				return theory.ErrUnsupportedDynamic
			}
			args, ok := resolveArgs(p, substitution, clauseVars, varDomains, &binding, mln)
			if !ok {
				return nil // unbound argument: this substitution cannot exist, drop silently
			}
			truth := p.dynFn(args)
			if truth == p.lit.Positive {
				return nil // clause satisfied under this substitution: discard
			}
			continue // False: omit this literal, keep going
		}

		var atomID int
		if p.fastPath {
			atomID = p.idf.EncodeIndirect(substitution, p.perm)
		} else {
			args, ok := resolveArgs(p, substitution, clauseVars, varDomains, &binding, mln)
			if !ok {
				return nil
			}
			atomID = p.idf.EncodeSymbols(args)
		}
		if atomID == identity.IdentityNotExist {
			return nil
		}

		state, err := mln.Evidence.State(atomID)
		if err != nil {
			return nil // atomID landed outside any declared range: treat as non-existent
		}

		satisfied := (p.lit.Positive && state == evidence.StateTrue) || (!p.lit.Positive && state == evidence.StateFalse)
		if satisfied {
			return nil
		}
		contradicted := (p.lit.Positive && state == evidence.StateFalse) || (!p.lit.Positive && state == evidence.StateTrue)
		if contradicted {
			continue
		}

		if p.isOpen {
			openSigs[p.lit.Atom.Predicate] = true
		}
		signed := atomID
		if !p.lit.Positive {
			signed = -atomID
		}
		current = append(current, signed)
	}

	if len(current) == 0 {
		return nil // nothing Unknown survived: no constraint to contribute
	}

	if !passesReachability(current, atomsDB, mln) {
		return nil
	}

	rewriteAndEmit(weight, current, clauseIndex, flags, numShards, dispatch)
	return nil
}

// resolveArgs grounds a literal's argument list for the slow path
// (any argument that is a constant or a nested function application),
// building the full per-clause variable binding lazily and only once
// per substitution so every slow-path literal shares it.
func resolveArgs(p *literalPlan, substitution []int, clauseVars []string, varDomains []*schema.ConstantsSet, binding *map[string]string, mln *theory.MLN) ([]string, bool) {
	if *binding == nil {
		b := make(map[string]string, len(clauseVars))
		for i, v := range clauseVars {
			if varDomains[i] == nil {
				continue
			}
			b[v] = varDomains[i].SymbolAt(substitution[i])
		}
		*binding = b
	}
	return theory.GroundArgs(p.lit.Atom, *binding, mln.Schema.DynamicFunctions)
}

// passesReachability implements the reachability filter: kept iff some
// Unknown literal's atomID is already in atomsDB, or its predicate is a
// query predicate (the all-pass sentinel).
func passesReachability(current []int, atomsDB *roaring.Bitmap, mln *theory.MLN) bool {
	for _, signed := range current {
		atomID := signed
		if atomID < 0 {
			atomID = -atomID
		}
		sig, err := mln.Space.SignatureOf(atomID)
		if err != nil {
			continue
		}
		if mln.Space.IsQuery(sig) {
			return true
		}
		if atomsDB != nil && atomsDB.Contains(uint32(atomID)) {
			return true
		}
	}
	return false
}

// rewriteAndEmit applies the weight-rewriting rules to the surviving
// Unknown-atom vector and dispatches the resulting entries.
func rewriteAndEmit(weight float64, current []int, clauseIndex int, flags Flags, numShards int, dispatch Dispatch) {
	switch {
	case flags.NoNegWeights && weight < 0:
		if len(current) == 1 {
			emit(-weight, []int{-current[0]}, clauseIndex, -1, numShards, dispatch)
			return
		}
		for _, v := range current {
			emit(-weight/float64(len(current)), []int{-v}, clauseIndex, -1, numShards, dispatch)
		}

	case flags.EliminateNegatedUnit && len(current) == 1 && current[0] < 0:
		emit(-weight, []int{-current[0]}, clauseIndex, -1, numShards, dispatch)

	default:
		vars := append([]int(nil), current...)
		if len(vars) > 1 {
			sort.Ints(vars)
		}
		emit(weight, vars, clauseIndex, 1, numShards, dispatch)
	}
}

func emit(weight float64, vars []int, clauseIndex, freq, numShards int, dispatch Dispatch) {
	sorted := clique.SortVariables(append([]int(nil), vars...))
	hk := clique.HashKey(sorted)
	shardIdx := hk % numShards
	if shardIdx < 0 {
		shardIdx = -shardIdx
	}
	dispatch(shardIdx, clique.Entry{
		HashKey:     hk,
		Weight:      weight,
		Variables:   sorted,
		ClauseIndex: clauseIndex,
		Freq:        freq,
	})
}
