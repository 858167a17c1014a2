// Package identity implements the atom identity function: the bijection
// between a predicate's ground argument tuples and a contiguous range of
// integer atom IDs.
package identity

import (
	"fmt"

	"mlnground/internal/schema"
)

// IdentityNotExist is the sentinel atomID returned when a tuple contains
// a constant outside its domain. 0 is never a valid atomID.
const IdentityNotExist = 0

// OutOfRangeError reports a Decode call for an atomID outside
// [StartID, EndID) of the identity function it was called on.
type OutOfRangeError struct {
	AtomID  int
	StartID int
	EndID   int
	Symbol  string
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("identity: atomID %d out of range [%d,%d) for %s", e.AtomID, e.StartID, e.EndID, e.Symbol)
}

// InvalidArityError reports a New call whose domain list length differs
// from the signature's arity. The Encode methods do not return it: an
// argument list of the wrong length yields IdentityNotExist.
type InvalidArityError struct {
	Symbol   string
	Expected int
	Got      int
}

func (e *InvalidArityError) Error() string {
	return fmt.Sprintf("identity: %s expects %d args, got %d", e.Symbol, e.Expected, e.Got)
}

// Function is the per-predicate atom identity function: a bijection
// between a predicate's ground argument tuples and the contiguous range
// [StartID, EndID).
//
// Arguments are encoded as a mixed-radix number: steps[i] is the product
// of the domain sizes of all earlier argument positions, so each argument
// contributes idx*steps[i] independently and Decode can peel digits off
// from the highest position down.
type Function struct {
	Signature schema.Signature
	Domains   []*schema.ConstantsSet // one per argument position, len == arity

	StartID int
	Length  int
	EndID   int

	steps []int // steps[i] = product of |Domains[j]| for j < i
}

// New builds the identity function for one predicate signature given its
// per-argument domains and a chosen StartID (must be >= 1; 0 is reserved
// for IdentityNotExist).
func New(sig schema.Signature, domains []*schema.ConstantsSet, startID int) (*Function, error) {
	if startID < 1 {
		return nil, fmt.Errorf("identity: startID must be >= 1, got %d", startID)
	}
	if len(domains) != sig.Arity {
		return nil, &InvalidArityError{Symbol: sig.Symbol, Expected: sig.Arity, Got: len(domains)}
	}

	steps := make([]int, len(domains))
	length := 1
	for i, d := range domains {
		steps[i] = length
		length *= d.Len()
	}
	// Arity 0: length stays 1 (single ground atom = the predicate itself).
	// Any zero-size domain collapses length to 0 (no valid ground atoms).

	return &Function{
		Signature: sig,
		Domains:   domains,
		StartID:   startID,
		Length:    length,
		EndID:     startID + length,
		steps:     steps,
	}, nil
}

// EncodeSymbols encodes a tuple of constant symbols, one per argument
// position. Returns IdentityNotExist if args has the wrong length or any
// symbol is absent from its domain.
func (f *Function) EncodeSymbols(args []string) int {
	if len(args) != len(f.Domains) {
		return IdentityNotExist
	}
	idxs := make([]int, len(args))
	for i, a := range args {
		idx, ok := f.Domains[i].IndexOf(a)
		if !ok {
			return IdentityNotExist
		}
		idxs[i] = idx
	}
	return f.EncodeIndices(idxs)
}

// EncodeIndices encodes a tuple already given as per-argument constant
// indices (as returned by ConstantsSet.IndexOf). Returns IdentityNotExist
// on a length mismatch or an index out of its domain's bounds.
func (f *Function) EncodeIndices(idxs []int) int {
	if len(idxs) != len(f.Domains) {
		return IdentityNotExist
	}
	id := f.StartID
	for i, idx := range idxs {
		if idx < 0 || idx >= f.Domains[i].Len() {
			return IdentityNotExist
		}
		id += idx * f.steps[i]
	}
	return id
}

// EncodeIndirect encodes this atom's arguments out of a larger
// substitution array: perm[i] gives the position within substitution
// whose value is this atom's i-th argument's constant index. This lets a
// clause grounder compute every literal's atomID from one shared
// per-substitution array in O(arity), without re-deriving which
// variables bind which argument positions on every call.
func (f *Function) EncodeIndirect(substitution []int, perm []int) int {
	if len(perm) != len(f.Domains) {
		return IdentityNotExist
	}
	id := f.StartID
	for i, pos := range perm {
		if pos < 0 || pos >= len(substitution) {
			return IdentityNotExist
		}
		idx := substitution[pos]
		if idx < 0 || idx >= f.Domains[i].Len() {
			return IdentityNotExist
		}
		id += idx * f.steps[i]
	}
	return id
}

// Decode inverts Encode*, returning the constant symbols of the ground
// atom identified by id, in argument order.
func (f *Function) Decode(id int) ([]string, error) {
	if id < f.StartID || id >= f.EndID {
		return nil, &OutOfRangeError{AtomID: id, StartID: f.StartID, EndID: f.EndID, Symbol: f.Signature.Symbol}
	}
	residue := id - f.StartID
	syms := make([]string, len(f.Domains))
	for i := len(f.Domains) - 1; i >= 0; i-- {
		idx := residue / f.steps[i]
		residue -= idx * f.steps[i]
		syms[i] = f.Domains[i].SymbolAt(idx)
	}
	return syms, nil
}

// DecodeIndices is like Decode but returns per-argument constant indices
// instead of symbols, avoiding a ConstantsSet lookup when the caller only
// needs the indices (e.g. to recompute a related atomID).
func (f *Function) DecodeIndices(id int) ([]int, error) {
	if id < f.StartID || id >= f.EndID {
		return nil, &OutOfRangeError{AtomID: id, StartID: f.StartID, EndID: f.EndID, Symbol: f.Signature.Symbol}
	}
	residue := id - f.StartID
	idxs := make([]int, len(f.Domains))
	for i := len(f.Domains) - 1; i >= 0; i-- {
		idx := residue / f.steps[i]
		residue -= idx * f.steps[i]
		idxs[i] = idx
	}
	return idxs, nil
}

// Binding is a partial assignment of argument positions to constant
// symbols, used to drive MatchesIterator.
type Binding map[int]string

// MatchesIterator returns a finite, single-pass, non-restartable sequence
// of every atomID whose arguments agree with binding. Positions absent
// from binding range over their full domain.
func (f *Function) MatchesIterator(binding Binding) func(yield func(int) bool) {
	return func(yield func(int) bool) {
		idxs := make([]int, len(f.Domains))
		free := make([]int, 0, len(f.Domains))
		for i := range f.Domains {
			if sym, bound := binding[i]; bound {
				idx, ok := f.Domains[i].IndexOf(sym)
				if !ok {
					return // bound constant outside its domain: no matches
				}
				idxs[i] = idx
			} else {
				free = append(free, i)
			}
		}
		if len(free) == 0 {
			yield(f.EncodeIndices(idxs))
			return
		}
		var recurse func(k int) bool
		recurse = func(k int) bool {
			if k == len(free) {
				return yield(f.EncodeIndices(idxs))
			}
			pos := free[k]
			n := f.Domains[pos].Len()
			for i := 0; i < n; i++ {
				idxs[pos] = i
				if !recurse(k + 1) {
					return false
				}
			}
			return true
		}
		recurse(0)
	}
}
