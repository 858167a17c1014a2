package schema

import "fmt"

// ConstantsSet is an immutable, ordered, one-to-one mapping between a
// finite set of constant symbols and the contiguous index range [0, n).
// It provides O(1) symbol->index and index->symbol lookups.
type ConstantsSet struct {
	symbols []string
	index   map[string]int
}

// NewConstantsSet builds a ConstantsSet over symbols, in the given order.
// Order matters: it fixes the mixed-radix digit assigned to each constant
// by AtomIdentityFunction. Duplicate symbols collapse to their first
// occurrence's index, matching a de-duplicated domain declaration.
func NewConstantsSet(symbols []string) *ConstantsSet {
	cs := &ConstantsSet{
		symbols: make([]string, 0, len(symbols)),
		index:   make(map[string]int, len(symbols)),
	}
	for _, s := range symbols {
		if _, exists := cs.index[s]; exists {
			continue
		}
		cs.index[s] = len(cs.symbols)
		cs.symbols = append(cs.symbols, s)
	}
	return cs
}

// Len returns the domain size n.
func (cs *ConstantsSet) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.symbols)
}

// IndexOf returns the contiguous index of symbol, and false if symbol is
// not a member of this domain.
func (cs *ConstantsSet) IndexOf(symbol string) (int, bool) {
	if cs == nil {
		return 0, false
	}
	idx, ok := cs.index[symbol]
	return idx, ok
}

// SymbolAt returns the constant symbol at idx. Panics on an out-of-range
// idx: callers only ever reach this through values already bounds-checked
// by an AtomIdentityFunction, so an out-of-range idx indicates a caller
// bug rather than bad external input.
func (cs *ConstantsSet) SymbolAt(idx int) string {
	if cs == nil || idx < 0 || idx >= len(cs.symbols) {
		panic(fmt.Sprintf("schema: constant index %d out of range [0,%d)", idx, cs.Len()))
	}
	return cs.symbols[idx]
}

// Symbols returns the domain's symbols in assigned order. The returned
// slice must not be mutated by the caller.
func (cs *ConstantsSet) Symbols() []string {
	if cs == nil {
		return nil
	}
	return cs.symbols
}
