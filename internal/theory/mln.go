package theory

import (
	"mlnground/internal/evidence"
	"mlnground/internal/predspace"
	"mlnground/internal/schema"
)

// Schema is the static vocabulary consumed by the grounder: predicate
// and function argument domains, plus the built-in implementations for
// dynamic predicates/functions (equality, ordering, and the like).
type Schema struct {
	PredicateDomains  map[schema.Signature]schema.ArgDomains
	FunctionDomains   map[schema.Signature]schema.ArgDomains
	DynamicPredicates map[schema.Signature]DynamicPredicate
	DynamicFunctions  map[schema.Signature]DynamicFunction
}

// IsDynamic reports whether sig is a built-in predicate whose truth is
// computed rather than looked up in evidence.
func (s *Schema) IsDynamic(sig schema.Signature) bool {
	_, ok := s.DynamicPredicates[sig]
	return ok
}

// MLN bundles everything the grounding engine needs, by reference: the
// schema, the constant domains, the weighted clause set, the predicate
// space (identity functions + role partition), and the evidence DB.
// Building these from a textual theory is out of scope; callers
// assemble an MLN value directly, as the coordinator's sole input.
type MLN struct {
	Schema    *Schema
	Constants map[string]*schema.ConstantsSet // domain name -> set
	Clauses   []*Clause
	Space     *predspace.Space
	Evidence  *evidence.DB
}

// DomainsFor resolves a signature's declared argument domain names into
// concrete ConstantsSet values, in argument order.
func (m *MLN) DomainsFor(sig schema.Signature) ([]*schema.ConstantsSet, bool) {
	names, ok := m.Schema.PredicateDomains[sig]
	if !ok {
		return nil, false
	}
	out := make([]*schema.ConstantsSet, len(names))
	for i, n := range names {
		out[i] = m.Constants[n]
	}
	return out, true
}
