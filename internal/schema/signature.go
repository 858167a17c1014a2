// Package schema defines the static vocabulary of an MLN: predicate and
// function signatures, and the finite constant domains they range over.
package schema

import "fmt"

// Signature identifies a predicate (or, in the schema, a function) by its
// symbol and arity. Two signatures with the same symbol but different
// arity are distinct predicates.
type Signature struct {
	Symbol string
	Arity  int
}

// String renders the signature the way Mangle renders a PredicateSym,
// e.g. "smokes/1".
func (s Signature) String() string {
	return fmt.Sprintf("%s/%d", s.Symbol, s.Arity)
}

// ArgDomains names, per argument position, which constant domain (by
// domain name, looked up in an MLN's ConstantsSet map) that position
// ranges over.
type ArgDomains []string
