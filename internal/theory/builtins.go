package theory

import "mlnground/internal/schema"

// BuiltinSet is the dynamic predicate/function table an MLN's Schema
// carries: built-ins whose truth (or value) is computed directly from
// ground arguments rather than looked up in evidence. Parsing a textual
// declaration of these is out of scope; a caller assembling an MLN
// supplies the table it needs directly.
type BuiltinSet struct {
	Predicates      map[schema.Signature]DynamicPredicate
	Functions       map[schema.Signature]DynamicFunction
	FunctionDomains map[schema.Signature]schema.ArgDomains
}

// DefaultBuiltins returns the equality and ordering built-ins LoMRF-style
// theories commonly rely on: "equal/2" and "lessThan/2", compared as
// strings over the constant symbols (constants in this representation
// have no declared numeric type, so lexicographic order is the only
// dynamic comparison available without a richer term algebra).
func DefaultBuiltins() BuiltinSet {
	equal := schema.Signature{Symbol: "equal", Arity: 2}
	lessThan := schema.Signature{Symbol: "lessThan", Arity: 2}
	return BuiltinSet{
		Predicates: map[schema.Signature]DynamicPredicate{
			equal:    func(args []string) bool { return args[0] == args[1] },
			lessThan: func(args []string) bool { return args[0] < args[1] },
		},
		Functions:       map[schema.Signature]DynamicFunction{},
		FunctionDomains: map[schema.Signature]schema.ArgDomains{},
	}
}
