package theory

import (
	"fmt"

	"github.com/google/mangle/ast"

	"mlnground/internal/schema"
)

// Term is one argument of a literal: a constant, a variable, or a nested
// function application (fn:succ(X)). Mangle's ast.BaseTerm sum type
// (ast.Constant / ast.Variable / ast.ApplyFn) is exactly this algebra, so
// literal arguments are represented directly as ast.BaseTerm rather than
// a bespoke re-implementation.
type Term = ast.BaseTerm

// DynamicPredicate computes the truth of a built-in predicate directly
// from its ground argument constants, rather than an evidence lookup.
type DynamicPredicate func(args []string) bool

// DynamicFunction computes a function term's ground value directly from
// its ground argument constants.
type DynamicFunction func(args []string) string

// Atom is a predicate signature applied to a term list.
type Atom struct {
	Predicate schema.Signature
	Args      []Term
}

// collectVariables walks a term, recording every ast.Variable it
// mentions (including inside nested ApplyFn arguments) into seen, in
// first-encountered order into order.
func collectVariables(t Term, seen map[string]bool, order *[]string) {
	switch v := t.(type) {
	case ast.Variable:
		if !seen[v.Symbol] {
			seen[v.Symbol] = true
			*order = append(*order, v.Symbol)
		}
	case ast.ApplyFn:
		for _, arg := range v.Args {
			collectVariables(arg, seen, order)
		}
	}
}

// groundTerm resolves t to a constant symbol given a binding from
// variable name to constant symbol and a table of dynamic function
// implementations for any nested ApplyFn terms. Returns ok=false if a
// variable is unbound or a function symbol is undeclared.
func groundTerm(t Term, binding map[string]string, funcs map[schema.Signature]DynamicFunction) (string, bool) {
	switch v := t.(type) {
	case ast.Constant:
		return constantSymbol(v), true
	case ast.Variable:
		sym, ok := binding[v.Symbol]
		return sym, ok
	case ast.ApplyFn:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			sym, ok := groundTerm(a, binding, funcs)
			if !ok {
				return "", false
			}
			args[i] = sym
		}
		sig := schema.Signature{Symbol: v.Function.Symbol, Arity: len(v.Args)}
		fn, ok := funcs[sig]
		if !ok {
			return "", false
		}
		return fn(args), true
	default:
		return "", false
	}
}

// VariableSymbol reports t's variable name if t is a bare ast.Variable
// term, and false for anything else (a constant or a nested function
// application), letting callers pick a fast per-variable encoding path
// only when it genuinely applies.
func VariableSymbol(t Term) (string, bool) {
	v, ok := t.(ast.Variable)
	if !ok {
		return "", false
	}
	return v.Symbol, true
}

// GroundTerm is the grounder-facing entry point to groundTerm: resolve t
// to a constant symbol given a variable binding and dynamic-function
// table.
func GroundTerm(t Term, binding map[string]string, funcs map[schema.Signature]DynamicFunction) (string, bool) {
	return groundTerm(t, binding, funcs)
}

// FunctionSignaturesIn walks every argument of atom (recursively through
// nested ApplyFn terms) and returns the distinct function signatures
// mentioned, in first-encountered order. Used by the MRF builder's
// hard-weight bound, which must account for every function term's
// contribution to a clause's combinatorial grounding space.
func FunctionSignaturesIn(atom Atom) []schema.Signature {
	var order []schema.Signature
	seen := make(map[schema.Signature]bool)
	var walk func(t Term)
	walk = func(t Term) {
		v, ok := t.(ast.ApplyFn)
		if !ok {
			return
		}
		sig := schema.Signature{Symbol: v.Function.Symbol, Arity: len(v.Args)}
		if !seen[sig] {
			seen[sig] = true
			order = append(order, sig)
		}
		for _, arg := range v.Args {
			walk(arg)
		}
	}
	for _, arg := range atom.Args {
		walk(arg)
	}
	return order
}

// GroundArgs grounds every argument of atom against binding, returning
// the resulting symbol vector in argument order. ok is false if any
// argument fails to ground (unbound variable or undeclared function).
func GroundArgs(atom Atom, binding map[string]string, funcs map[schema.Signature]DynamicFunction) ([]string, bool) {
	out := make([]string, len(atom.Args))
	for i, arg := range atom.Args {
		sym, ok := groundTerm(arg, binding, funcs)
		if !ok {
			return nil, false
		}
		out[i] = sym
	}
	return out, true
}

// constantSymbol renders an ast.Constant to the plain symbol used as a
// ConstantsSet member, stripping Mangle's name-constant "/" prefix where
// present.
func constantSymbol(c ast.Constant) string {
	s := c.String()
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

// MustName builds an ast.Constant name term, panicking on malformed
// input; used by tests and fixture loaders to build literal arguments.
func MustName(symbol string) ast.Constant {
	c, err := ast.Name("/" + symbol)
	if err != nil {
		panic(fmt.Sprintf("theory: invalid constant name %q: %v", symbol, err))
	}
	return c
}

// Var builds an ast.Variable term.
func Var(name string) ast.Variable {
	return ast.Variable{Symbol: name}
}

// Apply builds an ast.ApplyFn term for a nested function application.
func Apply(function string, args ...Term) ast.ApplyFn {
	return ast.ApplyFn{Function: ast.FunctionSym{Symbol: function, Arity: len(args)}, Args: args}
}
