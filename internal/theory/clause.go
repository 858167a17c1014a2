package theory

import "math"

// Literal is a (polarity, atom) pair: the atom itself, and whether it
// appears negated in the clause.
type Literal struct {
	Positive bool
	Atom     Atom
}

// Clause is a weighted disjunction of literals. Weight is NaN-forbidden
// by construction (NewClause rejects it); +Inf marks a hard constraint,
// 0 is ignored for constraint emission except for the query-atom unit
// clauses the coordinator injects.
type Clause struct {
	Weight   float64
	Literals []Literal

	variables []string // first-encountered order, deduplicated
}

// NewClause builds a clause, rejecting a NaN weight immediately: an
// invalid weight is fatal and must surface before any substitution
// work begins.
func NewClause(weight float64, literals []Literal) (*Clause, error) {
	if math.IsNaN(weight) {
		return nil, ErrInvalidWeight
	}
	c := &Clause{Weight: weight, Literals: literals}
	seen := make(map[string]bool)
	for _, lit := range literals {
		for _, arg := range lit.Atom.Args {
			collectVariables(arg, seen, &c.variables)
		}
	}
	return c, nil
}

// Variables returns the clause's distinct variables in first-encountered
// order.
func (c *Clause) Variables() []string { return c.variables }

// IsGround reports whether the clause has no variables.
func (c *Clause) IsGround() bool { return len(c.variables) == 0 }

// IsHard reports whether the clause is a hard constraint (weight +Inf).
func (c *Clause) IsHard() bool { return math.IsInf(c.Weight, 1) }
