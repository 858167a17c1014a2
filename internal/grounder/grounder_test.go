package grounder

import (
	"errors"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"

	"mlnground/internal/clique"
	"mlnground/internal/evidence"
	"mlnground/internal/predspace"
	"mlnground/internal/schema"
	"mlnground/internal/theory"
)

// buildMLN assembles a minimal MLN fixture. factsFn is called with the
// already-built predicate space so tests can compute atomIDs (which
// depend on the space) before adding facts to the evidence builder.
func buildMLN(t *testing.T, query, hidden, evid []predspace.Declaration, factsFn func(sp *predspace.Space, b *evidence.Builder), constants map[string]*schema.ConstantsSet, predDomains map[schema.Signature]schema.ArgDomains) *theory.MLN {
	t.Helper()
	sp, err := predspace.Build(query, hidden, evid)
	if err != nil {
		t.Fatalf("predspace.Build() error = %v", err)
	}
	b := evidence.NewBuilder(sp)
	if factsFn != nil {
		factsFn(sp, b)
	}
	db, err := b.Build()
	if err != nil {
		t.Fatalf("evidence.Build() error = %v", err)
	}
	return &theory.MLN{
		Schema:    &theory.Schema{PredicateDomains: predDomains},
		Constants: constants,
		Space:     sp,
		Evidence:  db,
	}
}

func collectDispatch() (Dispatch, func() []clique.Entry) {
	var entries []clique.Entry
	return func(_ int, e clique.Entry) {
		entries = append(entries, e)
	}, func() []clique.Entry { return entries }
}

// Tautology pruning: P(a) = True, clause P(a) v Q(a) weight 1.5 -> zero constraints.
func TestTautologyPruning(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	p := schema.Signature{Symbol: "P", Arity: 1}
	q := schema.Signature{Symbol: "Q", Arity: 1}
	domains := map[schema.Signature]schema.ArgDomains{p: {"d"}, q: {"d"}}

	mln := buildMLN(t,
		[]predspace.Declaration{{Signature: q, Domains: []*schema.ConstantsSet{d}}},
		nil,
		[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
		func(sp *predspace.Space, b *evidence.Builder) {
			atomP := sp.IdentityOf(p).EncodeSymbols([]string{"a"})
			b.Add(p, evidence.Fact{AtomID: atomP, Positive: true, Probability: math.NaN()})
		},
		map[string]*schema.ConstantsSet{"d": d}, domains)

	clause, err := theory.NewClause(1.5, []theory.Literal{
		{Positive: true, Atom: theory.Atom{Predicate: p, Args: []theory.Term{theory.Var("X")}}},
		{Positive: true, Atom: theory.Atom{Predicate: q, Args: []theory.Term{theory.Var("X")}}},
	})
	if err != nil {
		t.Fatalf("NewClause() error = %v", err)
	}

	dispatch, entries := collectDispatch()
	if _, err := Ground(0, clause, mln, roaring.New(), Flags{}, 1, dispatch); err != nil {
		t.Fatalf("Ground() error = %v", err)
	}
	if got := entries(); len(got) != 0 {
		t.Fatalf("entries = %v, want none (tautology pruned)", got)
	}
}

// Unknown-literal retention.
func TestUnknownLiteralRetention(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	p := schema.Signature{Symbol: "P", Arity: 1}
	q := schema.Signature{Symbol: "Q", Arity: 1}
	domains := map[schema.Signature]schema.ArgDomains{p: {"d"}, q: {"d"}}

	clauseLits := []theory.Literal{
		{Positive: false, Atom: theory.Atom{Predicate: p, Args: []theory.Term{theory.Var("X")}}},
		{Positive: true, Atom: theory.Atom{Predicate: q, Args: []theory.Term{theory.Var("X")}}},
	}

	t.Run("P=False satisfies negation", func(t *testing.T) {
		mln := buildMLN(t,
			[]predspace.Declaration{{Signature: q, Domains: []*schema.ConstantsSet{d}}},
			nil,
			[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
			nil, // no facts: closed-world default is False
			map[string]*schema.ConstantsSet{"d": d}, domains)

		clause, _ := theory.NewClause(2.0, clauseLits)
		dispatch, entries := collectDispatch()
		if _, err := Ground(0, clause, mln, roaring.New(), Flags{}, 1, dispatch); err != nil {
			t.Fatalf("Ground() error = %v", err)
		}
		if got := entries(); len(got) != 0 {
			t.Fatalf("entries = %v, want none (satisfied by evidence)", got)
		}
	})

	t.Run("P=Unknown retains both atoms", func(t *testing.T) {
		mln := buildMLN(t,
			[]predspace.Declaration{{Signature: q, Domains: []*schema.ConstantsSet{d}}},
			[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
			nil, // P hidden (open-world), no facts -> Unknown
			nil,
			map[string]*schema.ConstantsSet{"d": d}, domains)

		clause, _ := theory.NewClause(2.0, clauseLits)
		dispatch, entries := collectDispatch()
		if _, err := Ground(0, clause, mln, roaring.New(), Flags{}, 1, dispatch); err != nil {
			t.Fatalf("Ground() error = %v", err)
		}
		got := entries()
		if len(got) != 1 {
			t.Fatalf("entries = %v, want exactly one constraint", got)
		}
		if got[0].Weight != 2.0 {
			t.Fatalf("weight = %v, want 2.0", got[0].Weight)
		}
		if len(got[0].Variables) != 2 {
			t.Fatalf("variables = %v, want 2 signed atomIDs", got[0].Variables)
		}
	})
}

// Negative-weight rewrite.
func TestNegativeWeightRewrite(t *testing.T) {
	a := schema.Signature{Symbol: "A", Arity: 0}
	b := schema.Signature{Symbol: "B", Arity: 0}
	c := schema.Signature{Symbol: "C", Arity: 0}
	domains := map[schema.Signature]schema.ArgDomains{}

	mln := buildMLN(t,
		nil,
		[]predspace.Declaration{
			{Signature: a, Domains: []*schema.ConstantsSet{}},
			{Signature: b, Domains: []*schema.ConstantsSet{}},
			{Signature: c, Domains: []*schema.ConstantsSet{}},
		},
		nil, nil, map[string]*schema.ConstantsSet{}, domains)

	clause, err := theory.NewClause(-3.0, []theory.Literal{
		{Positive: true, Atom: theory.Atom{Predicate: a}},
		{Positive: true, Atom: theory.Atom{Predicate: b}},
		{Positive: true, Atom: theory.Atom{Predicate: c}},
	})
	if err != nil {
		t.Fatalf("NewClause() error = %v", err)
	}

	atomsDB := roaring.New()
	for _, sig := range []schema.Signature{a, b, c} {
		atomsDB.Add(uint32(mln.Space.IdentityOf(sig).StartID))
	}

	dispatch, entries := collectDispatch()
	if _, err := Ground(0, clause, mln, atomsDB, Flags{NoNegWeights: true}, 1, dispatch); err != nil {
		t.Fatalf("Ground() error = %v", err)
	}
	got := entries()
	if len(got) != 3 {
		t.Fatalf("entries = %v, want 3 unit constraints", got)
	}
	var sum float64
	for _, e := range got {
		if len(e.Variables) != 1 {
			t.Fatalf("entry %v should be a unit constraint", e)
		}
		if e.Variables[0] >= 0 {
			t.Fatalf("entry %v should carry a negated atomID", e)
		}
		if e.Freq != -1 {
			t.Fatalf("entry %v freq = %d, want -1", e, e.Freq)
		}
		sum += e.Weight
	}
	if math.Abs(sum-3.0) > 1e-9 {
		t.Fatalf("sum of emitted weights = %v, want 3.0", sum)
	}
}

// eliminateNegatedUnit flips a surviving negated unit into a positive
// literal with inverted weight and freq = -1, so no emitted unit
// constraint ever carries a negative signed atomID.
func TestEliminateNegatedUnitRewrite(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	p := schema.Signature{Symbol: "P", Arity: 1}
	domains := map[schema.Signature]schema.ArgDomains{p: {"d"}}

	mln := buildMLN(t,
		[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
		nil, nil, nil,
		map[string]*schema.ConstantsSet{"d": d}, domains)

	clause, err := theory.NewClause(2.0, []theory.Literal{
		{Positive: false, Atom: theory.Atom{Predicate: p, Args: []theory.Term{theory.Var("X")}}},
	})
	if err != nil {
		t.Fatalf("NewClause() error = %v", err)
	}

	dispatch, entries := collectDispatch()
	if _, err := Ground(0, clause, mln, roaring.New(), Flags{EliminateNegatedUnit: true}, 1, dispatch); err != nil {
		t.Fatalf("Ground() error = %v", err)
	}
	got := entries()
	if len(got) != 1 {
		t.Fatalf("entries = %v, want one rewritten unit", got)
	}
	atomP := mln.Space.IdentityOf(p).EncodeSymbols([]string{"a"})
	if got[0].Variables[0] != atomP {
		t.Fatalf("rewritten literal = %v, want positive %d", got[0].Variables, atomP)
	}
	if got[0].Weight != -2.0 {
		t.Fatalf("rewritten weight = %v, want -2.0 (sign inverted with the literal)", got[0].Weight)
	}
	if got[0].Freq != -1 {
		t.Fatalf("freq = %d, want -1 (inversion marker)", got[0].Freq)
	}
}

// Dynamic-literal evaluation: ¬equal(X,Y) v P(X,Y) is satisfied outright
// whenever X != Y (the negated built-in is true), so only the diagonal
// substitutions survive, each as a unit constraint over P(x,x).
func TestDynamicLiteralPrunesOffDiagonal(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a", "b"})
	p := schema.Signature{Symbol: "P", Arity: 2}
	eq := schema.Signature{Symbol: "equal", Arity: 2}
	domains := map[schema.Signature]schema.ArgDomains{p: {"d", "d"}}

	mln := buildMLN(t,
		[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d, d}}},
		nil, nil, nil,
		map[string]*schema.ConstantsSet{"d": d}, domains)
	mln.Schema.DynamicPredicates = theory.DefaultBuiltins().Predicates

	clause, err := theory.NewClause(1.0, []theory.Literal{
		{Positive: false, Atom: theory.Atom{Predicate: eq, Args: []theory.Term{theory.Var("X"), theory.Var("Y")}}},
		{Positive: true, Atom: theory.Atom{Predicate: p, Args: []theory.Term{theory.Var("X"), theory.Var("Y")}}},
	})
	if err != nil {
		t.Fatalf("NewClause() error = %v", err)
	}

	dispatch, entries := collectDispatch()
	if _, err := Ground(0, clause, mln, roaring.New(), Flags{}, 1, dispatch); err != nil {
		t.Fatalf("Ground() error = %v", err)
	}
	got := entries()
	if len(got) != 2 {
		t.Fatalf("entries = %v, want 2 diagonal constraints", got)
	}
	idf := mln.Space.IdentityOf(p)
	wantAtoms := map[int]bool{
		idf.EncodeSymbols([]string{"a", "a"}): true,
		idf.EncodeSymbols([]string{"b", "b"}): true,
	}
	for _, e := range got {
		if len(e.Variables) != 1 || !wantAtoms[e.Variables[0]] {
			t.Fatalf("entry %v is not a diagonal P(x,x) unit", e)
		}
	}
}

// A predicate declared dynamic with no implementation means dynamics are
// disabled for this build: fatal before any substitution is emitted.
func TestUnsupportedDynamicIsFatal(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	p := schema.Signature{Symbol: "P", Arity: 1}
	eq := schema.Signature{Symbol: "equal", Arity: 2}
	domains := map[schema.Signature]schema.ArgDomains{p: {"d"}}

	mln := buildMLN(t,
		[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
		nil, nil, nil,
		map[string]*schema.ConstantsSet{"d": d}, domains)
	mln.Schema.DynamicPredicates = map[schema.Signature]theory.DynamicPredicate{eq: nil}

	clause, err := theory.NewClause(1.0, []theory.Literal{
		{Positive: false, Atom: theory.Atom{Predicate: eq, Args: []theory.Term{theory.Var("X"), theory.Var("X")}}},
		{Positive: true, Atom: theory.Atom{Predicate: p, Args: []theory.Term{theory.Var("X")}}},
	})
	if err != nil {
		t.Fatalf("NewClause() error = %v", err)
	}

	dispatch, entries := collectDispatch()
	if _, err := Ground(0, clause, mln, roaring.New(), Flags{}, 1, dispatch); !errors.Is(err, theory.ErrUnsupportedDynamic) {
		t.Fatalf("Ground() error = %v, want ErrUnsupportedDynamic", err)
	}
	if got := entries(); len(got) != 0 {
		t.Fatalf("entries = %v, want none (no partial results for a failing clause)", got)
	}
}
