package coordinator

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"mlnground/internal/evidence"
	"mlnground/internal/grounder"
	"mlnground/internal/predspace"
	"mlnground/internal/schema"
	"mlnground/internal/theory"
)

// buildMLN assembles a minimal MLN fixture for one scenario. factsFn
// receives the already-built predicate space so a test can compute
// atomIDs (which depend on the space) before adding facts to the
// evidence builder.
func buildMLN(t *testing.T, query, hidden, evid []predspace.Declaration, factsFn func(sp *predspace.Space, b *evidence.Builder), constants map[string]*schema.ConstantsSet, predDomains map[schema.Signature]schema.ArgDomains) *theory.MLN {
	t.Helper()
	sp, err := predspace.Build(query, hidden, evid)
	require.NoError(t, err)
	b := evidence.NewBuilder(sp)
	if factsFn != nil {
		factsFn(sp, b)
	}
	db, err := b.Build()
	require.NoError(t, err)
	return &theory.MLN{
		Schema:    &theory.Schema{PredicateDomains: predDomains},
		Constants: constants,
		Space:     sp,
		Evidence:  db,
	}
}

func groundAtom(sig schema.Signature, args ...string) theory.Literal {
	a := make([]theory.Term, len(args))
	for i, s := range args {
		a[i] = theory.MustName(s)
	}
	return theory.Literal{Positive: true, Atom: theory.Atom{Predicate: sig, Args: a}}
}

func negate(l theory.Literal) theory.Literal {
	l.Positive = !l.Positive
	return l
}

// S1: tautology pruning. Evidence P(a) = True; clause P(a) v Q(a) weight
// 1.5 with Q query. The clause is satisfied by evidence under its only
// substitution (it is already ground), so zero constraints are emitted,
// yet Q(a)'s atom still surfaces because of the zero-weight unit clause
// the coordinator injects for every query predicate.
func TestScenario_S1_TautologyPruning(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	p := schema.Signature{Symbol: "P", Arity: 1}
	q := schema.Signature{Symbol: "Q", Arity: 1}

	mln := buildMLN(t,
		[]predspace.Declaration{{Signature: q, Domains: []*schema.ConstantsSet{d}}},
		nil,
		[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
		func(sp *predspace.Space, b *evidence.Builder) {
			atomP := sp.IdentityOf(p).EncodeSymbols([]string{"a"})
			b.Add(p, evidence.Fact{AtomID: atomP, Positive: true, Probability: math.NaN()})
		},
		map[string]*schema.ConstantsSet{"d": d},
		map[schema.Signature]schema.ArgDomains{p: {"d"}, q: {"d"}},
	)

	c0, err := theory.NewClause(1.5, []theory.Literal{groundAtom(p, "a"), groundAtom(q, "a")})
	require.NoError(t, err)
	mln.Clauses = []*theory.Clause{c0}

	result, err := Run(context.Background(), mln, Config{GrounderWorkers: 2, CliqueShards: 2, AtomRegShards: 2})
	require.NoError(t, err)

	require.Empty(t, result.Cliques, "evidence-satisfied clause must emit zero constraints")

	atomQ := mln.Space.IdentityOf(q).EncodeSymbols([]string{"a"})
	require.True(t, result.QueryAtoms.Contains(uint32(atomQ)), "query atom must exist even with no real constraint forcing it")
}

// S2: Unknown-literal retention. Evidence P(a) = False satisfies
// ¬P(a) v Q(a) (weight 2.0) outright: zero constraints. With P(a)
// Unknown instead, the clause survives as one constraint over the
// sorted signed-atomID vector [-idP(a), +idQ(a)]: the negated literal
// keeps its sign in the stored vector.
func TestScenario_S2_UnknownLiteralRetention(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	p := schema.Signature{Symbol: "P", Arity: 1}
	q := schema.Signature{Symbol: "Q", Arity: 1}
	predDomains := map[schema.Signature]schema.ArgDomains{p: {"d"}, q: {"d"}}
	constants := map[string]*schema.ConstantsSet{"d": d}

	newClause := func() *theory.Clause {
		c, err := theory.NewClause(2.0, []theory.Literal{negate(groundAtom(p, "a")), groundAtom(q, "a")})
		require.NoError(t, err)
		return c
	}

	t.Run("false evidence satisfies the clause", func(t *testing.T) {
		mln := buildMLN(t,
			[]predspace.Declaration{{Signature: q, Domains: []*schema.ConstantsSet{d}}},
			nil,
			[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
			func(sp *predspace.Space, b *evidence.Builder) {
				atomP := sp.IdentityOf(p).EncodeSymbols([]string{"a"})
				b.Add(p, evidence.Fact{AtomID: atomP, Positive: false, Probability: math.NaN()})
			},
			constants, predDomains,
		)
		mln.Clauses = []*theory.Clause{newClause()}

		result, err := Run(context.Background(), mln, Config{GrounderWorkers: 2, CliqueShards: 2, AtomRegShards: 2})
		require.NoError(t, err)
		require.Empty(t, result.Cliques)
	})

	t.Run("unknown evidence keeps the constraint", func(t *testing.T) {
		mln := buildMLN(t,
			[]predspace.Declaration{{Signature: q, Domains: []*schema.ConstantsSet{d}}},
			[]predspace.Declaration{{Signature: p, Domains: []*schema.ConstantsSet{d}}},
			nil, // P is open-world here so it defaults to Unknown with no facts added
			nil,
			constants, predDomains,
		)
		mln.Clauses = []*theory.Clause{newClause()}

		result, err := Run(context.Background(), mln, Config{GrounderWorkers: 2, CliqueShards: 2, AtomRegShards: 2})
		require.NoError(t, err)
		require.Len(t, result.Cliques, 1)

		atomP := mln.Space.IdentityOf(p).EncodeSymbols([]string{"a"})
		atomQ := mln.Space.IdentityOf(q).EncodeSymbols([]string{"a"})
		// -atomP sorts before +atomQ: both IDs are positive, so the
		// negated literal's signed form is always the smaller.
		want := []int{-atomP, atomQ}

		var got []int
		for _, e := range result.Cliques {
			got = e.Variables
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("surviving constraint literals mismatch (-want +got):\n%s", diff)
		}
	})
}

// S3: negative-weight rewrite. noNegWeights splits -3.0 A v B v C (A, B,
// C all Unknown) into three unit constraints of weight 1.0 each, summing
// back to the original magnitude.
func TestScenario_S3_NegativeWeightRewrite(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	a := schema.Signature{Symbol: "A", Arity: 0}
	b := schema.Signature{Symbol: "B", Arity: 0}
	c := schema.Signature{Symbol: "C", Arity: 0}

	mln := buildMLN(t,
		[]predspace.Declaration{{Signature: a, Domains: nil}},
		[]predspace.Declaration{{Signature: b, Domains: nil}, {Signature: c, Domains: nil}},
		nil, nil,
		map[string]*schema.ConstantsSet{"d": d},
		map[schema.Signature]schema.ArgDomains{},
	)

	clause, err := theory.NewClause(-3.0, []theory.Literal{
		{Positive: true, Atom: theory.Atom{Predicate: a}},
		{Positive: true, Atom: theory.Atom{Predicate: b}},
		{Positive: true, Atom: theory.Atom{Predicate: c}},
	})
	require.NoError(t, err)
	mln.Clauses = []*theory.Clause{clause}

	result, err := Run(context.Background(), mln, Config{
		GrounderWorkers: 2, CliqueShards: 2, AtomRegShards: 2,
		Flags:               grounder.Flags{NoNegWeights: true},
		CreateDependencyMap: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Cliques, 3, "one unit constraint per surviving literal")

	sum := 0.0
	for id, e := range result.Cliques {
		require.Len(t, e.Variables, 1)
		require.Equal(t, 1.0, e.Weight)
		sum += e.Weight
		// noNegWeights rewrites the single source clause (index 0) into
		// one unit constraint per literal; the dependency map still
		// attributes each to clause 0 with the original negative sign.
		require.Equal(t, -1.0, result.DepMap[id][0], "dep map must retain the pre-rewrite negative sign")
	}
	require.InDelta(t, 3.0, sum, 1e-9, "sum of emitted weights must equal the original magnitude")
}

// S4: merging toward +Inf. Two emissions over the same literal set, one
// +Inf and one finite, converge to a single +Inf constraint. A third,
// independent emission of the same literal set at -Inf is contradictory
// and fails the whole build.
func TestScenario_S4_MergeTowardHardConstraint(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a"})
	x := schema.Signature{Symbol: "X", Arity: 1}
	y := schema.Signature{Symbol: "Y", Arity: 1}
	predDomains := map[schema.Signature]schema.ArgDomains{x: {"d"}, y: {"d"}}
	constants := map[string]*schema.ConstantsSet{"d": d}

	t.Run("plus inf absorbs a finite weight", func(t *testing.T) {
		mln := buildMLN(t,
			[]predspace.Declaration{{Signature: x, Domains: []*schema.ConstantsSet{d}}},
			[]predspace.Declaration{{Signature: y, Domains: []*schema.ConstantsSet{d}}},
			nil, nil, constants, predDomains,
		)
		hard, err := theory.NewClause(math.Inf(1), []theory.Literal{groundAtom(x, "a"), groundAtom(y, "a")})
		require.NoError(t, err)
		soft, err := theory.NewClause(5.0, []theory.Literal{groundAtom(x, "a"), groundAtom(y, "a")})
		require.NoError(t, err)
		mln.Clauses = []*theory.Clause{hard, soft}

		result, err := Run(context.Background(), mln, Config{GrounderWorkers: 2, CliqueShards: 2, AtomRegShards: 2})
		require.NoError(t, err)
		require.Len(t, result.Cliques, 1)
		for _, e := range result.Cliques {
			require.True(t, math.IsInf(e.Weight, 1))
		}
	})

	t.Run("minus inf over the same literals is contradictory", func(t *testing.T) {
		mln := buildMLN(t,
			[]predspace.Declaration{{Signature: x, Domains: []*schema.ConstantsSet{d}}},
			[]predspace.Declaration{{Signature: y, Domains: []*schema.ConstantsSet{d}}},
			nil, nil, constants, predDomains,
		)
		plus, err := theory.NewClause(math.Inf(1), []theory.Literal{groundAtom(x, "a"), groundAtom(y, "a")})
		require.NoError(t, err)
		minus, err := theory.NewClause(math.Inf(-1), []theory.Literal{groundAtom(x, "a"), groundAtom(y, "a")})
		require.NoError(t, err)
		mln.Clauses = []*theory.Clause{plus, minus}

		_, err = Run(context.Background(), mln, Config{GrounderWorkers: 2, CliqueShards: 2, AtomRegShards: 2})
		require.ErrorIs(t, err, theory.ErrContradictoryHardConstraints)
	})
}

// S6: duplicate convergence. Friend(X,Y) v Friend(Y,X) over a
// two-element domain produces the identical sorted literal vector
// {Friend(a,b), Friend(b,a)} from both the (a,b) and (b,a) substitution,
// which must converge to a single clique with weight = 2 x base and
// freq = 2.
func TestScenario_S6_DuplicateConvergence(t *testing.T) {
	d := schema.NewConstantsSet([]string{"a", "b"})
	friend := schema.Signature{Symbol: "Friend", Arity: 2}

	mln := buildMLN(t,
		[]predspace.Declaration{{Signature: friend, Domains: []*schema.ConstantsSet{d, d}}},
		nil, nil, nil,
		map[string]*schema.ConstantsSet{"d": d},
		map[schema.Signature]schema.ArgDomains{friend: {"d", "d"}},
	)

	xy := theory.Literal{Positive: true, Atom: theory.Atom{Predicate: friend, Args: []theory.Term{theory.Var("X"), theory.Var("Y")}}}
	yx := theory.Literal{Positive: true, Atom: theory.Atom{Predicate: friend, Args: []theory.Term{theory.Var("Y"), theory.Var("X")}}}
	clause, err := theory.NewClause(2.0, []theory.Literal{xy, yx})
	require.NoError(t, err)
	mln.Clauses = []*theory.Clause{clause}

	result, err := Run(context.Background(), mln, Config{
		GrounderWorkers: 2, CliqueShards: 2, AtomRegShards: 2,
		CreateDependencyMap: true,
	})
	require.NoError(t, err)

	idf := mln.Space.IdentityOf(friend)
	ab := idf.EncodeSymbols([]string{"a", "b"})
	ba := idf.EncodeSymbols([]string{"b", "a"})
	want := []int{ab, ba}
	if ba < ab {
		want = []int{ba, ab}
	}

	var found *int
	for id, e := range result.Cliques {
		if cmp.Diff(want, e.Variables) == "" {
			localID := id
			found = &localID
			require.Equal(t, 4.0, e.Weight, "accumulated weight must be 2 substitutions x base weight 2.0")
			require.InDelta(t, 2.0, result.DepMap[id][0], 1e-9, "dependency freq must count both converging substitutions")
		}
	}
	require.NotNil(t, found, "expected a converged clique over %v, got %v", want, result.Cliques)
}
