// Package config holds the declarative theory fixture format consumed by
// the CLI and the build-time flags that select the grounder's
// weight-rewriting behavior. Loading a fixture from YAML is config/fixture
// loading, not textual first-order-theory parsing; a fixture is already a
// literal, struct-shaped description of an MLN, not free-form formula
// syntax.
package config

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"mlnground/internal/coordinator"
	"mlnground/internal/evidence"
	"mlnground/internal/grounder"
	"mlnground/internal/predspace"
	"mlnground/internal/schema"
	"mlnground/internal/theory"
)

// BuildConfig selects a build's weight-rewriting and parallelism knobs.
// Its zero value is not the default; use DefaultBuildConfig.
type BuildConfig struct {
	NoNegWeights         bool    `yaml:"no_neg_weights"`
	EliminateNegatedUnit bool    `yaml:"eliminate_negated_unit"`
	CreateDependencyMap  bool    `yaml:"create_dependency_map"`
	ParallelismRatio     float64 `yaml:"parallelism_ratio"`
}

// DefaultBuildConfig returns the conservative defaults: no weight rewriting,
// no dependency tracking, one shard set per CPU (parallelism ratio 1.0).
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		NoNegWeights:         false,
		EliminateNegatedUnit: false,
		CreateDependencyMap:  false,
		ParallelismRatio:     1.0,
	}
}

// ShardCount resolves N_shards = max(parallelismRatio * cpu_count,
// cpu_count) for the current process.
func (c BuildConfig) ShardCount() int {
	cpu := runtime.NumCPU()
	n := int(c.ParallelismRatio * float64(cpu))
	if n < cpu {
		n = cpu
	}
	if n < 1 {
		n = 1
	}
	return n
}

// CoordinatorConfig translates a BuildConfig into the coordinator's shard
// and flag selection, using the same N for every shard type.
func (c BuildConfig) CoordinatorConfig() coordinator.Config {
	n := c.ShardCount()
	return coordinator.Config{
		GrounderWorkers: n,
		CliqueShards:    n,
		AtomRegShards:   n,
		Flags: grounder.Flags{
			NoNegWeights:         c.NoNegWeights,
			EliminateNegatedUnit: c.EliminateNegatedUnit,
		},
		CreateDependencyMap: c.CreateDependencyMap,
	}
}

// Fixture is the declarative theory the CLI loads from YAML: domains,
// predicate roles, weighted clauses, and evidence facts, literal-for-literal
// against theory.MLN's fields. It is the stable on-disk shape a caller
// supplies in place of textual theory/evidence parsing.
type Fixture struct {
	Domains    map[string][]string `yaml:"domains"`
	Predicates []PredicateDecl     `yaml:"predicates"`
	Clauses    []ClauseDecl        `yaml:"clauses"`
	Evidence   []FactDecl          `yaml:"evidence"`
}

// PredicateDecl declares one predicate: its argument domains (by domain
// name) and its role in the query/hidden/evidence partition.
type PredicateDecl struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
	Role    string   `yaml:"role"` // "query" | "hidden" | "evidence"
}

// LiteralDecl is one literal of a clause: a predicate applied to a term
// list, each term either a bound variable (an identifier starting with an
// upper-case letter, mangle's own convention) or a constant symbol.
type LiteralDecl struct {
	Predicate string   `yaml:"predicate"`
	Negated   bool     `yaml:"negated"`
	Args      []string `yaml:"args"`
}

// ClauseDecl is one weighted clause: +Inf is spelled "Inf" or "+Inf" in
// YAML (math.Inf(1) has no literal YAML representation), matching the
// convention LoMRF-style fixtures use for hard constraints.
type ClauseDecl struct {
	Weight   string        `yaml:"weight"`
	Literals []LiteralDecl `yaml:"literals"`
}

// FactDecl is one raw evidence assertion.
type FactDecl struct {
	Predicate   string   `yaml:"predicate"`
	Args        []string `yaml:"args"`
	Value       string   `yaml:"value"` // "true" | "false" | "unknown"
	Probability *float64 `yaml:"probability,omitempty"`
}

// LoadFixture reads and parses a Fixture from path.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read fixture %s: %w", path, err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("config: parse fixture %s: %w", path, err)
	}
	return &fx, nil
}

// isVariable reports whether name denotes a clause variable under
// mangle's own convention: an identifier whose first rune is upper-case.
func isVariable(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

// Assemble builds a theory.MLN from a parsed Fixture: constant domains,
// the predicate-role partition and its identity functions, the weighted
// clause set, and the evidence DB. builtins supplies the dynamic
// predicate/function table (equality, ordering, and the like); callers
// with no need for dynamics may pass an empty theory.BuiltinSet.
func Assemble(fx *Fixture, builtins theory.BuiltinSet) (*theory.MLN, error) {
	constants := make(map[string]*schema.ConstantsSet, len(fx.Domains))
	for name, syms := range fx.Domains {
		constants[name] = schema.NewConstantsSet(syms)
	}

	predicateDomains := make(map[schema.Signature]schema.ArgDomains)
	var query, hidden, evid []predspace.Declaration
	for _, pd := range fx.Predicates {
		sig := schema.Signature{Symbol: pd.Name, Arity: len(pd.Domains)}
		predicateDomains[sig] = append(schema.ArgDomains(nil), pd.Domains...)

		domains := make([]*schema.ConstantsSet, len(pd.Domains))
		for i, dn := range pd.Domains {
			cs, ok := constants[dn]
			if !ok {
				return nil, fmt.Errorf("config: predicate %s references undeclared domain %q", sig, dn)
			}
			domains[i] = cs
		}
		decl := predspace.Declaration{Signature: sig, Domains: domains}

		switch pd.Role {
		case "query":
			query = append(query, decl)
		case "hidden":
			hidden = append(hidden, decl)
		case "evidence":
			evid = append(evid, decl)
		default:
			return nil, fmt.Errorf("config: predicate %s has unknown role %q", sig, pd.Role)
		}
	}

	space, err := predspace.Build(query, hidden, evid)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	sch := &theory.Schema{
		PredicateDomains:  predicateDomains,
		FunctionDomains:   builtins.FunctionDomains,
		DynamicPredicates: builtins.Predicates,
		DynamicFunctions:  builtins.Functions,
	}

	clauses := make([]*theory.Clause, 0, len(fx.Clauses))
	for i, cd := range fx.Clauses {
		w, err := parseWeight(cd.Weight)
		if err != nil {
			return nil, fmt.Errorf("config: clause %d: %w", i, err)
		}
		lits := make([]theory.Literal, 0, len(cd.Literals))
		for _, ld := range cd.Literals {
			sig := schema.Signature{Symbol: ld.Predicate, Arity: len(ld.Args)}
			args := make([]theory.Term, len(ld.Args))
			for j, a := range ld.Args {
				if isVariable(a) {
					args[j] = theory.Var(a)
				} else {
					args[j] = theory.MustName(a)
				}
			}
			lits = append(lits, theory.Literal{Positive: !ld.Negated, Atom: theory.Atom{Predicate: sig, Args: args}})
		}
		c, err := theory.NewClause(w, lits)
		if err != nil {
			return nil, fmt.Errorf("config: clause %d: %w", i, err)
		}
		clauses = append(clauses, c)
	}

	builder := evidence.NewBuilder(space)
	for i, fd := range fx.Evidence {
		sig := schema.Signature{Symbol: fd.Predicate, Arity: len(fd.Args)}
		idf := space.IdentityOf(sig)
		if idf == nil {
			return nil, fmt.Errorf("config: evidence fact %d references undeclared predicate %s", i, sig)
		}
		atomID := idf.EncodeSymbols(fd.Args)
		if atomID == 0 {
			return nil, fmt.Errorf("config: evidence fact %d: args %v not in %s's domain", i, fd.Args, sig)
		}
		f := evidence.Fact{AtomID: atomID}
		f.Probability = probabilityOrNaN(fd.Probability)
		switch fd.Value {
		case "true":
			f.Positive = true
		case "false":
			f.Positive = false
		case "unknown":
			f.Unknown = true
		default:
			return nil, fmt.Errorf("config: evidence fact %d has unknown value %q", i, fd.Value)
		}
		builder.Add(sig, f)
	}
	db, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &theory.MLN{
		Schema:    sch,
		Constants: constants,
		Clauses:   clauses,
		Space:     space,
		Evidence:  db,
	}, nil
}

func parseWeight(s string) (float64, error) {
	switch s {
	case "Inf", "+Inf", "inf", "+inf":
		return math.Inf(1), nil
	case "-Inf", "-inf":
		return math.Inf(-1), nil
	}
	var w float64
	if _, err := fmt.Sscanf(s, "%g", &w); err != nil {
		return 0, fmt.Errorf("weight %q is not a number", s)
	}
	return w, nil
}

func probabilityOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
