package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mlnground/internal/cache"
	"mlnground/internal/config"
	"mlnground/internal/coordinator"
	"mlnground/internal/logging"
	"mlnground/internal/mrf"
	"mlnground/internal/theory"
)

var (
	fixturePath          string
	cachePath            string
	noNegWeights         bool
	eliminateNegatedUnit bool
	createDependencyMap  bool
	parallelismRatio     float64
	showAtoms            bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Ground a theory fixture into a Markov Random Field",
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "Path to the YAML theory fixture (required)")
	buildCmd.Flags().StringVar(&cachePath, "cache", "", "Path to a sqlite build cache (skipped if empty)")
	buildCmd.Flags().BoolVar(&noNegWeights, "no-neg-weights", false, "Rewrite negative-weight clauses into positive-weight equivalents")
	buildCmd.Flags().BoolVar(&eliminateNegatedUnit, "eliminate-negated-unit", false, "Rewrite negated unit clauses by flipping weight sign")
	buildCmd.Flags().BoolVar(&createDependencyMap, "dep-map", false, "Include the clause dependency map in the summary")
	buildCmd.Flags().Float64Var(&parallelismRatio, "parallelism-ratio", 1.0, "Shard count multiplier over CPU count")
	buildCmd.Flags().BoolVar(&showAtoms, "show-atoms", false, "Print every ground atom, not just the summary counts")
	buildCmd.MarkFlagRequired("fixture")
}

func runBuild(cmd *cobra.Command, args []string) error {
	log := logging.Get(logging.CategoryCLI)

	fx, err := config.LoadFixture(fixturePath)
	if err != nil {
		return err
	}

	buildCfg := config.BuildConfig{
		NoNegWeights:         noNegWeights,
		EliminateNegatedUnit: eliminateNegatedUnit,
		CreateDependencyMap:  createDependencyMap,
		ParallelismRatio:     parallelismRatio,
	}

	var bc *cache.Cache
	var fingerprint string
	if cachePath != "" {
		bc, err = cache.Open(cachePath)
		if err != nil {
			return err
		}
		defer bc.Close()

		fingerprint = cache.Fingerprint(fx, buildCfg)
		if hit, ok, err := bc.Get(fingerprint); err != nil {
			return err
		} else if ok {
			log.Infow("cache hit, skipping grounding", "fingerprint", fingerprint)
			printSummary(hit)
			return nil
		}
	}

	mln, err := config.Assemble(fx, theory.DefaultBuiltins())
	if err != nil {
		return err
	}

	result, err := coordinator.Run(context.Background(), mln, buildCfg.CoordinatorConfig())
	if err != nil {
		return fmt.Errorf("grounding failed: %w", err)
	}
	for _, d := range result.Unreachable {
		log.Warnw("clause unreachable from any query predicate", "clause_index", d.ClauseIndex)
	}

	m, err := mrf.Build(mln, result)
	if err != nil {
		return fmt.Errorf("MRF assembly failed: %w", err)
	}

	if bc != nil {
		if err := bc.Put(fingerprint, m); err != nil {
			return err
		}
	}

	printSummary(m)
	return nil
}

func printSummary(m *mrf.MRF) {
	fmt.Printf("build %s: %d constraints, %d atoms, H=%.4f\n", m.BuildID, len(m.Constraints), len(m.Atoms), m.HardBound)
	if createDependencyMap {
		printDepMap(m)
	}
	if !showAtoms {
		return
	}
	ids := make([]int, 0, len(m.Atoms))
	for id := range m.Atoms {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		a := m.Atoms[id]
		fmt.Printf("  atom %d: query=%v cliques=%v\n", a.AtomID, a.IsQuery, a.Cliques)
	}
}

// printDepMap prints the clause dependency map (clique -> clause ->
// signed frequency) when --dep-map asked for it to be tracked; empty
// when the build ran with CreateDependencyMap off.
func printDepMap(m *mrf.MRF) {
	cliqueIDs := make([]int, 0, len(m.DepMap))
	for id := range m.DepMap {
		cliqueIDs = append(cliqueIDs, id)
	}
	sort.Ints(cliqueIDs)
	for _, id := range cliqueIDs {
		byClause := m.DepMap[id]
		clauseIdxs := make([]int, 0, len(byClause))
		for idx := range byClause {
			clauseIdxs = append(clauseIdxs, idx)
		}
		sort.Ints(clauseIdxs)
		fmt.Printf("  clique %d deps:", id)
		for _, idx := range clauseIdxs {
			fmt.Printf(" clause[%d]=%.4f", idx, byClause[idx])
		}
		fmt.Println()
	}
}
