// Package coordinator implements the Grounding Coordinator: the
// single-threaded state machine that drives the iterative reachability
// closure over a theory's clauses, dispatching each selected clause to a
// pool of grounder workers and folding their results back into the
// interesting-signature frontier until it stops growing, then runs the
// two-phase finalize handshake with the clique and atom registers.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"mlnground/internal/atomreg"
	"mlnground/internal/clique"
	"mlnground/internal/grounder"
	"mlnground/internal/logging"
	"mlnground/internal/schema"
	"mlnground/internal/theory"
)

// Config selects the shard counts and weight-rewriting flags for a build.
type Config struct {
	GrounderWorkers     int
	CliqueShards        int
	AtomRegShards       int
	Flags               grounder.Flags
	CreateDependencyMap bool
}

// Result is everything the coordinator hands back once grounding
// completes: the finished clique and atom-register state (consumed by
// the MRF builder) plus diagnostics.
type Result struct {
	BuildID     uuid.UUID
	Iterations  int
	Flags       grounder.Flags
	Cliques     map[int]clique.Entry
	DepMap      map[int]map[int]float64
	AtomsToClqs map[int][]int
	QueryAtoms  *roaring.Bitmap
	Unreachable []theory.UnreachableClause
}

// Run drives the full build for mln and returns its Result, or an error
// if any clause fails fatally (InvalidWeight, UnsupportedDynamic,
// ContradictoryHardConstraints) or the reachability closure yields zero
// atoms.
func Run(ctx context.Context, mln *theory.MLN, cfg Config) (Result, error) {
	log := logging.Get(logging.CategoryCoordinator)
	buildID := uuid.New()
	log.Infow("build started", "build_id", buildID, "clauses", len(mln.Clauses))

	atomShards := make([]*atomreg.Shard, cfg.AtomRegShards)
	for i := range atomShards {
		atomShards[i] = atomreg.NewShard(i)
	}
	registerAtom := func(atomID, cliqueShard, localCliqueID int) {
		atomShards[atomID%cfg.AtomRegShards].RegisterAtom(atomID, cliqueShard, localCliqueID)
	}
	registerQueryVar := func(atomID int) {
		atomShards[atomID%cfg.AtomRegShards].QueryVariable(atomID)
	}

	cliqueShards := make([]*clique.Shard, cfg.CliqueShards)
	for i := range cliqueShards {
		cliqueShards[i] = clique.NewShard(i, registerAtom, registerQueryVar, cfg.CreateDependencyMap)
	}

	remaining := buildWorklist(mln)
	interesting := querySignatureSet(mln)

	atomsDB := roaring.New()
	iterations := 0

	for {
		selected, deferred := selectReachable(remaining, interesting)
		if len(selected) == 0 {
			break
		}
		iterations++

		openSigs, err := groundIteration(ctx, selected, mln, atomsDB, cfg, cliqueShards)
		if err != nil {
			abort(cliqueShards, atomShards)
			return Result{}, err
		}

		grew := false
		for sig := range openSigs {
			if !interesting[sig] {
				interesting[sig] = true
				grew = true
			}
		}

		for _, s := range cliqueShards {
			s.IterationComplete()
		}
		nextAtomsDB := roaring.New()
		for _, s := range atomShards {
			ir := s.IterationComplete()
			nextAtomsDB.Or(ir.NewAtoms)
		}
		atomsDB.Or(nextAtomsDB)

		remaining = deferred
		if !grew && !anyNowSelected(remaining, interesting) {
			break
		}
	}

	for _, c := range remaining {
		log.Infow("clause unreachable from any query predicate", "clause_index", c.index)
	}

	finalizeResult, err := finalize(cliqueShards, atomShards, buildID)
	if err != nil {
		return Result{}, err
	}
	finalizeResult.Iterations = iterations
	finalizeResult.Flags = cfg.Flags
	for _, c := range remaining {
		finalizeResult.Unreachable = append(finalizeResult.Unreachable, theory.UnreachableClause{ClauseIndex: c.index})
	}

	if finalizeResult.QueryAtoms.GetCardinality() == 0 && len(finalizeResult.AtomsToClqs) == 0 {
		return Result{}, theory.ErrEmptyMRF
	}

	log.Infow("build complete", "build_id", buildID, "iterations", iterations, "cliques", len(finalizeResult.Cliques))
	return finalizeResult, nil
}

// indexedClause pairs a clause with its stable index in mln.Clauses,
// which is threaded through as CliqueEntry.ClauseIndex and surfaced in
// UnreachableClause diagnostics.
type indexedClause struct {
	index  int
	clause *theory.Clause
}

// buildWorklist seeds the remaining-clause set: every declared clause
// plus a synthetic zero-weight unit clause per query predicate, so a
// query atom appears in the MRF even when no real clause forces it.
func buildWorklist(mln *theory.MLN) []indexedClause {
	out := make([]indexedClause, 0, len(mln.Clauses)+len(mln.Space.QuerySignatures()))
	for i, c := range mln.Clauses {
		out = append(out, indexedClause{index: i, clause: c})
	}
	base := len(mln.Clauses)
	for i, sig := range mln.Space.QuerySignatures() {
		domains, _ := mln.DomainsFor(sig)
		args := make([]theory.Term, len(domains))
		for j := range domains {
			args[j] = theory.Var(fmt.Sprintf("Q%d", j))
		}
		lit := theory.Literal{Positive: true, Atom: theory.Atom{Predicate: sig, Args: args}}
		c, err := theory.NewClause(0, []theory.Literal{lit})
		if err != nil {
			continue // a zero weight is never NaN; unreachable in practice
		}
		out = append(out, indexedClause{index: base + i, clause: c})
	}
	return out
}

func querySignatureSet(mln *theory.MLN) map[schema.Signature]bool {
	set := make(map[schema.Signature]bool)
	for _, sig := range mln.Space.QuerySignatures() {
		set[sig] = true
	}
	return set
}

// selectReachable partitions remaining into clauses with at least one
// literal whose signature is in interesting (selected this iteration)
// and the rest (deferred for a later round).
func selectReachable(remaining []indexedClause, interesting map[schema.Signature]bool) (selected, deferred []indexedClause) {
	for _, ic := range remaining {
		hit := false
		for _, lit := range ic.clause.Literals {
			if interesting[lit.Atom.Predicate] {
				hit = true
				break
			}
		}
		if hit {
			selected = append(selected, ic)
		} else {
			deferred = append(deferred, ic)
		}
	}
	return selected, deferred
}

func anyNowSelected(remaining []indexedClause, interesting map[schema.Signature]bool) bool {
	sel, _ := selectReachable(remaining, interesting)
	return len(sel) > 0
}

// groundIteration grounds every selected clause on its own errgroup
// goroutine, at most cfg.GrounderWorkers at a time, unioning each
// worker's reported open-world signatures.
func groundIteration(ctx context.Context, selected []indexedClause, mln *theory.MLN, atomsDB *roaring.Bitmap, cfg Config, shards []*clique.Shard) (map[schema.Signature]bool, error) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(cfg.GrounderWorkers, 1))

	var mu sync.Mutex
	union := make(map[schema.Signature]bool)

	dispatch := func(shardIdx int, e clique.Entry) {
		shards[shardIdx%len(shards)].Submit(e)
	}

	for _, ic := range selected {
		ic := ic
		g.Go(func() error {
			res, err := grounder.Ground(ic.index, ic.clause, mln, atomsDB, cfg.Flags, len(shards), dispatch)
			if err != nil {
				return fmt.Errorf("coordinator: clause %d: %w", ic.index, err)
			}
			mu.Lock()
			for sig := range res.OpenWorldSignatures {
				union[sig] = true
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return union, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// abort drains and stops every shard after a fatal grounding error.
// Nothing is kept, but each shard still processes its mailbox through
// to its shutdown message so no goroutine outlives the build.
func abort(cliqueShards []*clique.Shard, atomShards []*atomreg.Shard) {
	for _, s := range cliqueShards {
		s.BeginFinalize()
		s.AssignStartID(0)
	}
	for _, s := range atomShards {
		s.Shutdown()
	}
}

// finalize runs the two-phase shutdown: clique shards renumber by a
// running global offset, then atom-register shards hand back their
// cumulative state.
func finalize(cliqueShards []*clique.Shard, atomShards []*atomreg.Shard, buildID uuid.UUID) (Result, error) {
	offset := 0
	offsets := make([]int, len(cliqueShards))
	cliques := make(map[int]clique.Entry)
	depMap := make(map[int]map[int]float64)
	var shutdownErr error
	for i, s := range cliqueShards {
		n := s.BeginFinalize()
		offsets[i] = offset
		fr := s.AssignStartID(offset)
		offset += n
		for id, e := range fr.Cliques {
			cliques[id] = e
		}
		for id, dm := range fr.DepMap {
			depMap[id] = dm
		}
		// Every shard finalizes (and drains its mailbox) regardless of a
		// sibling's contradiction; errors accumulate rather than short
		// circuit, so one shard's ErrContradictoryHardConstraints never
		// masks another's.
		shutdownErr = multierr.Append(shutdownErr, s.Err())
	}

	// Atom-register shards are shut down unconditionally, even after a
	// clique-shard contradiction: every shard must drain its mailbox and
	// emit its final summary per the shutdown contract, regardless of
	// whether the accumulated error will abort the build. Incidence refs
	// arrive shard-local and are resolved here against the same offsets
	// the clique shards renumbered by.
	atomsToClqs := make(map[int][]int)
	queryAtoms := roaring.New()
	for _, s := range atomShards {
		fr := s.Shutdown()
		queryAtoms.Or(fr.QueryAtoms)
		for atomID, refs := range fr.Incidence {
			for _, ref := range refs {
				atomsToClqs[atomID] = append(atomsToClqs[atomID], ref.Local+offsets[ref.Shard])
			}
		}
		// Atoms with no clique incidence (e.g. bare query atoms) must
		// still surface as MRF GroundAtom candidates.
		it := fr.Atoms.Iterator()
		for it.HasNext() {
			atomID := int(it.Next())
			if _, ok := atomsToClqs[atomID]; !ok {
				atomsToClqs[atomID] = nil
			}
		}
	}

	if shutdownErr != nil {
		return Result{}, shutdownErr
	}

	return Result{
		BuildID:     buildID,
		Cliques:     cliques,
		DepMap:      depMap,
		AtomsToClqs: atomsToClqs,
		QueryAtoms:  queryAtoms,
	}, nil
}
