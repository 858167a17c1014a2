package clique

import (
	"fmt"
	"math"

	"mlnground/internal/logging"
	"mlnground/internal/theory"
)

// RegisterAtomFunc is how a shard reaches the atom-register shard that
// owns a given atomID. cliqueShard identifies the sending shard, since
// localCliqueID is only unique within it; the coordinator resolves the
// pair to a global cliqueID once finalize assigns per-shard offsets.
// The coordinator wires this at construction time once the
// atom-register shard count is known; it deliberately leaves clique
// ignorant of atomreg's concrete type to avoid an import cycle
// (atomreg never needs to know about clique.Entry).
type RegisterAtomFunc func(atomID, cliqueShard, localCliqueID int)

// QueryVariableFunc is how a shard forwards a query-atom registration
// (a zero-weight unit clause carries no clique, only an atomID) to the
// atom-register shard that owns it.
type QueryVariableFunc func(atomID int)

type phase int

const (
	phaseCollecting phase = iota
	phaseFinalizing
	phaseDone
)

// submitMsg carries one grounder-emitted entry into the shard's mailbox.
type submitMsg struct {
	entry Entry
}

// iterationMsg asks the shard to publish RegisterAtom for every clique it
// currently holds, then acknowledge on done.
type iterationMsg struct {
	done chan struct{}
}

// finalizeMsg transitions the shard into the finalize phase; the shard
// replies with its local clique count so the coordinator can compute a
// global StartID offset for every shard.
type finalizeMsg struct {
	reply chan int
}

// startIDMsg assigns this shard's global ID offset; the shard then
// renumbers its local cliques and replies with the finished map.
type startIDMsg struct {
	offset int
	reply  chan FinalizeResult
}

// FinalizeResult is what a shard hands back once it has renumbered its
// local cliques by the coordinator-assigned offset.
type FinalizeResult struct {
	Cliques map[int]Entry           // global cliqueID -> Entry
	DepMap  map[int]map[int]float64 // global cliqueID -> clauseIndex -> signed frequency
}

// Shard is one partition of the clique register: a single goroutine
// owning its own hash-chain map, processed strictly in mailbox order so
// no locking is needed around its state.
type Shard struct {
	index      int
	registerFn RegisterAtomFunc
	queryFn    QueryVariableFunc
	trackDeps  bool

	inbox chan any

	hashChains map[int][]int // hashKey -> local cliqueIDs
	byID       map[int]Entry
	depMap     map[int]map[int]float64 // cliqueID -> clauseIndex -> signed freq
	nextLocal  int
	phase      phase

	contradiction error // set once, sticky, surfaced at finalize
}

// NewShard starts a clique shard goroutine and returns a handle to it.
// registerFn and queryFn are how it reaches the atom-register partition
// owning a given atomID; both are called synchronously from the shard's
// own goroutine, so callers must make them safe for concurrent use
// across shards (a thin dispatch-by-index wrapper is typical). trackDeps
// gates the per-clause dependency-map bookkeeping; when false, addDep is
// a no-op and
// AssignStartID's FinalizeResult.DepMap comes back empty, skipping the
// per-merge map allocation entirely for builds that never asked for it.
func NewShard(index int, registerFn RegisterAtomFunc, queryFn QueryVariableFunc, trackDeps bool) *Shard {
	s := &Shard{
		index:      index,
		registerFn: registerFn,
		queryFn:    queryFn,
		trackDeps:  trackDeps,
		inbox:      make(chan any, 4096),
		hashChains: make(map[int][]int),
		byID:       make(map[int]Entry),
		depMap:     make(map[int]map[int]float64),
		nextLocal:  1,
	}
	go s.run()
	return s
}

// Submit enqueues a grounder-emitted entry. Submit never blocks the
// caller beyond ordinary channel backpressure: a full mailbox is the
// mechanism by which the coordinator's phase boundary throttles
// grounder workers.
func (s *Shard) Submit(e Entry) {
	s.inbox <- submitMsg{entry: e}
}

// IterationComplete blocks until the shard has published RegisterAtom
// for every clique it currently holds.
func (s *Shard) IterationComplete() {
	done := make(chan struct{})
	s.inbox <- iterationMsg{done: done}
	<-done
}

// BeginFinalize transitions the shard out of the collecting phase and
// returns its local clique count.
func (s *Shard) BeginFinalize() int {
	reply := make(chan int, 1)
	s.inbox <- finalizeMsg{reply: reply}
	return <-reply
}

// AssignStartID gives the shard its global offset and returns the
// renumbered clique map plus dependency map; it also stops the shard's
// goroutine.
func (s *Shard) AssignStartID(offset int) FinalizeResult {
	reply := make(chan FinalizeResult, 1)
	s.inbox <- startIDMsg{offset: offset, reply: reply}
	return <-reply
}

// Err returns a sticky ErrContradictoryHardConstraints if this shard
// ever merged a +Inf entry with a -Inf entry for the same ground
// literals.
func (s *Shard) Err() error { return s.contradiction }

func (s *Shard) run() {
	log := logging.Get(logging.CategoryClique)
	for m := range s.inbox {
		switch msg := m.(type) {
		case submitMsg:
			if s.phase != phaseCollecting {
				continue // late entries after finalize begins are dropped
			}
			s.submit(msg.entry)
		case iterationMsg:
			s.publishIncidence()
			close(msg.done)
		case finalizeMsg:
			s.phase = phaseFinalizing
			msg.reply <- len(s.byID)
		case startIDMsg:
			result := s.renumber(msg.offset)
			msg.reply <- result
			s.phase = phaseDone
			log.Debugw("clique shard finalized", "shard", s.index, "cliques", len(result.Cliques))
			return
		}
	}
}

func (s *Shard) submit(e Entry) {
	if e.Weight == 0 {
		if len(e.Variables) == 1 {
			atomID := e.Variables[0]
			if atomID < 0 {
				atomID = -atomID
			}
			s.queryFn(atomID)
		}
		return
	}
	vars := SortVariables(append([]int(nil), e.Variables...))
	key := e.HashKey
	if key == 0 {
		key = HashKey(vars)
	}
	for _, id := range s.hashChains[key] {
		existing := s.byID[id]
		if sameLiterals(existing.Variables, vars) {
			s.merge(id, existing, e)
			return
		}
	}
	id := s.nextLocal
	s.nextLocal++
	e.HashKey = key
	e.Variables = vars
	s.byID[id] = e
	s.hashChains[key] = append(s.hashChains[key], id)
	s.addDep(id, e.ClauseIndex, e.Freq)
}

func (s *Shard) merge(id int, existing, incoming Entry) {
	switch {
	case math.IsInf(existing.Weight, 1) && math.IsInf(incoming.Weight, -1),
		math.IsInf(existing.Weight, -1) && math.IsInf(incoming.Weight, 1):
		if s.contradiction == nil {
			s.contradiction = fmt.Errorf("%w: clause %d vs %d over %v", theory.ErrContradictoryHardConstraints, existing.ClauseIndex, incoming.ClauseIndex, existing.Variables)
		}
		return
	case math.IsInf(existing.Weight, 1) || math.IsInf(incoming.Weight, 1):
		existing.Weight = math.Inf(1)
	case math.IsInf(existing.Weight, -1) || math.IsInf(incoming.Weight, -1):
		existing.Weight = math.Inf(-1)
	default:
		existing.Weight += incoming.Weight
	}
	s.byID[id] = existing
	s.addDep(id, incoming.ClauseIndex, incoming.Freq)
}

func (s *Shard) addDep(id, clauseIndex int, freq int) {
	if !s.trackDeps {
		return
	}
	m, ok := s.depMap[id]
	if !ok {
		m = make(map[int]float64)
		s.depMap[id] = m
	}
	m[clauseIndex] += float64(freq)
}

// publishIncidence sends RegisterAtom for every ground literal of every
// clique this shard currently holds. Re-sent each iteration (not just
// once per clique) since weights and dependency counts can still change
// before finalize. The atom register adds the atom to a set but appends
// every ref to its incidence list, duplicates included; mrf.Build
// removes the repeats when it assembles GroundAtom.Cliques.
func (s *Shard) publishIncidence() {
	for id, e := range s.byID {
		for _, signed := range e.Variables {
			atomID := signed
			if atomID < 0 {
				atomID = -atomID
			}
			s.registerFn(atomID, s.index, id)
		}
	}
}

func (s *Shard) renumber(offset int) FinalizeResult {
	cliques := make(map[int]Entry, len(s.byID))
	depMap := make(map[int]map[int]float64, len(s.depMap))
	for localID, e := range s.byID {
		globalID := localID + offset
		cliques[globalID] = e
		if dm, ok := s.depMap[localID]; ok {
			depMap[globalID] = dm
		}
	}
	return FinalizeResult{Cliques: cliques, DepMap: depMap}
}
