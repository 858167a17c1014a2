// Package atomreg implements the atom register: a sharded,
// actor-style accumulator of the set of ground atoms reached so far,
// partitioned by atomID so each shard owns a disjoint slice of atom
// space and needs no locking.
package atomreg

import (
	"github.com/RoaringBitmap/roaring/v2"

	"mlnground/internal/logging"
)

type phase int

const (
	phaseCollecting phase = iota
	phaseDone
)

type queryVarMsg struct {
	atomID int
}

type registerAtomMsg struct {
	atomID int
	ref    CliqueRef
}

// CliqueRef identifies a clique by its owning clique-register shard and
// that shard's local cliqueID. Local IDs are only unique per shard; the
// coordinator resolves refs to global cliqueIDs once finalize assigns
// each clique shard its start-ID offset.
type CliqueRef struct {
	Shard int
	Local int
}

type iterationMsg struct {
	reply chan IterationResult
}

type shutdownMsg struct {
	reply chan FinalResult
}

// IterationResult is what a shard reports back at the end of a
// reachability round: the atoms it newly buffered, folded into its
// cumulative set.
type IterationResult struct {
	NewAtoms *roaring.Bitmap
}

// FinalResult is a shard's contribution to the finished predicate space:
// every atom it ever saw, the subset that are query atoms, and the
// non-deduplicated atom-to-clique incidence (shard-local refs, resolved
// to global cliqueIDs by the coordinator during finalize).
type FinalResult struct {
	Atoms      *roaring.Bitmap
	QueryAtoms *roaring.Bitmap
	Incidence  map[int][]CliqueRef
}

// Shard is one partition of the atom register, processed by a single
// goroutine over its own mailbox.
type Shard struct {
	index int
	inbox chan any

	query      *roaring.Bitmap
	buffer     *roaring.Bitmap
	cumulative *roaring.Bitmap
	incidence  map[int][]CliqueRef

	phase phase
}

// NewShard starts an atom-register shard goroutine.
func NewShard(index int) *Shard {
	s := &Shard{
		index:      index,
		inbox:      make(chan any, 4096),
		query:      roaring.New(),
		buffer:     roaring.New(),
		cumulative: roaring.New(),
		incidence:  make(map[int][]CliqueRef),
	}
	go s.run()
	return s
}

// QueryVariable marks atomID as a query atom and buffers it for
// reachability, called by the clique register when it sees a zero-weight
// unit clause whose sole literal is a query predicate atom.
func (s *Shard) QueryVariable(atomID int) {
	s.inbox <- queryVarMsg{atomID: atomID}
}

// RegisterAtom buffers atomID as reached this iteration and appends the
// (cliqueShard, localCliqueID) ref to its incidence list. A local ID of
// 0 means "no clique" (the query-variable-only registration path) and
// is not recorded as incidence.
func (s *Shard) RegisterAtom(atomID, cliqueShard, localCliqueID int) {
	s.inbox <- registerAtomMsg{atomID: atomID, ref: CliqueRef{Shard: cliqueShard, Local: localCliqueID}}
}

// IterationComplete folds this iteration's buffer into the cumulative
// set, resets the buffer, and returns the newly-added atoms so the
// coordinator can union them into the next round's reachability frontier.
func (s *Shard) IterationComplete() IterationResult {
	reply := make(chan IterationResult, 1)
	s.inbox <- iterationMsg{reply: reply}
	return <-reply
}

// Shutdown stops the shard and returns its final accumulated state.
func (s *Shard) Shutdown() FinalResult {
	reply := make(chan FinalResult, 1)
	s.inbox <- shutdownMsg{reply: reply}
	return <-reply
}

func (s *Shard) run() {
	log := logging.Get(logging.CategoryAtomReg)
	for m := range s.inbox {
		switch msg := m.(type) {
		case queryVarMsg:
			if msg.atomID == 0 {
				continue
			}
			s.query.Add(uint32(msg.atomID))
			s.buffer.Add(uint32(msg.atomID))
		case registerAtomMsg:
			if msg.atomID == 0 {
				continue
			}
			s.buffer.Add(uint32(msg.atomID))
			if msg.ref.Local != 0 {
				s.incidence[msg.atomID] = append(s.incidence[msg.atomID], msg.ref)
			}
		case iterationMsg:
			newAtoms := roaring.AndNot(s.buffer, s.cumulative)
			s.cumulative.Or(s.buffer)
			s.buffer = roaring.New()
			msg.reply <- IterationResult{NewAtoms: newAtoms}
		case shutdownMsg:
			msg.reply <- FinalResult{Atoms: s.cumulative, QueryAtoms: s.query, Incidence: s.incidence}
			log.Debugw("atom register shard shut down", "shard", s.index, "atoms", s.cumulative.GetCardinality())
			s.phase = phaseDone
			return
		}
	}
}
