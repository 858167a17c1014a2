// Package predspace implements the predicate space: the partition of
// every predicate in an MLN's schema into query / hidden / evidence
// groups, each assigned a disjoint, contiguous range of atom IDs.
package predspace

import (
	"fmt"
	"sort"

	"mlnground/internal/identity"
	"mlnground/internal/schema"
)

// Role classifies a predicate by its place in the open/closed-world
// partition.
type Role int

const (
	RoleQuery Role = iota
	RoleHidden
	RoleEvidence
)

// Space assigns every predicate in the schema a disjoint, contiguous
// atom-ID range, in the fixed order (1) query, (2) hidden, (3) evidence.
// identityOf and signatureOf are O(1) and O(log P) respectively once
// built; the space is immutable thereafter.
type Space struct {
	identities    map[schema.Signature]*identity.Function
	roles         map[schema.Signature]Role
	orderedStarts []int // ascending, parallel to orderedSigs
	orderedSigs   []schema.Signature
	totalAtoms    int
}

// Declaration is one predicate's schema entry: its signature and
// per-argument domains, used to build its identity function.
type Declaration struct {
	Signature schema.Signature
	Domains   []*schema.ConstantsSet
}

// Build partitions query ∪ hidden ∪ evidence into a single Space.
// Signatures must be pairwise distinct across the three groups; Build
// returns an error otherwise. queryStartID is always 1.
func Build(query, hidden, evidence []Declaration) (*Space, error) {
	sp := &Space{
		identities: make(map[schema.Signature]*identity.Function),
		roles:      make(map[schema.Signature]Role),
	}

	nextID := 1
	add := func(decls []Declaration, role Role) error {
		for _, d := range decls {
			if _, dup := sp.roles[d.Signature]; dup {
				return fmt.Errorf("predspace: predicate %s declared more than once", d.Signature)
			}
			idf, err := identity.New(d.Signature, d.Domains, nextID)
			if err != nil {
				return fmt.Errorf("predspace: %s: %w", d.Signature, err)
			}
			sp.identities[d.Signature] = idf
			sp.roles[d.Signature] = role
			sp.orderedSigs = append(sp.orderedSigs, d.Signature)
			sp.orderedStarts = append(sp.orderedStarts, idf.StartID)
			nextID = idf.EndID
			sp.totalAtoms += idf.Length
		}
		return nil
	}

	if err := add(query, RoleQuery); err != nil {
		return nil, err
	}
	if err := add(hidden, RoleHidden); err != nil {
		return nil, err
	}
	if err := add(evidence, RoleEvidence); err != nil {
		return nil, err
	}

	return sp, nil
}

// IdentityOf returns the identity function for sig, or nil if sig is not
// a member of this space.
func (sp *Space) IdentityOf(sig schema.Signature) *identity.Function {
	return sp.identities[sig]
}

// Role returns the role of sig and whether sig is a member of this space.
func (sp *Space) Role(sig schema.Signature) (Role, bool) {
	r, ok := sp.roles[sig]
	return r, ok
}

func (sp *Space) IsQuery(sig schema.Signature) bool    { r, ok := sp.roles[sig]; return ok && r == RoleQuery }
func (sp *Space) IsHidden(sig schema.Signature) bool   { r, ok := sp.roles[sig]; return ok && r == RoleHidden }
func (sp *Space) IsEvidence(sig schema.Signature) bool { r, ok := sp.roles[sig]; return ok && r == RoleEvidence }

// IsOpenWorld reports whether sig is a query or hidden predicate (i.e.
// not closed-world evidence).
func (sp *Space) IsOpenWorld(sig schema.Signature) bool {
	r, ok := sp.roles[sig]
	return ok && r != RoleEvidence
}

// TotalAtoms returns the size of the union of all ranges, i.e. the
// highest valid atomID is TotalAtoms.
func (sp *Space) TotalAtoms() int { return sp.totalAtoms }

// Signatures returns every predicate declared in this space, in
// assignment order (query, then hidden, then evidence).
func (sp *Space) Signatures() []schema.Signature {
	return append([]schema.Signature(nil), sp.orderedSigs...)
}

// QuerySignatures returns every predicate declared with RoleQuery.
func (sp *Space) QuerySignatures() []schema.Signature {
	var out []schema.Signature
	for _, sig := range sp.orderedSigs {
		if sp.roles[sig] == RoleQuery {
			out = append(out, sig)
		}
	}
	return out
}

// SignatureOf finds the predicate owning atomID via binary search over
// the ordered range starts: O(log P) in the number of predicates.
func (sp *Space) SignatureOf(atomID int) (schema.Signature, error) {
	// Find the last start <= atomID.
	i := sort.Search(len(sp.orderedStarts), func(i int) bool {
		return sp.orderedStarts[i] > atomID
	})
	if i == 0 {
		return schema.Signature{}, fmt.Errorf("predspace: atomID %d precedes any declared range", atomID)
	}
	sig := sp.orderedSigs[i-1]
	idf := sp.identities[sig]
	if atomID >= idf.EndID {
		return schema.Signature{}, fmt.Errorf("predspace: atomID %d is not within any declared range", atomID)
	}
	return sig, nil
}
