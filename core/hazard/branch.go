// core/hazard/branch.go

// Package hazard combines a SRM and a GMCM logic tree into the composite
// branch space of the full hazard model.
package hazard

import (
	"errors"
	"fmt"

	"hazpost-core/logictree"
	"hazpost-core/registry"
)

// HashLen is the length in hex characters of a component branch digest
// (source digest ++ gmcm digest).
const HashLen = 2 * registry.DigestLen

// ErrMultiGMCM is returned when more than one GMCM branch maps onto a
// single component branch. The digest join key admits exactly one; anything
// else must fail fast rather than truncate.
var ErrMultiGMCM = errors.New("hazard: multiple gmcm branches for a component branch is not implemented")

// ComponentBranch pairs one SRM branch with its region-matched GMCM branch.
// It is the atomic unit fetched from the realization store.
type ComponentBranch struct {
	Source       logictree.SourceBranch
	GMCM         []logictree.GMCMBranch
	Weight       float64
	SourceDigest string
	GMCMDigest   string
}

// HashDigest is the content-addressed join key for the component branch.
func (b ComponentBranch) HashDigest() string { return b.SourceDigest + b.GMCMDigest }

// NewComponentBranch builds a component branch and resolves its digests.
func NewComponentBranch(src logictree.SourceBranch, gmcms []logictree.GMCMBranch, reg registry.Registry) (ComponentBranch, error) {
	if len(gmcms) != 1 {
		return ComponentBranch{}, fmt.Errorf("%w: branch %s matched %d gmcm branches", ErrMultiGMCM, src.Identity(), len(gmcms))
	}
	srcDigest, err := reg.Lookup(src.Identity())
	if err != nil {
		return ComponentBranch{}, fmt.Errorf("hazard: source digest for %s: %w", src.Identity(), err)
	}
	gmcmDigest, err := reg.Lookup(gmcms[0].Identity())
	if err != nil {
		return ComponentBranch{}, fmt.Errorf("hazard: gmcm digest for %s: %w", gmcms[0].Identity(), err)
	}
	w := src.Weight
	for _, g := range gmcms {
		w *= g.Weight
	}
	return ComponentBranch{
		Source:       src,
		GMCM:         gmcms,
		Weight:       w,
		SourceDigest: srcDigest,
		GMCMDigest:   gmcmDigest,
	}, nil
}

// CompositeBranch is one full realization of the combined tree: an ordered
// collection of component branches, one per tectonic region of the SRM
// composite. It is the atomic unit of the weighted aggregation.
type CompositeBranch struct {
	Components []ComponentBranch
	Weight     float64
}

// newCompositeBranch computes the composite weight from the SRM composite's
// own weight (which may encode correlation effects and is never recomputed)
// times the weights of the distinct GMCM branches across all components.
// Uniqueness is by identity so a ground motion model reused across regions
// is not double counted.
func newCompositeBranch(components []ComponentBranch, sourceWeight float64) CompositeBranch {
	w := sourceWeight
	seen := map[string]struct{}{}
	for _, comp := range components {
		for _, g := range comp.GMCM {
			id := g.Identity()
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			w *= g.Weight
		}
	}
	return CompositeBranch{Components: components, Weight: w}
}
