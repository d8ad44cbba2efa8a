// core/hazard/tree.go
package hazard

import (
	"errors"
	"fmt"
	"sync"

	"hazpost-core/logictree"
	"hazpost-core/registry"
)

// ErrUnmatchedRegion is returned when the SRM tree uses a tectonic region
// type that the GMCM tree cannot supply. Dropping the region would silently
// lose probability mass, so construction fails instead.
var ErrUnmatchedRegion = errors.New("hazard: tectonic region type missing from gmcm tree")

// LogicTree is the combined SRM + GMCM tree. Build it once per run; the
// input trees are treated as immutable and the derived branch collections
// are computed on first access and cached.
type LogicTree struct {
	srm  *logictree.SourceLogicTree
	gmcm *logictree.GMCMLogicTree // filtered working copy
	trts []string
	reg  registry.Registry

	compositeOnce sync.Once
	composites    []CompositeBranch
	compositeErr  error

	componentOnce sync.Once
	components    []ComponentBranch
	componentErr  error
}

// Build matches the two trees by tectonic region type. The GMCM tree is
// filtered to the regions the SRM tree uses (the input tree object is not
// modified); every SRM region must be covered or construction fails.
func Build(srm *logictree.SourceLogicTree, gmcm *logictree.GMCMLogicTree, reg registry.Registry) (*LogicTree, error) {
	trts := srm.TectonicRegionTypes()
	filtered := gmcm.Filtered(trts)
	covered := map[string]struct{}{}
	for _, bs := range filtered.BranchSets {
		covered[bs.TectonicRegionType] = struct{}{}
	}
	for _, trt := range trts {
		if _, ok := covered[trt]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnmatchedRegion, trt)
		}
	}
	return &LogicTree{srm: srm, gmcm: filtered, trts: trts, reg: reg}, nil
}

// GMCM returns the filtered working copy of the GMCM tree.
func (t *LogicTree) GMCM() *logictree.GMCMLogicTree { return t.gmcm }

// CompositeBranches returns every full realization of the combined tree:
// the cross product of both trees' own composite enumerations, re-matched
// by tectonic region type.
func (t *LogicTree) CompositeBranches() ([]CompositeBranch, error) {
	t.compositeOnce.Do(func() {
		t.composites, t.compositeErr = t.generateComposites()
	})
	return t.composites, t.compositeErr
}

// ComponentBranches returns every independent (SRM branch, matching GMCM
// branch) pairing. This is the enumeration used to fetch realizations, not
// the composite enumeration used for aggregation.
func (t *LogicTree) ComponentBranches() ([]ComponentBranch, error) {
	t.componentOnce.Do(func() {
		t.components, t.componentErr = t.generateComponents()
	})
	return t.components, t.componentErr
}

// Weights returns one weight per composite branch in enumeration order.
func (t *LogicTree) Weights() ([]float64, error) {
	composites, err := t.CompositeBranches()
	if err != nil {
		return nil, err
	}
	ws := make([]float64, len(composites))
	for i, cb := range composites {
		ws[i] = cb.Weight
	}
	return ws, nil
}

// BranchHashTable returns one row per composite branch; a row is the
// ordered list of its components' hash digests.
func (t *LogicTree) BranchHashTable() ([][]string, error) {
	composites, err := t.CompositeBranches()
	if err != nil {
		return nil, err
	}
	table := make([][]string, len(composites))
	for i, cb := range composites {
		row := make([]string, len(cb.Components))
		for j, comp := range cb.Components {
			row[j] = comp.HashDigest()
		}
		table[i] = row
	}
	return table, nil
}

func (t *LogicTree) generateComposites() ([]CompositeBranch, error) {
	srmComposites := t.srm.CompositeBranches()
	gmcmComposites := t.gmcm.CompositeBranches()
	out := make([]CompositeBranch, 0, len(srmComposites)*len(gmcmComposites))
	for _, sc := range srmComposites {
		for _, gc := range gmcmComposites {
			components := make([]ComponentBranch, 0, len(sc.Branches))
			for _, srm := range sc.Branches {
				matched := matchByRegion(gc.Branches, srm.TectonicRegionTypes)
				comp, err := NewComponentBranch(srm, matched, t.reg)
				if err != nil {
					return nil, err
				}
				components = append(components, comp)
			}
			out = append(out, newCompositeBranch(components, sc.Weight))
		}
	}
	return out, nil
}

func (t *LogicTree) generateComponents() ([]ComponentBranch, error) {
	var out []ComponentBranch
	for _, srm := range t.srm.Branches() {
		var sets [][]logictree.GMCMBranch
		for _, bs := range t.gmcm.BranchSets {
			if containsRegion(srm.TectonicRegionTypes, bs.TectonicRegionType) {
				sets = append(sets, bs.Branches)
			}
		}
		var err error
		forEachGMCMCombination(sets, func(combo []logictree.GMCMBranch) {
			if err != nil {
				return
			}
			gmcms := make([]logictree.GMCMBranch, len(combo))
			copy(gmcms, combo)
			var comp ComponentBranch
			if comp, err = NewComponentBranch(srm, gmcms, t.reg); err == nil {
				out = append(out, comp)
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func matchByRegion(branches []logictree.GMCMBranch, trts []string) []logictree.GMCMBranch {
	var out []logictree.GMCMBranch
	for _, b := range branches {
		if containsRegion(trts, b.TectonicRegionType) {
			out = append(out, b)
		}
	}
	return out
}

func containsRegion(trts []string, trt string) bool {
	for _, t := range trts {
		if t == trt {
			return true
		}
	}
	return false
}

func forEachGMCMCombination(sets [][]logictree.GMCMBranch, visit func([]logictree.GMCMBranch)) {
	if len(sets) == 0 {
		return
	}
	combo := make([]logictree.GMCMBranch, len(sets))
	var rec func(i int)
	rec = func(i int) {
		if i == len(sets) {
			visit(combo)
			return
		}
		for _, b := range sets[i] {
			combo[i] = b
			rec(i + 1)
		}
	}
	rec(0)
}
