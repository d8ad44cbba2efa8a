// core/logictree/gmcm.go
package logictree

// GMCMBranch is one ground motion model alternative within a branch set.
// Unlike SRM branches, a GMCM branch applies to exactly one tectonic region
// type.
type GMCMBranch struct {
	SetName            string
	ID                 string
	Weight             float64
	TectonicRegionType string
}

// Identity is the stable registry identity of the branch.
func (b GMCMBranch) Identity() string { return b.SetName + "|" + b.ID }

// GMCMBranchSet is a named set of mutually exclusive ground motion models
// for one tectonic region type.
type GMCMBranchSet struct {
	Name               string
	TectonicRegionType string
	Branches           []GMCMBranch
}

// GMCMCompositeBranch is one full GMCM realization: one branch per branch
// set.
type GMCMCompositeBranch struct {
	Branches []GMCMBranch
	Weight   float64
}

// GMCMLogicTree is the ground motion characterization model probability
// tree.
type GMCMLogicTree struct {
	Name       string
	BranchSets []GMCMBranchSet
}

// Branches returns every branch of every branch set in tree order.
func (t *GMCMLogicTree) Branches() []GMCMBranch {
	var out []GMCMBranch
	for _, bs := range t.BranchSets {
		out = append(out, bs.Branches...)
	}
	return out
}

// CompositeBranches enumerates every full GMCM realization.
func (t *GMCMLogicTree) CompositeBranches() []GMCMCompositeBranch {
	sets := make([][]GMCMBranch, len(t.BranchSets))
	for i, bs := range t.BranchSets {
		sets[i] = bs.Branches
	}
	var out []GMCMCompositeBranch
	forEachCombination(sets, func(combo []GMCMBranch) {
		branches := make([]GMCMBranch, len(combo))
		copy(branches, combo)
		w := 1.0
		for _, b := range combo {
			w *= b.Weight
		}
		out = append(out, GMCMCompositeBranch{Branches: branches, Weight: w})
	})
	return out
}

// Filtered returns a working copy of the tree keeping only branch sets
// whose region type is in trts. The receiver is not modified.
func (t *GMCMLogicTree) Filtered(trts []string) *GMCMLogicTree {
	keep := map[string]struct{}{}
	for _, trt := range trts {
		keep[trt] = struct{}{}
	}
	out := &GMCMLogicTree{Name: t.Name}
	for _, bs := range t.BranchSets {
		if _, ok := keep[bs.TectonicRegionType]; ok {
			out.BranchSets = append(out.BranchSets, bs)
		}
	}
	return out
}
