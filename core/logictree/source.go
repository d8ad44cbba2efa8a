// core/logictree/source.go
package logictree

// SourceBranch is one alternative within a seismicity rate model branch set.
type SourceBranch struct {
	SetName             string
	ID                  string
	Weight              float64
	TectonicRegionTypes []string
}

// Identity is the stable registry identity of the branch.
func (b SourceBranch) Identity() string { return b.SetName + "|" + b.ID }

// SourceBranchSet is a named set of mutually exclusive SRM branches whose
// weights sum to 1.
type SourceBranchSet struct {
	Name                string
	TectonicRegionTypes []string
	Branches            []SourceBranch
}

// SourceCompositeBranch is one full SRM realization: one branch per branch
// set. Weight is correlation-aware and must be carried forward verbatim.
type SourceCompositeBranch struct {
	Branches []SourceBranch
	Weight   float64
}

// SourceLogicTree is the seismicity rate model probability tree.
type SourceLogicTree struct {
	Name         string
	BranchSets   []SourceBranchSet
	Correlations []Correlation
}

// Branches returns every branch of every branch set in tree order.
func (t *SourceLogicTree) Branches() []SourceBranch {
	var out []SourceBranch
	for _, bs := range t.BranchSets {
		out = append(out, bs.Branches...)
	}
	return out
}

// TectonicRegionTypes returns the union of region types over all branch
// sets, in first-seen order.
func (t *SourceLogicTree) TectonicRegionTypes() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, bs := range t.BranchSets {
		for _, trt := range bs.TectonicRegionTypes {
			if _, ok := seen[trt]; ok {
				continue
			}
			seen[trt] = struct{}{}
			out = append(out, trt)
		}
	}
	return out
}

// CompositeBranches enumerates every full SRM realization, honoring branch
// correlations. Combinations where a primary appears without its
// secondaries are excluded, and a composite's weight skips the weight of a
// secondary whose primary is present, so the total weight over all
// composites stays 1.
func (t *SourceLogicTree) CompositeBranches() []SourceCompositeBranch {
	sets := make([][]SourceBranch, len(t.BranchSets))
	for i, bs := range t.BranchSets {
		sets[i] = bs.Branches
	}
	var out []SourceCompositeBranch
	forEachCombination(sets, func(combo []SourceBranch) {
		if !t.correlationsAllow(combo) {
			return
		}
		branches := make([]SourceBranch, len(combo))
		copy(branches, combo)
		out = append(out, SourceCompositeBranch{
			Branches: branches,
			Weight:   t.compositeWeight(combo),
		})
	})
	return out
}

// correlationsAllow reports whether combo is consistent with every
// correlation group. The rule is one-directional: a primary drags in all
// of its secondaries, but a secondary without its primary remains a free,
// fully-weighted choice. Only the one-directional form keeps the total
// weight at 1 when a correlation covers part of the primary's branch set.
func (t *SourceLogicTree) correlationsAllow(combo []SourceBranch) bool {
	for _, c := range t.Correlations {
		if len(c.Branches) < 2 || !comboHas(combo, c.Branches[0]) {
			continue
		}
		for _, ref := range c.Branches[1:] {
			if !comboHas(combo, ref) {
				return false
			}
		}
	}
	return true
}

func (t *SourceLogicTree) compositeWeight(combo []SourceBranch) float64 {
	w := 1.0
	for _, b := range combo {
		if t.isCorrelatedSecondary(b, combo) {
			continue
		}
		w *= b.Weight
	}
	return w
}

func (t *SourceLogicTree) isCorrelatedSecondary(b SourceBranch, combo []SourceBranch) bool {
	for _, c := range t.Correlations {
		if len(c.Branches) < 2 || !comboHas(combo, c.Branches[0]) {
			continue
		}
		for _, ref := range c.Branches[1:] {
			if ref.Set == b.SetName && ref.Branch == b.ID {
				return true
			}
		}
	}
	return false
}

func comboHas(combo []SourceBranch, ref BranchRef) bool {
	for _, b := range combo {
		if b.SetName == ref.Set && b.ID == ref.Branch {
			return true
		}
	}
	return false
}

// forEachCombination visits the cartesian product of sets, one element per
// set, in lexicographic tree order. The visited slice is reused.
func forEachCombination[T any](sets [][]T, visit func([]T)) {
	if len(sets) == 0 {
		return
	}
	combo := make([]T, len(sets))
	var rec func(i int)
	rec = func(i int) {
		if i == len(sets) {
			visit(combo)
			return
		}
		for _, el := range sets[i] {
			combo[i] = el
			rec(i + 1)
		}
	}
	rec(0)
}
