package hazard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazpost-core/logictree"
	"hazpost-core/registry"
)

const srmYAML = `
name: srm-fixture
branch_sets:
  - name: CRU
    tectonic_region_types: [Active Shallow Crust]
    branches:
      - {id: c1, weight: 0.4}
      - {id: c2, weight: 0.6}
  - name: HIK
    tectonic_region_types: [Subduction Interface]
    branches:
      - {id: h1, weight: 0.2}
      - {id: h2, weight: 0.3}
      - {id: h3, weight: 0.5}
  - name: SLAB
    tectonic_region_types: [Subduction Intraslab]
    branches:
      - {id: s1, weight: 0.1}
      - {id: s2, weight: 0.1}
      - {id: s3, weight: 0.2}
      - {id: s4, weight: 0.2}
      - {id: s5, weight: 0.2}
      - {id: s6, weight: 0.2}
`

const gmcmYAML = `
name: gmcm-fixture
branch_sets:
  - name: gCRU
    tectonic_region_type: Active Shallow Crust
    branches:
      - {id: m1, weight: 0.3}
      - {id: m2, weight: 0.7}
  - name: gHIK
    tectonic_region_type: Subduction Interface
    branches:
      - {id: m3, weight: 0.5}
      - {id: m4, weight: 0.5}
  - name: gSLAB
    tectonic_region_type: Subduction Intraslab
    branches:
      - {id: m5, weight: 1.0}
  - name: gVOL
    tectonic_region_type: Volcanic
    branches:
      - {id: m6, weight: 1.0}
`

func fixtureTrees(t *testing.T) (*logictree.SourceLogicTree, *logictree.GMCMLogicTree) {
	t.Helper()
	srm, err := logictree.ParseSource(strings.NewReader(srmYAML))
	require.NoError(t, err)
	gmcm, err := logictree.ParseGMCM(strings.NewReader(gmcmYAML))
	require.NoError(t, err)
	return srm, gmcm
}

func buildFixture(t *testing.T) *LogicTree {
	t.Helper()
	srm, gmcm := fixtureTrees(t)
	tree, err := Build(srm, gmcm, registry.Content{})
	require.NoError(t, err)
	return tree
}

func TestBuildFiltersGMCM(t *testing.T) {
	tree := buildFixture(t)
	// the Volcanic branch set has no SRM counterpart and is dropped
	assert.Len(t, tree.GMCM().BranchSets, 3)
}

func TestBuildRegionFilterIsExact(t *testing.T) {
	srm, gmcm := fixtureTrees(t)
	srm.BranchSets = srm.BranchSets[1:] // drop Active Shallow Crust
	tree, err := Build(srm, gmcm, registry.Content{})
	require.NoError(t, err)
	assert.Len(t, tree.GMCM().BranchSets, 2)
}

func TestBuildUnmatchedRegion(t *testing.T) {
	srm, gmcm := fixtureTrees(t)
	gmcm.BranchSets = gmcm.BranchSets[1:] // no gmcm for Active Shallow Crust
	_, err := Build(srm, gmcm, registry.Content{})
	require.ErrorIs(t, err, ErrUnmatchedRegion)
}

func TestCompositeCardinality(t *testing.T) {
	tree := buildFixture(t)
	composites, err := tree.CompositeBranches()
	require.NoError(t, err)
	// product over SRM branch sets times product over matched GMCM sets
	assert.Len(t, composites, (2*3*6)*(2*2*1))
}

func TestComponentCardinality(t *testing.T) {
	tree := buildFixture(t)
	components, err := tree.ComponentBranches()
	require.NoError(t, err)
	// per SRM branch: product over the matching GMCM branch sets
	assert.Len(t, components, 2*2+3*2+6*1)
}

func TestWeightClosure(t *testing.T) {
	tree := buildFixture(t)
	weights, err := tree.Weights()
	require.NoError(t, err)
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InEpsilon(t, 1.0, sum, 1e-6)
}

func TestWeightClosureWithCorrelations(t *testing.T) {
	srm, gmcm := fixtureTrees(t)
	srm.Correlations = []logictree.Correlation{
		{Branches: []logictree.BranchRef{{Set: "CRU", Branch: "c1"}, {Set: "HIK", Branch: "h1"}}},
	}
	srm.BranchSets[1].Branches = srm.BranchSets[1].Branches[:2]
	srm.BranchSets[1].Branches[1].Weight = 0.8
	srm.Correlations = append(srm.Correlations, logictree.Correlation{
		Branches: []logictree.BranchRef{{Set: "CRU", Branch: "c2"}, {Set: "HIK", Branch: "h2"}},
	})

	tree, err := Build(srm, gmcm, registry.Content{})
	require.NoError(t, err)
	weights, err := tree.Weights()
	require.NoError(t, err)
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InEpsilon(t, 1.0, sum, 1e-6)
}

func TestWeightClosureWithPartialCorrelation(t *testing.T) {
	srm, gmcm := fixtureTrees(t)
	// covers one branch of CRU only; the uncorrelated rest of the space
	// must keep its full weight
	srm.Correlations = []logictree.Correlation{
		{Branches: []logictree.BranchRef{{Set: "CRU", Branch: "c1"}, {Set: "HIK", Branch: "h1"}}},
	}

	tree, err := Build(srm, gmcm, registry.Content{})
	require.NoError(t, err)
	weights, err := tree.Weights()
	require.NoError(t, err)
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InEpsilon(t, 1.0, sum, 1e-6)
}

func TestComponentWeight(t *testing.T) {
	tree := buildFixture(t)
	components, err := tree.ComponentBranches()
	require.NoError(t, err)
	first := components[0]
	want := first.Source.Weight
	for _, g := range first.GMCM {
		want *= g.Weight
	}
	assert.InDelta(t, want, first.Weight, 1e-12)
}

func TestBranchHashTable(t *testing.T) {
	tree := buildFixture(t)
	table, err := tree.BranchHashTable()
	require.NoError(t, err)
	composites, _ := tree.CompositeBranches()
	require.Len(t, table, len(composites))
	for _, row := range table {
		require.Len(t, row, 3) // one component per SRM branch set
		for _, h := range row {
			assert.Len(t, h, HashLen)
		}
	}
}

func TestCompositeWeightUsesSourceWeightVerbatim(t *testing.T) {
	tree := buildFixture(t)
	composites, err := tree.CompositeBranches()
	require.NoError(t, err)
	cb := composites[0]
	// unique gmcm branches per composite, one per region here
	srcW := 1.0
	for _, comp := range cb.Components {
		srcW *= comp.Source.Weight
	}
	gmcmW := 1.0
	for _, comp := range cb.Components {
		for _, g := range comp.GMCM {
			gmcmW *= g.Weight
		}
	}
	assert.InDelta(t, srcW*gmcmW, cb.Weight, 1e-12)
}

func TestMultiGMCMPerRegionFails(t *testing.T) {
	srm, gmcm := fixtureTrees(t)
	// a second branch set for a region already covered maps two gmcm
	// branches onto one component slot
	gmcm.BranchSets = append(gmcm.BranchSets, logictree.GMCMBranchSet{
		Name:               "gCRU2",
		TectonicRegionType: "Active Shallow Crust",
		Branches: []logictree.GMCMBranch{
			{SetName: "gCRU2", ID: "m7", Weight: 1.0, TectonicRegionType: "Active Shallow Crust"},
		},
	})
	tree, err := Build(srm, gmcm, registry.Content{})
	require.NoError(t, err)
	_, err = tree.CompositeBranches()
	require.ErrorIs(t, err, ErrMultiGMCM)
	_, err = tree.ComponentBranches()
	require.ErrorIs(t, err, ErrMultiGMCM)
}

type fixtureRegistry map[string]string

func (r fixtureRegistry) Lookup(identity string) (string, error) {
	if d, ok := r[identity]; ok {
		return d, nil
	}
	return registry.Content{}.Lookup(identity)
}

func TestRegistryIsInjected(t *testing.T) {
	srm, gmcm := fixtureTrees(t)
	reg := fixtureRegistry{"CRU|c1": "aaaaaaaaaaaa"}
	tree, err := Build(srm, gmcm, reg)
	require.NoError(t, err)
	components, err := tree.ComponentBranches()
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaa", components[0].SourceDigest)
}
