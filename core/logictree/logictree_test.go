package logictree

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func parseSRM(t *testing.T) *SourceLogicTree {
	t.Helper()
	tree, err := ParseSource(strings.NewReader(srmYAML))
	require.NoError(t, err)
	return tree
}

func parseGMCM(t *testing.T) *GMCMLogicTree {
	t.Helper()
	tree, err := ParseGMCM(strings.NewReader(gmcmYAML))
	require.NoError(t, err)
	return tree
}

func TestParseSource(t *testing.T) {
	tree := parseSRM(t)
	assert.Equal(t, "srm-fixture", tree.Name)
	require.Len(t, tree.BranchSets, 3)
	assert.Len(t, tree.Branches(), 11)
	assert.Equal(t, []string{"Active Shallow Crust", "Subduction Interface", "Subduction Intraslab"},
		tree.TectonicRegionTypes())
	// branches inherit the set's region types
	assert.Equal(t, []string{"Subduction Interface"}, tree.BranchSets[1].Branches[0].TectonicRegionTypes)
	assert.Equal(t, "HIK|h1", tree.BranchSets[1].Branches[0].Identity())
}

func TestParseSourceBadWeights(t *testing.T) {
	bad := strings.Replace(srmYAML, "{id: c1, weight: 0.4}", "{id: c1, weight: 0.3}", 1)
	_, err := ParseSource(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights sum")
}

func TestSourceCompositeBranches(t *testing.T) {
	tree := parseSRM(t)
	composites := tree.CompositeBranches()
	assert.Len(t, composites, 2*3*6)

	sum := 0.0
	for _, cb := range composites {
		require.Len(t, cb.Branches, 3)
		sum += cb.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestGMCMCompositeBranches(t *testing.T) {
	tree := parseGMCM(t)
	composites := tree.CompositeBranches()
	assert.Len(t, composites, 2*2*1*1)
	sum := 0.0
	for _, cb := range composites {
		sum += cb.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestGMCMFilteredDoesNotMutate(t *testing.T) {
	tree := parseGMCM(t)
	filtered := tree.Filtered([]string{"Active Shallow Crust", "Subduction Interface"})
	assert.Len(t, filtered.BranchSets, 2)
	assert.Len(t, tree.BranchSets, 4)
}

const correlatedYAML = `
name: srm-correlated
branch_sets:
  - name: A
    tectonic_region_types: [Subduction Interface]
    branches:
      - {id: a1, weight: 0.25}
      - {id: a2, weight: 0.75}
  - name: B
    tectonic_region_types: [Subduction Intraslab]
    branches:
      - {id: b1, weight: 0.5}
      - {id: b2, weight: 0.5}
correlations:
  - [A:a1, B:b1]
  - [A:a2, B:b2]
`

func TestCorrelatedComposites(t *testing.T) {
	tree, err := ParseSource(strings.NewReader(correlatedYAML))
	require.NoError(t, err)

	composites := tree.CompositeBranches()
	require.Len(t, composites, 2)

	sum := 0.0
	for _, cb := range composites {
		sum += cb.Weight
	}
	// secondary weights are dropped so the correlated pairs still close
	assert.True(t, math.Abs(sum-1.0) < 1e-9, "weights sum to %v", sum)
	assert.InDelta(t, 0.25, composites[0].Weight, 1e-12)
	assert.InDelta(t, 0.75, composites[1].Weight, 1e-12)
}

func TestPartiallyCorrelatedComposites(t *testing.T) {
	// one correlation covering only part of the primary set: a secondary
	// without its primary stays a free, fully-weighted choice
	partial := strings.Replace(correlatedYAML, "\n  - [A:a2, B:b2]", "", 1)
	tree, err := ParseSource(strings.NewReader(partial))
	require.NoError(t, err)
	require.Len(t, tree.Correlations, 1)

	composites := tree.CompositeBranches()
	require.Len(t, composites, 3) // (a1,b2) violates a1 => b1

	sum := 0.0
	weights := map[string]float64{}
	for _, cb := range composites {
		sum += cb.Weight
		weights[cb.Branches[0].ID+"+"+cb.Branches[1].ID] = cb.Weight
	}
	assert.True(t, math.Abs(sum-1.0) < 1e-9, "weights sum to %v", sum)
	assert.InDelta(t, 0.25, weights["a1+b1"], 1e-12)   // b1 weight dropped
	assert.InDelta(t, 0.375, weights["a2+b1"], 1e-12)  // b1 free here
	assert.InDelta(t, 0.375, weights["a2+b2"], 1e-12)
}

func TestCorrelationUnknownBranch(t *testing.T) {
	bad := strings.Replace(correlatedYAML, "A:a2", "A:missing", 1)
	_, err := ParseSource(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown branch")
}

func TestBranchRefParse(t *testing.T) {
	tree, err := ParseSource(strings.NewReader(strings.Replace(correlatedYAML, "A:a1", "badref", 1)))
	assert.Nil(t, tree)
	require.Error(t, err)
}
