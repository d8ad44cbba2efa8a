package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazpost-core/hazard"
	"hazpost-core/logictree"
	"hazpost-core/registry"

	"hazpost/internal/ingestapp"
)

func TestHelpExitsZero(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := Run([]string{"-h"}, &out, &errBuf)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "Usage of hazpost")
}

func TestUsageErrorExitsTwo(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := Run([]string{"--output", "yaml"}, &out, &errBuf)
	assert.Equal(t, 2, code)
}

func TestVersion(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := Run([]string{"-v"}, &out, &errBuf)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "hazpost version")
}

func TestBadJobFileExitsTwo(t *testing.T) {
	var out, errBuf bytes.Buffer
	code := Run([]string{"--job", filepath.Join(t.TempDir(), "missing.yaml")}, &out, &errBuf)
	assert.Equal(t, 2, code)
}

const srmFixture = `
name: test srm
branch_sets:
  - name: CRU
    tectonic_region_types: [Active Shallow Crust]
    branches:
      - id: low
        weight: 0.4
      - id: high
        weight: 0.6
`

const gmcmFixture = `
name: test gmcm
branch_sets:
  - name: gCRU
    tectonic_region_type: Active Shallow Crust
    branches:
      - id: gsim
        weight: 1.0
`

// TestDryRunEndToEnd drives both binaries' app layers: ingest a CSV into
// an on-disk store, then aggregate it with --dry-run and read the curves
// off stdout.
func TestDryRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	srmPath := filepath.Join(dir, "srm.yaml")
	gmcmPath := filepath.Join(dir, "gmcm.yaml")
	require.NoError(t, os.WriteFile(srmPath, []byte(srmFixture), 0o644))
	require.NoError(t, os.WriteFile(gmcmPath, []byte(gmcmFixture), 0o644))

	// realization CSV with registry-derived digests
	srm, err := logictree.LoadSource(srmPath)
	require.NoError(t, err)
	gmcm, err := logictree.LoadGMCM(gmcmPath)
	require.NoError(t, err)
	tree, err := hazard.Build(srm, gmcm, registry.Content{})
	require.NoError(t, err)
	components, err := tree.ComponentBranches()
	require.NoError(t, err)
	require.Len(t, components, 2)

	var csv strings.Builder
	csv.WriteString("vs30,lat,lon,imt,source_digest,gmcm_digest,values\n")
	probs := map[string]string{"low": "0.1;0.01", "high": "0.3;0.05"}
	for _, comp := range components {
		fmt.Fprintf(&csv, "400,-41.3,174.78,PGA,%s,%s,%s\n",
			comp.SourceDigest, comp.GMCMDigest, probs[comp.Source.ID])
	}
	csvPath := filepath.Join(dir, "rlz.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv.String()), 0o644))

	rlzDir := filepath.Join(dir, "rlz-store")
	var out, errBuf bytes.Buffer
	code := ingestapp.RunContext(context.Background(), []string{
		"--rlz-store", rlzDir,
		"--compat", "A_A",
		"--input", csvPath,
		"--quiet",
	}, &out, &errBuf)
	require.Equal(t, 0, code, "ingest stderr: %s", errBuf.String())
	assert.Contains(t, out.String(), "ingested 2 realization rows")

	jobYAML := fmt.Sprintf(`
compatibility_key: A_A
hazard_model_id: TEST_MODEL
srm_logic_tree: %s
gmcm_logic_tree: %s
locations: ["-41.3~174.78"]
vs30s: [400]
imts: [PGA]
agg_types: [mean, "0.5"]
rlz_store: %s
workers: 2
skip_save: true
`, srmPath, gmcmPath, rlzDir)
	jobPath := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(jobPath, []byte(jobYAML), 0o644))

	out.Reset()
	errBuf.Reset()
	code = RunContext(context.Background(), []string{
		"--job", jobPath,
		"--output", "jsonl",
		"--quiet",
	}, &out, &errBuf)
	require.Equal(t, 0, code, "run stderr: %s", errBuf.String())

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, out.String(), `"agg":"mean"`)
	assert.Contains(t, out.String(), `"agg":"0.5"`)
	assert.Contains(t, out.String(), `"nloc_001":"-41.300~174.780"`)
}
