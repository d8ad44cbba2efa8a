package jobspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
compatibility_key: A_A
hazard_model_id: TEST_MODEL
srm_logic_tree: fixtures/srm.yaml
gmcm_logic_tree: fixtures/gmcm.yaml
locations: ["-41.300~174.780", "-36.870~174.770"]
vs30s: [400]
imts: [PGA, "SA(0.5)"]
agg_types: [mean, std, cov, "0.1", "0.5", "0.9"]
rlz_store: /tmp/rlz
agg_store: /tmp/agg
workers: 4
`

func TestParseValid(t *testing.T) {
	s, err := Parse(strings.NewReader(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "TEST_MODEL", s.HazardModelID)
	assert.Len(t, s.AggTypes, 6)
	assert.Equal(t, 4, s.Workers)
}

func TestParseMissingRequired(t *testing.T) {
	bad := strings.Replace(validYAML, "hazard_model_id: TEST_MODEL", "", 1)
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
}

func TestParseUnknownField(t *testing.T) {
	bad := validYAML + "\nbogus: 1\n"
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
}

func TestValidateContradictorySites(t *testing.T) {
	bad := validYAML + "site_file: sites.csv\n"
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pick one")
}

func TestValidateNoSites(t *testing.T) {
	bad := strings.Replace(validYAML, `locations: ["-41.300~174.780", "-36.870~174.770"]`, "", 1)
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
}

func TestValidateVS30Mismatch(t *testing.T) {
	bad := strings.Replace(validYAML, "vs30s: [400]", "vs30s: [400, 250, 750]", 1)
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vs30s")
}

func TestValidateBadAggType(t *testing.T) {
	bad := strings.Replace(validYAML, `"0.9"`, `"p90"`, 1)
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)
}

func TestValidateSaveNeedsAggStore(t *testing.T) {
	bad := strings.Replace(validYAML, "agg_store: /tmp/agg", "", 1)
	_, err := Parse(strings.NewReader(bad))
	require.Error(t, err)

	ok := strings.Replace(validYAML, "agg_store: /tmp/agg", "skip_save: true", 1)
	_, err = Parse(strings.NewReader(ok))
	require.NoError(t, err)
}
