// internal/jobspec/jobspec.go

// Package jobspec defines the run specification handed to the dispatcher
// and its validation. All configuration errors surface here, before any
// job is scheduled.
package jobspec

import (
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"hazpost-core/curve"
)

// Spec is the job specification for one aggregation run.
type Spec struct {
	CompatibilityKey string `yaml:"compatibility_key" validate:"required"`
	HazardModelID    string `yaml:"hazard_model_id" validate:"required"`

	SRMTreePath  string `yaml:"srm_logic_tree" validate:"required"`
	GMCMTreePath string `yaml:"gmcm_logic_tree" validate:"required"`

	Locations []string `yaml:"locations"`
	SiteFile  string   `yaml:"site_file"`
	VS30s     []int    `yaml:"vs30s" validate:"dive,gt=0"`

	IMTs     []string `yaml:"imts" validate:"required,min=1"`
	AggTypes []string `yaml:"agg_types" validate:"required,min=1"`

	RlzDir string `yaml:"rlz_store" validate:"required"`
	AggDir string `yaml:"agg_store"`

	Workers      int    `yaml:"workers" validate:"gte=0"`
	WorkDir      string `yaml:"work_dir"`
	TreeCacheDir string `yaml:"tree_cache"`
	SkipSave     bool   `yaml:"skip_save"`
}

// Parse reads and validates a YAML spec.
func Parse(r io.Reader) (*Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Spec
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("jobspec: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and validates a YAML spec file.
func Load(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate applies struct tags plus the cross-field rules that tags cannot
// express.
func (s *Spec) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("jobspec: %w", err)
	}
	switch {
	case len(s.Locations) > 0 && s.SiteFile != "":
		return fmt.Errorf("jobspec: both locations and site_file given; pick one")
	case len(s.Locations) == 0 && s.SiteFile == "":
		return fmt.Errorf("jobspec: no sites: need locations or site_file")
	}
	if len(s.Locations) > 0 {
		if len(s.VS30s) == 0 {
			return fmt.Errorf("jobspec: vs30s required with locations")
		}
		if len(s.VS30s) != 1 && len(s.VS30s) != len(s.Locations) {
			return fmt.Errorf("jobspec: %d vs30s for %d locations; want 1 or equal", len(s.VS30s), len(s.Locations))
		}
	}
	for _, agg := range s.AggTypes {
		if _, _, err := curve.ParseAggType(agg); err != nil {
			return fmt.Errorf("jobspec: %w", err)
		}
	}
	if !s.SkipSave && s.AggDir == "" {
		return fmt.Errorf("jobspec: agg_store required unless skip_save is set")
	}
	return nil
}
