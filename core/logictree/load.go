// core/logictree/load.go
package logictree

import (
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// weightTol is the relative tolerance for per-set weight closure.
const weightTol = 1e-6

type sourceBranchYAML struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

type sourceBranchSetYAML struct {
	Name                string             `yaml:"name"`
	TectonicRegionTypes []string           `yaml:"tectonic_region_types"`
	Branches            []sourceBranchYAML `yaml:"branches"`
}

type sourceTreeYAML struct {
	Name         string                `yaml:"name"`
	BranchSets   []sourceBranchSetYAML `yaml:"branch_sets"`
	Correlations []Correlation         `yaml:"correlations"`
}

type gmcmBranchYAML struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

type gmcmBranchSetYAML struct {
	Name               string           `yaml:"name"`
	TectonicRegionType string           `yaml:"tectonic_region_type"`
	Branches           []gmcmBranchYAML `yaml:"branches"`
}

type gmcmTreeYAML struct {
	Name       string              `yaml:"name"`
	BranchSets []gmcmBranchSetYAML `yaml:"branch_sets"`
}

// ParseSource reads a SRM logic tree from YAML and validates it.
func ParseSource(r io.Reader) (*SourceLogicTree, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var raw sourceTreeYAML
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("logictree: decode source tree: %w", err)
	}
	t := &SourceLogicTree{Name: raw.Name, Correlations: raw.Correlations}
	for _, bs := range raw.BranchSets {
		set := SourceBranchSet{Name: bs.Name, TectonicRegionTypes: bs.TectonicRegionTypes}
		for _, b := range bs.Branches {
			set.Branches = append(set.Branches, SourceBranch{
				SetName:             bs.Name,
				ID:                  b.ID,
				Weight:              b.Weight,
				TectonicRegionTypes: bs.TectonicRegionTypes,
			})
		}
		t.BranchSets = append(t.BranchSets, set)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadSource reads a SRM logic tree from a YAML file.
func LoadSource(path string) (*SourceLogicTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	t, err := ParseSource(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseGMCM reads a GMCM logic tree from YAML and validates it.
func ParseGMCM(r io.Reader) (*GMCMLogicTree, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var raw gmcmTreeYAML
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("logictree: decode gmcm tree: %w", err)
	}
	t := &GMCMLogicTree{Name: raw.Name}
	for _, bs := range raw.BranchSets {
		set := GMCMBranchSet{Name: bs.Name, TectonicRegionType: bs.TectonicRegionType}
		for _, b := range bs.Branches {
			set.Branches = append(set.Branches, GMCMBranch{
				SetName:            bs.Name,
				ID:                 b.ID,
				Weight:             b.Weight,
				TectonicRegionType: bs.TectonicRegionType,
			})
		}
		t.BranchSets = append(t.BranchSets, set)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadGMCM reads a GMCM logic tree from a YAML file.
func LoadGMCM(path string) (*GMCMLogicTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	t, err := ParseGMCM(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Validate checks branch set structure, weight closure per set, and
// correlation references.
func (t *SourceLogicTree) Validate() error {
	if len(t.BranchSets) == 0 {
		return fmt.Errorf("logictree: source tree %q has no branch sets", t.Name)
	}
	for _, bs := range t.BranchSets {
		if len(bs.TectonicRegionTypes) == 0 {
			return fmt.Errorf("logictree: branch set %q has no tectonic region types", bs.Name)
		}
		if err := checkWeights(bs.Name, sourceWeights(bs.Branches)); err != nil {
			return err
		}
	}
	for _, c := range t.Correlations {
		if err := c.resolve(t); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks branch set structure and weight closure per set.
func (t *GMCMLogicTree) Validate() error {
	if len(t.BranchSets) == 0 {
		return fmt.Errorf("logictree: gmcm tree %q has no branch sets", t.Name)
	}
	for _, bs := range t.BranchSets {
		if bs.TectonicRegionType == "" {
			return fmt.Errorf("logictree: branch set %q has no tectonic region type", bs.Name)
		}
		if err := checkWeights(bs.Name, gmcmWeights(bs.Branches)); err != nil {
			return err
		}
	}
	return nil
}

func sourceWeights(bs []SourceBranch) []float64 {
	ws := make([]float64, len(bs))
	for i, b := range bs {
		ws[i] = b.Weight
	}
	return ws
}

func gmcmWeights(bs []GMCMBranch) []float64 {
	ws := make([]float64, len(bs))
	for i, b := range bs {
		ws[i] = b.Weight
	}
	return ws
}

func checkWeights(set string, ws []float64) error {
	if len(ws) == 0 {
		return fmt.Errorf("logictree: branch set %q has no branches", set)
	}
	sum := 0.0
	for _, w := range ws {
		if w <= 0 || w > 1 {
			return fmt.Errorf("logictree: branch set %q has weight %v outside (0,1]", set, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTol {
		return fmt.Errorf("logictree: branch set %q weights sum to %v, want 1", set, sum)
	}
	return nil
}
