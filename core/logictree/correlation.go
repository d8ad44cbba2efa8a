// core/logictree/correlation.go
package logictree

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// BranchRef names a branch as "SetName:BranchID".
type BranchRef struct {
	Set    string
	Branch string
}

func (r BranchRef) String() string { return r.Set + ":" + r.Branch }

// UnmarshalYAML parses the "SetName:BranchID" form.
func (r *BranchRef) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	set, branch, ok := strings.Cut(s, ":")
	if !ok || set == "" || branch == "" {
		return fmt.Errorf("logictree: invalid branch reference %q (want Set:Branch)", s)
	}
	r.Set, r.Branch = set, branch
	return nil
}

// Correlation ties branches across branch sets together: whenever the first
// (primary) branch is selected the remaining branches must be selected too,
// and their weights are dropped from the composite weight so closure holds.
type Correlation struct {
	Branches []BranchRef
}

// UnmarshalYAML accepts a plain sequence of branch references.
func (c *Correlation) UnmarshalYAML(node *yaml.Node) error {
	return node.Decode(&c.Branches)
}

// resolve checks every reference against the tree's branch sets.
func (c Correlation) resolve(t *SourceLogicTree) error {
	if len(c.Branches) < 2 {
		return fmt.Errorf("logictree: correlation needs at least two branches, got %d", len(c.Branches))
	}
	sets := map[string]struct{}{}
	for _, ref := range c.Branches {
		if _, dup := sets[ref.Set]; dup {
			return fmt.Errorf("logictree: correlation references branch set %q twice", ref.Set)
		}
		sets[ref.Set] = struct{}{}
		if !refExists(t, ref) {
			return fmt.Errorf("logictree: correlation references unknown branch %s", ref)
		}
	}
	return nil
}

func refExists(t *SourceLogicTree, ref BranchRef) bool {
	for _, bs := range t.BranchSets {
		if bs.Name != ref.Set {
			continue
		}
		for _, b := range bs.Branches {
			if b.ID == ref.Branch {
				return true
			}
		}
	}
	return false
}
