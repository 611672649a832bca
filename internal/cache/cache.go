package cache

import "github.com/vulntrack/vulntrack/internal/types"

// Delta describes how a fresh fetch differs from the cached one.
type Delta struct {
	Added   []types.Finding
	Removed []types.Finding
	// Changed holds the fresh copy of findings whose status moved.
	Changed []types.Finding
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare matches findings by ID. Output preserves the order of the slice
// each finding came from.
func Compare(prev, cur []types.Finding) Delta {
	before := make(map[string]types.Finding, len(prev))
	for _, f := range prev {
		before[f.ID()] = f
	}
	seen := make(map[string]bool, len(cur))
	var d Delta
	for _, f := range cur {
		id := f.ID()
		seen[id] = true
		old, ok := before[id]
		switch {
		case !ok:
			d.Added = append(d.Added, f)
		case old.Status != f.Status:
			d.Changed = append(d.Changed, f)
		}
	}
	for _, f := range prev {
		if !seen[f.ID()] {
			d.Removed = append(d.Removed, f)
		}
	}
	return d
}
