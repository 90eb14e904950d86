package engine

import (
	"fmt"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// match returns every binding of rule definitions that the tag makes
// ready, in rule declaration order.
//
// The tag fills the required slot of its own type. Every other slot is
// filled from tags of the slot's type on the tag's ancestor chain, so all
// tags of one binding lie on a single lineage path and the shallowest of
// them is their common ancestor. Tags from unrelated branches never
// combine.
//
// A required slot without a correlated tag means the rule is not ready.
// An optional slot without one is bound absent. Several candidates for a
// slot yield one binding per combination.
//
// Bindings are not filtered against the execution log here; the caller
// records each one before running it.
func match(defs []*rules.Definition, arena *ir.Arena, t ir.Tag, vars map[string]any) ([]rules.Input, error) {
	var out []rules.Input

	var lineage []ir.Tag
	lineageLoaded := false

	for _, def := range defs {
		if !def.TriggeredBy(t.Type) {
			continue
		}
		trigger, _ := def.Slot(t.Type)
		specs := def.Inputs()

		if len(specs) > 1 && !lineageLoaded {
			lineage = ancestorsOf(arena, t.ID)
			lineageLoaded = true
		}

		candidates := make([][]ir.Tag, len(specs))
		ready := true
		for i, spec := range specs {
			if i == trigger {
				candidates[i] = []ir.Tag{t}
				continue
			}
			for _, anc := range lineage {
				if anc.Type == spec.TagType {
					candidates[i] = append(candidates[i], anc)
				}
			}
			if len(candidates[i]) == 0 {
				if !spec.Optional {
					ready = false
					break
				}
				candidates[i] = []ir.Tag{rules.Absent(spec.TagType)}
			}
		}
		if !ready {
			continue
		}

		for _, combo := range cartesian(candidates) {
			in, err := rules.Bind(def, combo, vars)
			if err != nil {
				return nil, fmt.Errorf("bind %s: %w", def.Name(), err)
			}
			out = append(out, in)
		}
	}
	return out, nil
}

func ancestorsOf(arena *ir.Arena, id ir.TagID) []ir.Tag {
	ids := arena.Ancestors(id)
	out := make([]ir.Tag, len(ids))
	for i, a := range ids {
		out[i] = arena.MustGet(a)
	}
	return out
}

// cartesian expands per-slot candidates into bindings. Earlier slots vary
// slowest, so the result order is deterministic.
func cartesian(candidates [][]ir.Tag) [][]ir.Tag {
	combos := [][]ir.Tag{{}}
	for _, slot := range candidates {
		next := make([][]ir.Tag, 0, len(combos)*len(slot))
		for _, prefix := range combos {
			for _, t := range slot {
				combo := make([]ir.Tag, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, t))
			}
		}
		combos = next
	}
	return combos
}
