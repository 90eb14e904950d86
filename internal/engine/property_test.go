package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// chainRules builds an acyclic rule set: rule i consumes the type
// produced by rule parents[i] (or the root for i == 0) and produces T<i>.
// Odd rules fan out into two siblings.
func chainRules(k int, picks []int) ([]*rules.Descriptor, []int) {
	parents := make([]int, k)
	descs := make([]*rules.Descriptor, k)
	for i := 0; i < k; i++ {
		input := ir.RootTagType
		parents[i] = -1
		if i > 0 {
			parents[i] = picks[i] % i
			input = fmt.Sprintf("T%d", parents[i])
		}
		produces := fmt.Sprintf("T%d", i)
		d := rules.New(fmt.Sprintf("rule-%d", i)).Input(input)
		if i%2 == 1 {
			d.ActionMultiple(produces, func(rules.Input) (any, error) { return []string{"l", "r"}, nil })
		} else {
			d.Action(produces, func(rules.Input) (any, error) { return "v", nil })
		}
		descs[i] = d
	}
	return descs, parents
}

func runDefault(descs []*rules.Descriptor) (*DefaultResult[string], error) {
	s, err := NewSessionFactory(DefaultConfiguration[string](descs...)).MakeObject(context.Background())
	if err != nil {
		return nil, err
	}
	if err := s.Activate("INPUT", nil); err != nil {
		return nil, err
	}
	return s.Call(context.Background())
}

// TestEndTagsAreUnconsumedTypesProperty: for any acyclic rule set the run
// terminates and the end tag types are exactly the types no rule consumes.
func TestEndTagsAreUnconsumedTypesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("end tag types are never consumed", prop.ForAll(
		func(k int, picks []int) bool {
			descs, parents := chainRules(k, picks)
			res, err := runDefault(descs)
			if err != nil {
				return false
			}

			consumed := make(map[int]bool)
			for _, p := range parents {
				consumed[p] = true
			}
			var want []string
			for i := 0; i < k; i++ {
				if !consumed[i] {
					want = append(want, fmt.Sprintf("T%d", i))
				}
			}
			slices.Sort(want)
			return slices.Equal(want, res.EndTagTypes())
		},
		gen.IntRange(1, 7),
		gen.SliceOfN(7, gen.IntRange(0, 1000)),
	))

	properties.TestingRun(t)
}

// TestAtMostOnceExecutionProperty: no (rule, tag tuple) pair runs twice
// in one Call, including under fan-out, fan-in and guarded recursion.
func TestAtMostOnceExecutionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("executions are unique", prop.ForAll(
		func(k int, picks []int, depth int) bool {
			descs, _ := chainRules(k, picks)
			if k > 1 {
				descs = append(descs, rules.New("join").Input("T0").Input(fmt.Sprintf("T%d", k-1)).
					Action("Joined", func(rules.Input) (any, error) { return "j", nil }))
			}
			descs = append(descs,
				rules.New("refine").Input("T0").
					Condition("bounded", func(in rules.Input) (bool, error) {
						v, _ := rules.ValueAs[string](in, "T0")
						return strings.Count(v, "+") < depth, nil
					}).
					Action("T0", appendTo("T0", "+")),
			)
			res, err := runDefault(descs)
			if err != nil {
				return false
			}

			seen := make(map[string]bool)
			for _, out := range res.Outputs {
				key := ir.MustExecutionKey(out.Rule, out.InputTags)
				if seen[key] {
					return false
				}
				seen[key] = true
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.SliceOfN(6, gen.IntRange(0, 1000)),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

// TestFanInCorrelationProperty: a two-input rule only binds tags on one
// lineage path, even when both types exist on unrelated branches.
func TestFanInCorrelationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("joined inputs share lineage", prop.ForAll(
		func(branches int) bool {
			descs := []*rules.Descriptor{
				rules.New("branch").Input(ir.RootTagType).
					ActionMultiple("Branch", func(rules.Input) (any, error) {
						out := make([]int, branches)
						for i := range out {
							out[i] = i
						}
						return out, nil
					}),
				rules.New("leaf").Input("Branch").
					Action("Leaf", func(in rules.Input) (any, error) {
						v, _ := in.Value("Branch")
						return v, nil
					}),
				rules.New("join").Input("Branch").Input("Leaf").
					Action("Joined", func(in rules.Input) (any, error) {
						b, _ := in.Value("Branch")
						l, _ := in.Value("Leaf")
						return b == l, nil
					}),
			}
			res, err := runDefault(descs)
			if err != nil {
				return false
			}

			joined := res.EndTags["Joined"]
			if len(joined) != branches {
				return false
			}
			for _, j := range joined {
				if j.Value != true {
					return false
				}
				branch, leaf := j.Parents[0], j.Parents[1]
				if !slices.Contains(res.arena.Ancestors(leaf), branch) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
