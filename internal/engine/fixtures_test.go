package engine

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

const recursionMarker = "#"

func appendTo(tagType, suffix string) rules.ActionFunc {
	return func(in rules.Input) (any, error) {
		v, _ := rules.ValueAs[string](in, tagType)
		return v + suffix, nil
	}
}

func rootRule() *rules.Descriptor {
	return rules.New("root").
		Input(ir.RootTagType).
		Action("RootTag", appendTo(ir.RootTagType, "RootInsight"))
}

func simpleRule() *rules.Descriptor {
	return rules.New("simple").
		Input("RootTag").
		Action("SimpleTag", appendTo("RootTag", "SimpleInsight"))
}

func twoInputsRule() *rules.Descriptor {
	return rules.New("two-inputs").
		Input("RootTag").
		Input("SimpleTag").
		Condition("simple-contains-root", func(in rules.Input) (bool, error) {
			root, _ := rules.ValueAs[string](in, "RootTag")
			simple, _ := rules.ValueAs[string](in, "SimpleTag")
			return strings.Contains(simple, root), nil
		}, rules.WithHint("simple insight must extend the root insight")).
		Action("TwoInputsTag", func(rules.Input) (any, error) { return "TwoInputs", nil })
}

func twoOutputsRule() *rules.Descriptor {
	return rules.New("two-outputs").
		Input("RootTag").
		ActionMultiple("TwoOutputsTag", func(in rules.Input) (any, error) {
			v, _ := rules.ValueAs[string](in, "RootTag")
			return []string{v + "INSIGHT_1", v + "INSIGHT_2"}, nil
		})
}

func simpleLeafRule() *rules.Descriptor {
	return rules.New("simple-leaf").
		Input("TwoOutputsTag").
		Action("SimpleLeafTag", appendTo("TwoOutputsTag", "LeafInsight"))
}

func recursiveRule() *rules.Descriptor {
	return rules.New("recursive").
		Input("RootTag").
		Condition("below-three", func(in rules.Input) (bool, error) {
			v, _ := rules.ValueAs[string](in, "RootTag")
			return strings.Count(v, recursionMarker) < 3, nil
		}, rules.WithHint("recursion stops after three refinements")).
		Action("RootTag", appendTo("RootTag", recursionMarker))
}

func newTestSession(t *testing.T, descs ...*rules.Descriptor) *Session[string, *DefaultResult[string]] {
	t.Helper()
	f := NewSessionFactory(DefaultConfiguration[string](descs...),
		WithSessionIDs(NewFixedGenerator("session-1")))
	s, err := f.MakeObject(context.Background())
	require.NoError(t, err)
	return s
}

func diagnose(t *testing.T, input string, vars map[string]any, descs ...*rules.Descriptor) *DefaultResult[string] {
	t.Helper()
	s := newTestSession(t, descs...)
	require.NoError(t, s.Activate(input, vars))
	res, err := s.Call(context.Background())
	require.NoError(t, err)
	return res
}

func endValues(res *DefaultResult[string], tagType string) []string {
	var out []string
	for _, t := range res.EndTags[tagType] {
		out = append(out, t.Value.(string))
	}
	slices.Sort(out)
	return out
}
