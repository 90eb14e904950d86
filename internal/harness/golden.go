package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// Snapshot renders a result as canonical JSON for golden comparison.
//
// Canonical JSON has no floats, so durations are printed with
// time.Duration.String and shares with three decimals.
func Snapshot(name string, result *Result) ([]byte, error) {
	outputs := make([]any, len(result.Outputs))
	for i, out := range result.Outputs {
		m := map[string]any{
			"seq":        out.Seq,
			"rule":       out.Rule,
			"tag_type":   out.TagType,
			"input_tags": nonNil(out.InputTags),
			"tags":       nonNil(out.Tags),
		}
		if out.Failed() {
			failures := make([]any, len(out.ConditionFailures))
			for j, cf := range out.ConditionFailures {
				failures[j] = map[string]any{"condition": cf.Condition, "hint": cf.Hint}
			}
			m["condition_failures"] = failures
		}
		outputs[i] = m
	}

	endTags := make(map[string]any, len(result.EndTags))
	for tagType, n := range result.EndTags {
		endTags[tagType] = n
	}

	problems := make([]any, len(result.Problems))
	for i, p := range result.Problems {
		problems[i] = map[string]any{
			"method":         p.Method,
			"structure":      string(p.Structure),
			"depth":          p.Depth,
			"calls":          p.Calls,
			"exclusive_time": p.ExclusiveTime.String(),
			"share":          fmt.Sprintf("%.3f", p.Share),
			"context":        fmt.Sprintf("%s (%s)", p.ContextMethod, p.ContextID),
		}
	}

	snapshot := map[string]any{
		"scenario": name,
		"outputs":  outputs,
		"end_tags": endTags,
		"problems": problems,
	}
	if result.SessionID != "" {
		snapshot["session_id"] = result.SessionID
	}
	if result.ErrorCode != "" {
		snapshot["error"] = result.ErrorCode
	}
	return ir.MarshalCanonical(snapshot)
}

func nonNil(ids []ir.TagID) []ir.TagID {
	if ids == nil {
		return []ir.TagID{}
	}
	return ids
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, descs []*rules.Descriptor) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, descs)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden
// file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
