package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/rootcause/internal/apm"
	"github.com/roach88/rootcause/internal/ir"
)

// AssertionError describes one failed expectation.
type AssertionError struct {
	Type     string // expectation kind, e.g. "end_tags"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateExpectations checks a completed diagnosis and returns one
// message per failed expectation. The error expectation is checked by Run.
func EvaluateExpectations(result *Result, expect Expect) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if expect.EndTags != nil {
		add(assertEndTags(result.EndTags, expect.EndTags))
	}
	if expect.ConditionFailures != nil {
		add(assertConditionFailures(result.Outputs, expect.ConditionFailures))
	}
	if expect.Problems != nil {
		add(assertProblems(result.Problems, expect.Problems))
	}
	return errs
}

func assertEndTags(actual, expected map[string]int) error {
	for _, tagType := range sortedUnion(actual, expected) {
		if actual[tagType] != expected[tagType] {
			return &AssertionError{
				Type:     "end_tags",
				Expected: formatCounts(expected),
				Actual:   formatCounts(actual),
			}
		}
	}
	return nil
}

func assertConditionFailures(outputs []ir.RuleOutput, expected []ExpectedFailure) error {
	var actual []ExpectedFailure
	for _, out := range outputs {
		for _, cf := range out.ConditionFailures {
			actual = append(actual, ExpectedFailure{Rule: out.Rule, Condition: cf.Condition})
		}
	}
	if slices.Equal(actual, expected) {
		return nil
	}
	return &AssertionError{
		Type:     "condition_failures",
		Expected: formatFailures(expected),
		Actual:   formatFailures(actual),
	}
}

func assertProblems(actual []apm.Problem, expected []ExpectedProblem) error {
	if len(actual) != len(expected) {
		return &AssertionError{
			Type:     "problems",
			Expected: fmt.Sprintf("%d problem(s)", len(expected)),
			Actual:   fmt.Sprintf("%d: %s", len(actual), formatProblems(actual)),
		}
	}
	for i, want := range expected {
		if msg := matchProblem(actual[i], want); msg != "" {
			return &AssertionError{
				Type:     fmt.Sprintf("problems[%d]", i),
				Expected: msg,
				Actual:   formatProblem(actual[i]),
			}
		}
	}
	return nil
}

// matchProblem returns a description of the first mismatching field, or "".
func matchProblem(got apm.Problem, want ExpectedProblem) string {
	switch {
	case got.Method != want.Method:
		return "method " + want.Method
	case want.Structure != "" && got.Structure != want.Structure:
		return "structure " + string(want.Structure)
	case want.Depth != nil && got.Depth != *want.Depth:
		return fmt.Sprintf("depth %d", *want.Depth)
	case want.Calls != nil && got.Calls != *want.Calls:
		return fmt.Sprintf("calls %d", *want.Calls)
	case want.Context != "" && got.ContextMethod != want.Context:
		return "context " + want.Context
	}
	return ""
}

func sortedUnion(a, b map[string]int) []string {
	keys := slices.Collect(maps.Keys(a))
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func formatCounts(m map[string]int) string {
	if len(m) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatFailures(fs []ExpectedFailure) string {
	if len(fs) == 0 {
		return "none"
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.Rule + "/" + f.Condition
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatProblem(p apm.Problem) string {
	return fmt.Sprintf("%s %s depth=%d calls=%d context=%s", p.Method, p.Structure, p.Depth, p.Calls, p.ContextMethod)
}

func formatProblems(ps []apm.Problem) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = formatProblem(p)
	}
	return "[" + strings.Join(parts, "; ") + "]"
}
