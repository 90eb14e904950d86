package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/apm"
	"github.com/roach88/rootcause/internal/ir"
)

func intPtr(n int) *int { return &n }

func TestAssertEndTags(t *testing.T) {
	assert.NoError(t, assertEndTags(map[string]int{"A": 2}, map[string]int{"A": 2}))
	assert.NoError(t, assertEndTags(map[string]int{}, map[string]int{"A": 0}))

	err := assertEndTags(map[string]int{"A": 2, "B": 1}, map[string]int{"A": 2})
	require.Error(t, err)
	assert.Equal(t, "end_tags: expected {A=2}, got {A=2, B=1}", err.Error())

	err = assertEndTags(map[string]int{}, map[string]int{"A": 1})
	require.Error(t, err)
	assert.Equal(t, "end_tags: expected {A=1}, got {}", err.Error())
}

func TestAssertConditionFailures(t *testing.T) {
	outputs := []ir.RuleOutput{
		{Seq: 1, Rule: "a", Tags: []ir.TagID{1}},
		{Seq: 2, Rule: "b", ConditionFailures: []ir.ConditionFailure{{Condition: "c1"}}},
	}

	assert.NoError(t, assertConditionFailures(outputs, []ExpectedFailure{{Rule: "b", Condition: "c1"}}))

	err := assertConditionFailures(outputs, []ExpectedFailure{})
	require.Error(t, err)
	assert.Equal(t, "condition_failures: expected none, got [b/c1]", err.Error())

	assert.NoError(t, assertConditionFailures(outputs[:1], []ExpectedFailure{}))
}

func TestAssertProblems(t *testing.T) {
	actual := []apm.Problem{
		{Method: "Dao.query", Structure: apm.StructureIterative, Depth: 1, Calls: 4, ContextMethod: "Controller.handle"},
	}

	t.Run("match", func(t *testing.T) {
		err := assertProblems(actual, []ExpectedProblem{
			{Method: "Dao.query", Structure: apm.StructureIterative, Depth: intPtr(1), Calls: intPtr(4), Context: "Controller.handle"},
		})
		assert.NoError(t, err)
	})

	t.Run("unset fields are ignored", func(t *testing.T) {
		assert.NoError(t, assertProblems(actual, []ExpectedProblem{{Method: "Dao.query"}}))
	})

	t.Run("count mismatch", func(t *testing.T) {
		err := assertProblems(actual, []ExpectedProblem{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 0 problem(s)")
	})

	t.Run("field mismatch", func(t *testing.T) {
		err := assertProblems(actual, []ExpectedProblem{{Method: "Dao.query", Calls: intPtr(3)}})
		require.Error(t, err)
		assert.Equal(t,
			"problems[0]: expected calls 3, got Dao.query ITERATIVE depth=1 calls=4 context=Controller.handle",
			err.Error())
	})
}

func TestEvaluateExpectations_SkipsUnset(t *testing.T) {
	result := newResult()
	result.EndTags["A"] = 1

	assert.Empty(t, EvaluateExpectations(result, Expect{Error: "PANIC"}))

	errs := EvaluateExpectations(result, Expect{EndTags: map[string]int{}, Problems: []ExpectedProblem{{Method: "m"}}})
	assert.Len(t, errs, 2)
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: "end_tags", Expected: "{}", Actual: "{A=1}"}
	assert.Equal(t, "end_tags: expected {}, got {A=1}", err.Error())
}
