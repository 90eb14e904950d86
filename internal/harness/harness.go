package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/rootcause/internal/apm"
	"github.com/roach88/rootcause/internal/engine"
	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
	"github.com/roach88/rootcause/internal/store"
	"github.com/roach88/rootcause/internal/testutil"
)

// Result is the outcome of one scenario.
type Result struct {
	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// SessionID names the session that ran the diagnosis.
	SessionID string `json:"session_id,omitempty"`

	// Outputs are the rule outputs as read back from the store.
	Outputs []ir.RuleOutput `json:"outputs"`

	// EndTags counts the stored end tags by type.
	EndTags map[string]int `json:"end_tags"`

	// Problems are the problems reported for the diagnosis.
	Problems []apm.Problem `json:"problems"`

	// ErrorCode is the runtime error code of an aborted diagnosis.
	ErrorCode string `json:"error_code,omitempty"`
}

func newResult() *Result {
	return &Result{
		Pass:     true,
		Errors:   []string{},
		Outputs:  []ir.RuleOutput{},
		EndTags:  map[string]int{},
		Problems: []apm.Problem{},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes a scenario against a rule set.
//
// Each scenario runs on a fresh engine and a fresh in-memory database.
// The returned error covers harness failures (invalid rule set, unreadable
// trace, store errors); a diagnosis that aborts or misses an expectation
// is a failed Result, not an error.
func Run(ctx context.Context, scenario *Scenario, descs []*rules.Descriptor) (*Result, error) {
	trace, err := scenario.LoadTrace()
	if err != nil {
		return nil, fmt.Errorf("load trace: %w", err)
	}

	opts := []engine.Option{
		engine.WithPoolSize(1),
		engine.WithSessionIDs(testutil.NewFixedSessionGenerator(scenario.SessionID)),
	}
	if scenario.MaxExecutions > 0 {
		opts = append(opts, engine.WithMaxExecutions(scenario.MaxExecutions))
	}
	eng, err := engine.NewDefault[*apm.InvocationSequence](descs, opts...)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	defer func() {
		if cerr := eng.Close(ctx); cerr != nil {
			slog.Warn("close engine", "scenario", scenario.Name, "error", cerr)
		}
	}()

	result := newResult()
	res, err := eng.Diagnose(ctx, trace, scenario.Variables)
	if err != nil {
		code := engine.RuntimeCode(err)
		if code == "" {
			return nil, fmt.Errorf("diagnose: %w", err)
		}
		result.ErrorCode = string(code)
		checkError(result, scenario.Expect, err)
		return result, nil
	}
	result.SessionID = res.SessionID
	result.Problems = apm.Problems(res)
	if result.Problems == nil {
		result.Problems = []apm.Problem{}
	}

	stored, err := roundTrip(ctx, scenario, res)
	if err != nil {
		return nil, err
	}
	result.Outputs = stored.Outputs
	for _, id := range stored.EndTags {
		result.EndTags[stored.Tags[id].Type]++
	}

	checkError(result, scenario.Expect, nil)
	for _, msg := range EvaluateExpectations(result, scenario.Expect) {
		result.AddError(msg)
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"session_id", result.SessionID,
		"outputs", len(result.Outputs),
		"pass", result.Pass,
	)
	return result, nil
}

// roundTrip writes the diagnosis to an in-memory store and reads it back.
func roundTrip(ctx context.Context, scenario *Scenario, res *apm.Result) (*store.Diagnosis, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	d, err := store.NewDiagnosis(scenario.Name, scenario.Variables, res)
	if err != nil {
		return nil, err
	}
	if _, err := st.WriteDiagnosis(ctx, d); err != nil {
		return nil, fmt.Errorf("store diagnosis: %w", err)
	}
	stored, err := st.ReadDiagnosis(ctx, scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("read back diagnosis: %w", err)
	}
	return stored, nil
}

func checkError(result *Result, expect Expect, err error) {
	switch {
	case err != nil && expect.Error == "":
		result.AddError(fmt.Sprintf("diagnosis aborted: %v", err))
	case err != nil && result.ErrorCode != expect.Error:
		result.AddError(fmt.Sprintf("expected error %s, got %s: %v", expect.Error, result.ErrorCode, err))
	case err == nil && expect.Error != "":
		result.AddError(fmt.Sprintf("expected error %s, diagnosis completed", expect.Error))
	}
}
