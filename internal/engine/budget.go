package engine

// ExecutionBudget caps the number of rule executions in one Call.
//
// Guards on self-recursive rules are the primary termination mechanism.
// The budget is an opt-in backstop for rule sets whose guards are missing
// or wrong: when it runs out the diagnosis aborts with BUDGET_EXCEEDED.
//
// Every attempted execution counts, including ones rejected by a guard.
// A limit of zero disables the budget.
type ExecutionBudget struct {
	limit   int
	current int
}

// NewExecutionBudget creates a budget with the given limit (0 = unlimited).
func NewExecutionBudget(limit int) *ExecutionBudget {
	if limit < 0 {
		limit = 0
	}
	return &ExecutionBudget{limit: limit}
}

// Check counts one execution and validates it against the limit.
func (b *ExecutionBudget) Check(sessionID string) error {
	b.current++
	if b.limit > 0 && b.current > b.limit {
		return NewBudgetError(sessionID, b.current, b.limit)
	}
	return nil
}

// Reset sets the counter back to zero for the next activation.
func (b *ExecutionBudget) Reset() {
	b.current = 0
}

// Current returns the number of executions counted so far.
func (b *ExecutionBudget) Current() int {
	return b.current
}

// Limit returns the configured limit.
func (b *ExecutionBudget) Limit() int {
	return b.limit
}
