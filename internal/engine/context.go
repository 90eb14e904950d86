package engine

import (
	"maps"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// SessionContext is the mutable state of one session.
//
// Activate populates it, Call fills executions, storage and the tag
// arena, Passivate clears it back to empty. The executions log is always
// empty right after activation.
//
// Result collectors read it through the accessor methods; it must never
// be shared between goroutines.
type SessionContext[I any] struct {
	sessionID  string
	ruleSet    []*rules.Definition
	input      I
	variables  map[string]any
	executions *ExecutionLog
	storage    Storage
	arena      *ir.Arena
	root       ir.TagID
	clock      *Clock
	budget     *ExecutionBudget
	active     bool
}

func newSessionContext[I any](sessionID string, storage Storage, maxExecutions int) *SessionContext[I] {
	return &SessionContext[I]{
		sessionID:  sessionID,
		executions: NewExecutionLog(),
		storage:    storage,
		arena:      ir.NewArena(),
		root:       ir.NoTag,
		clock:      NewClock(),
		budget:     NewExecutionBudget(maxExecutions),
	}
}

func (c *SessionContext[I]) activate(ruleSet []*rules.Definition, input I, variables map[string]any) {
	c.ruleSet = ruleSet
	c.input = input
	c.variables = maps.Clone(variables)
	if c.variables == nil {
		c.variables = map[string]any{}
	}
	c.executions.Clear()
	c.storage.Clear()
	c.arena = ir.NewArena()
	c.root = ir.NoTag
	c.clock.Reset()
	c.budget.Reset()
	c.active = true
}

func (c *SessionContext[I]) passivate() {
	var zero I
	c.ruleSet = nil
	c.input = zero
	c.variables = nil
	c.executions.Clear()
	c.storage.Clear()
	// A fresh arena, not a cleared one: results handed out earlier keep
	// a reference to the old arena for lineage queries.
	c.arena = ir.NewArena()
	c.root = ir.NoTag
	c.clock.Reset()
	c.budget.Reset()
	c.active = false
}

// SessionID returns the id of the owning session.
func (c *SessionContext[I]) SessionID() string { return c.sessionID }

// RuleSet returns the active rule definitions in declaration order.
// It is empty while the session is not activated.
func (c *SessionContext[I]) RuleSet() []*rules.Definition { return c.ruleSet }

// Input returns the trace being diagnosed.
func (c *SessionContext[I]) Input() I { return c.input }

// Variables returns a copy of the session variables.
func (c *SessionContext[I]) Variables() map[string]any { return maps.Clone(c.variables) }

// Executions returns the execution log of the current activation.
func (c *SessionContext[I]) Executions() *ExecutionLog { return c.executions }

// Storage returns the rule output storage.
func (c *SessionContext[I]) Storage() Storage { return c.storage }

// Arena returns the tag arena of the current activation.
func (c *SessionContext[I]) Arena() *ir.Arena { return c.arena }

// Root returns the root tag id, or ir.NoTag before Call.
func (c *SessionContext[I]) Root() ir.TagID { return c.root }

// Active reports whether the context holds an activation.
func (c *SessionContext[I]) Active() bool { return c.active }
