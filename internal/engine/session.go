package engine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// State is a session lifecycle state.
type State int

const (
	// StateNew is a session that was never activated.
	StateNew State = iota
	// StateActivated holds an input and may run Call.
	StateActivated
	// StatePassivated is cleared and ready for reuse.
	StatePassivated
	// StateDestroyed is terminal.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateActivated:
		return "ACTIVATED"
	case StatePassivated:
		return "PASSIVATED"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session runs the propagation loop for one trace at a time.
//
// Lifecycle:
//
//	NEW --Activate--> ACTIVATED --Passivate--> PASSIVATED --Activate--> ...
//	any --Destroy--> DESTROYED
//
// A session is reused across traces through the pool. It must be used by
// one goroutine at a time; the pool guarantees that.
type Session[I, R any] struct {
	id        string
	state     State
	defs      []*rules.Definition
	sc        *SessionContext[I]
	collector ResultCollector[I, R]

	// Outcome of the current activation, set by the first Call.
	called bool
	result R
	err    error
}

func newSession[I, R any](id string, defs []*rules.Definition, collector ResultCollector[I, R], storage Storage, maxExecutions int) *Session[I, R] {
	return &Session[I, R]{
		id:        id,
		state:     StateNew,
		defs:      defs,
		sc:        newSessionContext[I](id, storage, maxExecutions),
		collector: collector,
	}
}

// ID returns the session id.
func (s *Session[I, R]) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session[I, R]) State() State { return s.state }

// Context returns the session context.
func (s *Session[I, R]) Context() *SessionContext[I] { return s.sc }

// Activate binds the session to one trace and its variables.
// Fails with a SessionError if the session is already activated or
// destroyed.
func (s *Session[I, R]) Activate(input I, variables map[string]any) error {
	switch s.state {
	case StateNew, StatePassivated:
	case StateActivated:
		return s.lifecycleError("activate", "session is already activated")
	default:
		return s.lifecycleError("activate", "session is destroyed")
	}

	s.sc.activate(s.defs, input, variables)
	s.state = StateActivated
	s.resetOutcome()

	slog.Debug("session activated",
		"session_id", s.id,
		"rules", len(s.defs),
		"variables", len(variables),
	)
	return nil
}

// Passivate clears the context so the session can serve another trace.
func (s *Session[I, R]) Passivate() error {
	if s.state != StateActivated {
		return s.lifecycleError("passivate", "session is not activated")
	}
	s.sc.passivate()
	s.state = StatePassivated
	s.resetOutcome()
	return nil
}

// Destroy releases the session for good. It is valid in every state and
// idempotent.
func (s *Session[I, R]) Destroy() {
	if s.state == StateDestroyed {
		return
	}
	s.sc.passivate()
	s.state = StateDestroyed
	s.resetOutcome()
	sessionsTotal.WithLabelValues("destroyed").Inc()
}

// Call runs the propagation loop to its fixpoint and collects the result.
//
// The loop stops when no rule can fire. Any error or panic from a rule
// aborts the run; the session must then be destroyed. The context is
// checked between worklist steps, so a deadline bounds the run.
//
// Calling again on the same activation returns the first outcome without
// re-running.
func (s *Session[I, R]) Call(ctx context.Context) (R, error) {
	var zero R
	if s.state != StateActivated {
		return zero, s.lifecycleError("call", "session is not activated")
	}
	if s.called {
		return s.result, s.err
	}

	s.result, s.err = s.run(ctx)
	s.called = true
	return s.result, s.err
}

func (s *Session[I, R]) run(ctx context.Context) (R, error) {
	var zero R
	sc := s.sc

	root, err := sc.arena.Root(sc.input)
	if err != nil {
		return zero, fmt.Errorf("session %s: %w", s.id, err)
	}
	sc.root = root.ID

	work := newWorklist()
	work.Push(root.ID)

	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("session %s interrupted: %w", s.id, err)
		}
		id, ok := work.Pop()
		if !ok {
			break
		}
		tag := sc.arena.MustGet(id)

		bindings, err := match(sc.ruleSet, sc.arena, tag, sc.variables)
		if err != nil {
			return zero, fmt.Errorf("session %s: %w", s.id, err)
		}
		for _, in := range bindings {
			fresh, err := sc.executions.Record(in)
			if err != nil {
				return zero, fmt.Errorf("session %s: %w", s.id, err)
			}
			if !fresh {
				continue
			}
			produced, err := s.execute(in)
			if err != nil {
				return zero, err
			}
			work.Push(produced...)
		}
	}

	tagsPerDiagnosis.Observe(float64(sc.arena.Len()))
	slog.Debug("session reached fixpoint",
		"session_id", s.id,
		"tags", sc.arena.Len(),
		"executions", sc.executions.Len(),
	)

	res, err := s.collector.Collect(sc)
	if err != nil {
		return zero, fmt.Errorf("session %s: collect result: %w", s.id, err)
	}
	return res, nil
}

// execute runs one recorded binding: guards first, then the action.
// It returns the ids of the tags produced.
func (s *Session[I, R]) execute(in rules.Input) ([]ir.TagID, error) {
	sc := s.sc
	def := in.Definition()

	if err := sc.budget.Check(s.id); err != nil {
		slog.Error("execution budget exceeded",
			"session_id", s.id,
			"rule", def.Name(),
			"executions", sc.budget.Current(),
			"limit", sc.budget.Limit(),
		)
		return nil, err
	}

	for _, v := range def.Variables() {
		if v.Optional {
			continue
		}
		if _, ok := sc.variables[v.Name]; !ok {
			return nil, NewMissingVariableError(s.id, def.Name(), v.Name)
		}
	}

	out := ir.RuleOutput{
		Rule:      def.Name(),
		TagType:   def.Produces(),
		InputTags: in.Key(),
	}

	for _, cond := range def.Conditions() {
		ok, err := callPredicate(cond.Predicate, in.Restrict(cond.Reads))
		if err != nil {
			return nil, s.ruleError(def.Name(), ErrCodeConditionFailed,
				fmt.Sprintf("condition %q", cond.Name), err)
		}
		if !ok {
			out.Seq = sc.clock.Next()
			out.ConditionFailures = []ir.ConditionFailure{{Condition: cond.Name, Hint: cond.Hint}}
			sc.storage.Store(out)
			ruleExecutionsTotal.WithLabelValues(def.Name(), "rejected").Inc()

			slog.Debug("condition failed",
				"session_id", s.id,
				"rule", def.Name(),
				"condition", cond.Name,
				"seq", out.Seq,
			)
			return nil, nil
		}
	}

	value, err := callAction(def.Action().Func, in)
	if err != nil {
		return nil, s.ruleError(def.Name(), ErrCodeActionFailed, "action", err)
	}
	values, err := outputValues(def.Action().Arity, value)
	if err != nil {
		return nil, s.ruleError(def.Name(), ErrCodeInvalidOutput, "action result", err)
	}

	bound := in.Bound()
	parents := make([]ir.TagID, len(bound))
	for i, t := range bound {
		parents[i] = t.ID
	}

	for _, v := range values {
		t, err := sc.arena.New(def.Produces(), v, parents...)
		if err != nil {
			return nil, s.ruleError(def.Name(), ErrCodeInvalidOutput, "allocate tag", err)
		}
		out.Tags = append(out.Tags, t.ID)
	}
	out.Seq = sc.clock.Next()
	sc.storage.Store(out)
	ruleExecutionsTotal.WithLabelValues(def.Name(), "fired").Inc()

	slog.Debug("rule fired",
		"session_id", s.id,
		"rule", def.Name(),
		"tag_type", def.Produces(),
		"tags", len(out.Tags),
		"seq", out.Seq,
	)
	return out.Tags, nil
}

// outputValues turns an action result into tag values.
// SINGLE: nil produces no tag, anything else one tag.
// MULTIPLE: nil produces no tag, a slice or array one tag per element.
func outputValues(arity rules.Arity, value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	if arity == rules.Single {
		return []any{value}, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%s action returned %T, want a slice or array", rules.Multiple, value)
	}
	values := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		values = append(values, rv.Index(i).Interface())
	}
	return values, nil
}

// panicError carries a value recovered from a rule function.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func callPredicate(p rules.Predicate, in rules.Input) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return p(in)
}

func callAction(fn rules.ActionFunc, in rules.Input) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return fn(in)
}

func (s *Session[I, R]) ruleError(rule string, code RuntimeErrorCode, what string, err error) *RuntimeError {
	if pe, ok := err.(*panicError); ok {
		code = ErrCodePanic
		err = pe
	}
	return &RuntimeError{
		Code:      code,
		Message:   what + " failed",
		SessionID: s.id,
		Rule:      rule,
		Err:       err,
	}
}

func (s *Session[I, R]) lifecycleError(op, msg string) *SessionError {
	return &SessionError{SessionID: s.id, Op: op, State: s.state, Message: msg}
}

func (s *Session[I, R]) resetOutcome() {
	var zero R
	s.called = false
	s.result = zero
	s.err = nil
}
