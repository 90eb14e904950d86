package apm

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// Tag types produced by the APM rule set.
const (
	TagGlobalContext        = "GlobalContext"
	TagTimeWastingOperation = "TimeWastingOperation"
	TagProblemContext       = "ProblemContext"
	TagRootCause            = "RootCause"
	TagCauseStructure       = "CauseStructure"
)

// Rule, action and predicate names.
const (
	RuleGlobalContext         = "global-context"
	RuleTimeWastingOperations = "time-wasting-operations"
	RuleProblemContext        = "problem-context"
	RuleRootCauses            = "root-causes"
	RuleCauseStructure        = "cause-structure"

	CheckHasTiming       = "has-timing"
	CheckExceedsBaseline = "exceeds-baseline"
)

// Session variables.
const (
	// VarBaseline is the trace duration below which a trace is not
	// worth diagnosing. Required.
	VarBaseline = "baseline"
	// VarSignificance is the share of the trace duration an operation
	// must account for to be reported.
	VarSignificance = "significance"
)

// DefaultSignificance is used when the significance variable is unset.
const DefaultSignificance = 0.2

// Operation is a method that wasted a significant share of the trace.
type Operation struct {
	Method        string        `json:"method"`
	ExclusiveTime time.Duration `json:"exclusive_time"`
	Share         float64       `json:"share"`
	Calls         int           `json:"calls"`
}

// ProblemContext is the lowest invocation containing every call of a
// time wasting operation.
type ProblemContext struct {
	Method     string              `json:"method"`
	Invocation *InvocationSequence `json:"invocation"`
}

// Cause lists the calls of the operation within its problem context.
type Cause struct {
	Method        string                `json:"method"`
	Invocations   []*InvocationSequence `json:"invocations"`
	ExclusiveTime time.Duration         `json:"exclusive_time"`
}

// StructureKind classifies how the calls of a root cause relate.
type StructureKind string

const (
	// StructureSingle is one call.
	StructureSingle StructureKind = "SINGLE"
	// StructureIterative is several sibling-like calls, e.g. a loop.
	StructureIterative StructureKind = "ITERATIVE"
	// StructureRecursive is a call nested in a call of the same method.
	StructureRecursive StructureKind = "RECURSIVE"
)

// Structure is the end finding of a diagnosis.
type Structure struct {
	Method string        `json:"method"`
	Kind   StructureKind `json:"kind"`
	Depth  int           `json:"depth"`
	Calls  int           `json:"calls"`
}

// Catalog returns the named actions and predicates of the APM rule set,
// for rule files that reference them by name.
func Catalog() *rules.Catalog {
	cat := rules.NewCatalog()
	cat.Actions[RuleGlobalContext] = globalContext
	cat.Actions[RuleTimeWastingOperations] = timeWastingOperations
	cat.Actions[RuleProblemContext] = problemContext
	cat.Actions[RuleRootCauses] = rootCauses
	cat.Actions[RuleCauseStructure] = causeStructure
	cat.Predicates[CheckHasTiming] = hasTiming
	cat.Predicates[CheckExceedsBaseline] = exceedsBaseline
	return cat
}

// DefaultDescriptors returns the APM rule set in declaration order.
func DefaultDescriptors() []*rules.Descriptor {
	return []*rules.Descriptor{
		rules.New(RuleGlobalContext).
			Describe("Wraps a trace that carries timing data.").
			Input(ir.RootTagType).
			Condition(CheckHasTiming, hasTiming,
				rules.WithHint("the trace has no duration, nothing can be attributed")).
			Action(TagGlobalContext, globalContext),

		rules.New(RuleTimeWastingOperations).
			Describe("Finds methods whose exclusive time is a significant share of the trace.").
			Input(TagGlobalContext).
			Condition(CheckExceedsBaseline, exceedsBaseline,
				rules.WithHint("the trace is faster than the baseline")).
			Variable(VarBaseline).
			OptionalVariable(VarSignificance, DefaultSignificance).
			ActionMultiple(TagTimeWastingOperation, timeWastingOperations),

		rules.New(RuleProblemContext).
			Describe("Finds the lowest invocation that contains every call of an operation.").
			Input(TagTimeWastingOperation).
			Input(TagGlobalContext).
			Action(TagProblemContext, problemContext),

		rules.New(RuleRootCauses).
			Describe("Collects the calls of an operation within its problem context.").
			Input(TagProblemContext).
			Input(TagTimeWastingOperation).
			Action(TagRootCause, rootCauses),

		rules.New(RuleCauseStructure).
			Describe("Classifies root cause calls as single, iterative or recursive.").
			Input(TagRootCause).
			Action(TagCauseStructure, causeStructure),
	}
}

func hasTiming(in rules.Input) (bool, error) {
	seq, err := trace(in, ir.RootTagType)
	if err != nil {
		return false, err
	}
	return seq.Duration > 0, nil
}

func exceedsBaseline(in rules.Input) (bool, error) {
	seq, err := trace(in, TagGlobalContext)
	if err != nil {
		return false, err
	}
	baseline, err := durationVar(in, VarBaseline)
	if err != nil {
		return false, err
	}
	return seq.Duration >= baseline, nil
}

func globalContext(in rules.Input) (any, error) {
	return trace(in, ir.RootTagType)
}

// timeWastingOperations sums exclusive time per method. Operations are
// ordered by exclusive time, longest first, then by method name.
func timeWastingOperations(in rules.Input) (any, error) {
	seq, err := trace(in, TagGlobalContext)
	if err != nil {
		return nil, err
	}
	significance, err := floatVar(in, VarSignificance)
	if err != nil {
		return nil, err
	}

	byMethod := make(map[string]*Operation)
	seq.Walk(func(n *InvocationSequence, _ int) bool {
		op, ok := byMethod[n.Method]
		if !ok {
			op = &Operation{Method: n.Method}
			byMethod[n.Method] = op
		}
		op.ExclusiveTime += n.ExclusiveTime()
		op.Calls++
		return true
	})

	total := float64(seq.Duration)
	ops := []Operation{}
	for _, op := range byMethod {
		op.Share = float64(op.ExclusiveTime) / total
		if op.ExclusiveTime > 0 && op.Share >= significance {
			ops = append(ops, *op)
		}
	}
	slices.SortFunc(ops, func(a, b Operation) int {
		if c := cmp.Compare(b.ExclusiveTime, a.ExclusiveTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})
	return ops, nil
}

// problemContext is the lowest common ancestor of every call. When that
// is itself a call of the operation, its caller is used instead so the
// context shows who invoked the operation.
func problemContext(in rules.Input) (any, error) {
	op, err := valueOf[Operation](in, TagTimeWastingOperation)
	if err != nil {
		return nil, err
	}
	seq, err := trace(in, TagGlobalContext)
	if err != nil {
		return nil, err
	}

	calls := seq.Calls(op.Method)
	if len(calls) == 0 {
		return nil, nil
	}
	node := seq.LowestCommonAncestor(calls...)
	if node.Method == op.Method {
		if parent := seq.Parent(node); parent != nil {
			node = parent
		}
	}
	return ProblemContext{Method: op.Method, Invocation: node}, nil
}

func rootCauses(in rules.Input) (any, error) {
	pc, err := valueOf[ProblemContext](in, TagProblemContext)
	if err != nil {
		return nil, err
	}
	op, err := valueOf[Operation](in, TagTimeWastingOperation)
	if err != nil {
		return nil, err
	}

	cause := Cause{Method: op.Method}
	for _, call := range pc.Invocation.Calls(op.Method) {
		cause.Invocations = append(cause.Invocations, call)
		cause.ExclusiveTime += call.ExclusiveTime()
	}
	if len(cause.Invocations) == 0 {
		return nil, nil
	}
	return cause, nil
}

func causeStructure(in rules.Input) (any, error) {
	cause, err := valueOf[Cause](in, TagRootCause)
	if err != nil {
		return nil, err
	}

	s := Structure{
		Method: cause.Method,
		Kind:   StructureSingle,
		Depth:  1,
		Calls:  len(cause.Invocations),
	}
	for _, call := range cause.Invocations {
		s.Depth = max(s.Depth, nesting(call, cause.Method))
	}
	switch {
	case s.Depth > 1:
		s.Kind = StructureRecursive
	case s.Calls > 1:
		s.Kind = StructureIterative
	}
	return s, nil
}

// nesting returns how many calls of method are stacked along the deepest
// path starting at n, n included.
func nesting(n *InvocationSequence, method string) int {
	deepest := 0
	for _, c := range n.Children {
		deepest = max(deepest, nesting(c, method))
	}
	if n.Method == method {
		return deepest + 1
	}
	return deepest
}

func trace(in rules.Input, tagType string) (*InvocationSequence, error) {
	seq, err := valueOf[*InvocationSequence](in, tagType)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, fmt.Errorf("%s: nil invocation sequence", tagType)
	}
	return seq, nil
}

func valueOf[T any](in rules.Input, tagType string) (T, error) {
	v, ok := rules.ValueAs[T](in, tagType)
	if !ok {
		var zero T
		raw, _ := in.Value(tagType)
		return zero, fmt.Errorf("%s: want %T, got %T", tagType, zero, raw)
	}
	return v, nil
}

// durationVar accepts a time.Duration, a Go duration string, or a number
// of milliseconds.
func durationVar(in rules.Input, name string) (time.Duration, error) {
	raw, ok := in.Var(name)
	if !ok {
		return 0, fmt.Errorf("variable %q is not set", name)
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			ms, msErr := strconv.ParseFloat(v, 64)
			if msErr != nil {
				return 0, fmt.Errorf("variable %q: %w", name, err)
			}
			return time.Duration(ms * float64(time.Millisecond)), nil
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("variable %q: unsupported type %T", name, raw)
	}
}

func floatVar(in rules.Input, name string) (float64, error) {
	raw, ok := in.Var(name)
	if !ok {
		return 0, fmt.Errorf("variable %q is not set", name)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("variable %q: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("variable %q: unsupported type %T", name, raw)
	}
}
