package engine

import (
	"fmt"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// ExecutionLog records which (rule, exact tag tuple) pairs were scheduled
// during one Call.
//
// A pair is recorded before its guards run, so a binding is attempted at
// most once whether it fires or is rejected. This is what keeps a
// self-recursive rule from re-matching tags it already consumed.
//
// Two bindings are the same only if they bind the same tag ids in the
// same slots; equal values reached through different lineages are
// distinct executions.
//
// Thread-safety: owned by one SessionContext, not safe for concurrent use.
type ExecutionLog struct {
	byRule map[string]map[string]bool
	total  int
}

// NewExecutionLog creates an empty log.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{byRule: make(map[string]map[string]bool)}
}

// Record marks the binding as executed. It returns false if the same
// binding was already recorded.
func (l *ExecutionLog) Record(in rules.Input) (bool, error) {
	key, err := ir.ExecutionKey(in.Rule(), in.Key())
	if err != nil {
		return false, fmt.Errorf("execution key for %s: %w", in.Rule(), err)
	}
	seen := l.byRule[in.Rule()]
	if seen == nil {
		seen = make(map[string]bool)
		l.byRule[in.Rule()] = seen
	}
	if seen[key] {
		return false, nil
	}
	seen[key] = true
	l.total++
	return true, nil
}

// Executed reports whether the rule already ran for the exact tuple.
func (l *ExecutionLog) Executed(rule string, tags []ir.TagID) bool {
	key, err := ir.ExecutionKey(rule, tags)
	if err != nil {
		return false
	}
	return l.byRule[rule][key]
}

// Len returns the number of recorded executions.
func (l *ExecutionLog) Len() int {
	return l.total
}

// RuleLen returns the number of executions recorded for one rule.
func (l *ExecutionLog) RuleLen(rule string) int {
	return len(l.byRule[rule])
}

// Clear forgets every execution.
func (l *ExecutionLog) Clear() {
	clear(l.byRule)
	l.total = 0
}
