package engine

import (
	"maps"
	"slices"

	"github.com/roach88/rootcause/internal/ir"
)

// ResultCollector turns the state of a finished run into the result
// handed to the caller.
//
// Collect runs before the session is passivated. Anything the result
// keeps must be copied out of the context, except the arena, which is
// replaced rather than cleared on passivation.
type ResultCollector[I, R any] interface {
	Collect(sc *SessionContext[I]) (R, error)
}

// CollectorFunc adapts a function to ResultCollector.
type CollectorFunc[I, R any] func(sc *SessionContext[I]) (R, error)

// Collect implements ResultCollector.
func (f CollectorFunc[I, R]) Collect(sc *SessionContext[I]) (R, error) {
	return f(sc)
}

// DefaultResult is the result built by DefaultCollector.
type DefaultResult[I any] struct {
	// SessionID names the session that produced the result.
	SessionID string `json:"session_id"`

	// Input is the diagnosed trace.
	Input I `json:"input"`

	// Root is the tag wrapping Input.
	Root ir.Tag `json:"root"`

	// EndTags holds the leaf findings grouped by tag type.
	EndTags map[string][]ir.Tag `json:"end_tags"`

	// ConditionFailures holds every rejected execution keyed by rule name.
	ConditionFailures map[string][]ir.ConditionFailure `json:"condition_failures"`

	// Outputs holds every rule output in Seq order.
	Outputs []ir.RuleOutput `json:"outputs"`

	arena *ir.Arena
}

// Tag returns any tag of the run by id.
func (r *DefaultResult[I]) Tag(id ir.TagID) (ir.Tag, bool) {
	if r.arena == nil {
		return ir.Tag{}, false
	}
	return r.arena.Get(id)
}

// Tags returns every tag of the run in allocation order.
func (r *DefaultResult[I]) Tags() []ir.Tag {
	if r.arena == nil {
		return nil
	}
	return r.arena.Tags()
}

// Lineage returns the tag followed by its ancestors, nearest first, so a
// finding can be explained back to the input.
func (r *DefaultResult[I]) Lineage(t ir.Tag) []ir.Tag {
	if r.arena == nil {
		return nil
	}
	return r.arena.Lineage(t.ID)
}

// EndTagTypes returns the end tag types, sorted.
func (r *DefaultResult[I]) EndTagTypes() []string {
	return slices.Sorted(maps.Keys(r.EndTags))
}

// EndTagCount returns the number of end tags over all types.
func (r *DefaultResult[I]) EndTagCount() int {
	n := 0
	for _, tags := range r.EndTags {
		n += len(tags)
	}
	return n
}

// DefaultCollector gathers leaf tags and condition failures.
type DefaultCollector[I any] struct{}

// Collect implements ResultCollector.
func (DefaultCollector[I]) Collect(sc *SessionContext[I]) (*DefaultResult[I], error) {
	arena := sc.Arena()
	res := &DefaultResult[I]{
		SessionID:         sc.SessionID(),
		Input:             sc.Input(),
		EndTags:           make(map[string][]ir.Tag),
		ConditionFailures: make(map[string][]ir.ConditionFailure),
		Outputs:           sc.Storage().Outputs(),
		arena:             arena,
	}
	if root, ok := arena.Get(sc.Root()); ok {
		res.Root = root
	}

	for _, id := range Classify(sc.RuleSet(), arena).Leaves() {
		t := arena.MustGet(id)
		res.EndTags[t.Type] = append(res.EndTags[t.Type], t)
	}
	for _, out := range res.Outputs {
		if out.Failed() {
			res.ConditionFailures[out.Rule] = append(res.ConditionFailures[out.Rule], out.ConditionFailures...)
		}
	}
	return res, nil
}
