package engine

import (
	"slices"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// Storage keeps the rule outputs of one session.
//
// A storage instance belongs to exactly one SessionContext. Clear is
// called on passivation so the instance can serve the next trace.
type Storage interface {
	// Store appends an output. Outputs arrive in Seq order.
	Store(out ir.RuleOutput)
	// Outputs returns every output in Seq order.
	Outputs() []ir.RuleOutput
	// Clear forgets every output.
	Clear()
}

// DefaultStorage is an in-memory Storage.
type DefaultStorage struct {
	outputs []ir.RuleOutput
	byRule  map[string][]int
}

// NewDefaultStorage creates an empty storage. It satisfies the
// Configuration.StorageFactory signature.
func NewDefaultStorage() Storage {
	return &DefaultStorage{byRule: make(map[string][]int)}
}

// Store implements Storage.
func (s *DefaultStorage) Store(out ir.RuleOutput) {
	s.byRule[out.Rule] = append(s.byRule[out.Rule], len(s.outputs))
	s.outputs = append(s.outputs, out)
}

// Outputs implements Storage.
func (s *DefaultStorage) Outputs() []ir.RuleOutput {
	return slices.Clone(s.outputs)
}

// ByRule returns the outputs of one rule in Seq order.
func (s *DefaultStorage) ByRule(rule string) []ir.RuleOutput {
	idx := s.byRule[rule]
	out := make([]ir.RuleOutput, len(idx))
	for i, j := range idx {
		out[i] = s.outputs[j]
	}
	return out
}

// Clear implements Storage.
func (s *DefaultStorage) Clear() {
	s.outputs = nil
	clear(s.byRule)
}

// TagClass is the leaf/consumed classification of a tag.
type TagClass int

const (
	// Consumed tags feed further rules and are intermediate facts.
	Consumed TagClass = iota + 1
	// Leaf tags are terminal findings.
	Leaf
)

// Classification assigns every produced tag of a session to a class.
type Classification struct {
	classes map[ir.TagID]TagClass
	order   []ir.TagID
}

// Class returns the class of a produced tag. The root tag and unknown
// ids have no class.
func (c Classification) Class(id ir.TagID) (TagClass, bool) {
	cl, ok := c.classes[id]
	return cl, ok
}

// Leaves returns leaf tag ids in allocation order.
func (c Classification) Leaves() []ir.TagID {
	var out []ir.TagID
	for _, id := range c.order {
		if c.classes[id] == Leaf {
			out = append(out, id)
		}
	}
	return out
}

// Classify splits the tags of arena into leaves and consumed tags.
//
// A tag type is consumed when some rule takes it as input and produces a
// different type. A type consumed only by rules producing that same type
// is a refinement chain: of its tags, only those without a child of the
// same type are leaves.
func Classify(defs []*rules.Definition, arena *ir.Arena) Classification {
	consumed := make(map[string]bool)
	recursive := make(map[string]bool)
	for _, d := range defs {
		for _, in := range d.Inputs() {
			if in.TagType == d.Produces() {
				recursive[in.TagType] = true
			} else {
				consumed[in.TagType] = true
			}
		}
	}

	c := Classification{classes: make(map[ir.TagID]TagClass)}
	for _, t := range arena.Tags() {
		if t.IsRoot() {
			continue
		}
		c.order = append(c.order, t.ID)
		switch {
		case consumed[t.Type]:
			c.classes[t.ID] = Consumed
		case recursive[t.Type] && hasChildOfType(arena, t):
			c.classes[t.ID] = Consumed
		default:
			c.classes[t.ID] = Leaf
		}
	}
	return c
}

func hasChildOfType(arena *ir.Arena, t ir.Tag) bool {
	for _, child := range arena.Children(t.ID) {
		if arena.MustGet(child).Type == t.Type {
			return true
		}
	}
	return false
}
