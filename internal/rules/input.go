package rules

import (
	"fmt"

	"github.com/roach88/rootcause/internal/ir"
)

// Input is one concrete binding of a definition's input slots to tags,
// together with the session variables.
//
// Slots are in declaration order. An absent optional slot holds a tag
// whose ID is ir.NoTag.
type Input struct {
	def     *Definition
	tags    []ir.Tag
	vars    map[string]any
	visible map[string]bool
}

// Bind creates an Input. tags must have one entry per input slot.
func Bind(def *Definition, tags []ir.Tag, vars map[string]any) (Input, error) {
	if len(tags) != len(def.inputs) {
		return Input{}, fmt.Errorf("rule %q binds %d slots, got %d tags", def.name, len(def.inputs), len(tags))
	}
	for i, t := range tags {
		spec := def.inputs[i]
		if t.ID == ir.NoTag {
			if !spec.Optional {
				return Input{}, fmt.Errorf("rule %q: required input %q is absent", def.name, spec.TagType)
			}
			continue
		}
		if t.Type != spec.TagType {
			return Input{}, fmt.Errorf("rule %q: slot %d wants %q, got %q", def.name, i, spec.TagType, t.Type)
		}
	}
	return Input{def: def, tags: tags, vars: vars}, nil
}

// Absent returns the placeholder for an unbound optional slot.
func Absent(tagType string) ir.Tag {
	return ir.Tag{ID: ir.NoTag, Type: tagType}
}

// Rule returns the name of the bound rule.
func (in Input) Rule() string {
	if in.def == nil {
		return ""
	}
	return in.def.name
}

// Definition returns the bound rule definition.
func (in Input) Definition() *Definition {
	return in.def
}

// Key returns the exact tag tuple in slot order.
func (in Input) Key() []ir.TagID {
	ids := make([]ir.TagID, len(in.tags))
	for i, t := range in.tags {
		ids[i] = t.ID
	}
	return ids
}

// Bound returns the present tags in slot order.
func (in Input) Bound() []ir.Tag {
	out := make([]ir.Tag, 0, len(in.tags))
	for _, t := range in.tags {
		if t.ID != ir.NoTag {
			out = append(out, t)
		}
	}
	return out
}

// Tag returns the tag bound to the slot of tagType.
func (in Input) Tag(tagType string) (ir.Tag, bool) {
	if in.def == nil || (in.visible != nil && !in.visible[tagType]) {
		return ir.Tag{}, false
	}
	i, ok := in.def.slots[tagType]
	if !ok || in.tags[i].ID == ir.NoTag {
		return ir.Tag{}, false
	}
	return in.tags[i], true
}

// Value returns the raw value bound to the slot of tagType.
func (in Input) Value(tagType string) (any, bool) {
	t, ok := in.Tag(tagType)
	if !ok {
		return nil, false
	}
	return t.Value, true
}

// Args returns one injected argument per slot: the raw value or the
// ir.Tag depending on the slot's injection mode. Absent or hidden slots
// are nil.
func (in Input) Args() []any {
	if in.def == nil {
		return nil
	}
	args := make([]any, len(in.tags))
	for i, spec := range in.def.inputs {
		t, ok := in.Tag(spec.TagType)
		if !ok {
			continue
		}
		if spec.Injection == InjectByTag {
			args[i] = t
		} else {
			args[i] = t.Value
		}
	}
	return args
}

// Var returns a session variable. Declared optional variables fall back
// to their default.
func (in Input) Var(name string) (any, bool) {
	if v, ok := in.vars[name]; ok {
		return v, true
	}
	if in.def != nil {
		for _, spec := range in.def.variables {
			if spec.Name == name && spec.Optional && spec.Default != nil {
				return spec.Default, true
			}
		}
	}
	return nil, false
}

// Restrict returns a view exposing only the given tag types.
// An empty list exposes every slot.
func (in Input) Restrict(tagTypes []string) Input {
	if len(tagTypes) == 0 {
		return in
	}
	view := in
	view.visible = make(map[string]bool, len(tagTypes))
	for _, t := range tagTypes {
		view.visible[t] = true
	}
	return view
}

// ValueAs returns the value bound to tagType converted to T.
func ValueAs[T any](in Input, tagType string) (T, bool) {
	var zero T
	v, ok := in.Value(tagType)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// VarAs returns a session variable converted to T.
func VarAs[T any](in Input, name string) (T, bool) {
	var zero T
	v, ok := in.Var(name)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
