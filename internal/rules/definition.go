package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rootcause/internal/ir"
)

// Definition is a validated rule. It is immutable once built and safe to
// share between sessions.
type Definition struct {
	name        string
	description string
	inputs      []InputSpec
	conditions  []ConditionSpec
	action      ActionSpec
	variables   []VariableSpec
	slots       map[string]int
}

// Name returns the rule name.
func (d *Definition) Name() string { return d.name }

// Description returns the rule description.
func (d *Definition) Description() string { return d.description }

// Inputs returns the input slots in declaration order.
func (d *Definition) Inputs() []InputSpec { return slices.Clone(d.inputs) }

// Conditions returns the guards in declaration order.
func (d *Definition) Conditions() []ConditionSpec { return slices.Clone(d.conditions) }

// Action returns the action spec.
func (d *Definition) Action() ActionSpec { return d.action }

// Variables returns the declared session variables.
func (d *Definition) Variables() []VariableSpec { return slices.Clone(d.variables) }

// Produces returns the produced tag type.
func (d *Definition) Produces() string { return d.action.Produces }

// Slot returns the index of the input slot for tagType.
func (d *Definition) Slot(tagType string) (int, bool) {
	i, ok := d.slots[tagType]
	return i, ok
}

// Consumes reports whether the rule takes tagType as input.
func (d *Definition) Consumes(tagType string) bool {
	_, ok := d.slots[tagType]
	return ok
}

// TriggeredBy reports whether a new tag of tagType can fire the rule,
// i.e. the rule has a required input of that type.
func (d *Definition) TriggeredBy(tagType string) bool {
	i, ok := d.slots[tagType]
	return ok && !d.inputs[i].Optional
}

// SelfRecursive reports whether the rule consumes its own output type.
func (d *Definition) SelfRecursive() bool {
	return d.Consumes(d.action.Produces)
}

func (d *Definition) String() string {
	types := make([]string, len(d.inputs))
	for i, in := range d.inputs {
		types[i] = in.TagType
		if in.Optional {
			types[i] += "?"
		}
	}
	return fmt.Sprintf("%s(%s) -> %s", d.name, strings.Join(types, ", "), d.action.Produces)
}

// Build validates descriptors and returns their definitions in
// declaration order. All problems are reported, joined into one error
// whose parts are *DefinitionError values.
func Build(descs []*Descriptor) ([]*Definition, error) {
	var errs []error
	seen := make(map[string]bool, len(descs))
	defs := make([]*Definition, 0, len(descs))

	for i, desc := range descs {
		if desc == nil {
			errs = append(errs, &DefinitionError{
				Field:   fmt.Sprintf("descriptors[%d]", i),
				Message: "descriptor is nil",
				Code:    ErrMissingRuleName,
			})
			continue
		}
		if desc.Name != "" && seen[desc.Name] {
			errs = append(errs, &DefinitionError{
				Rule:    desc.Name,
				Field:   "name",
				Message: "duplicate rule name",
				Code:    ErrDuplicateRuleName,
			})
			continue
		}
		seen[desc.Name] = true

		if verrs := Validate(desc); len(verrs) > 0 {
			for _, e := range verrs {
				errs = append(errs, e)
			}
			continue
		}
		defs = append(defs, newDefinition(desc))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

// Validate checks one descriptor. Returns all problems found (does not
// fail fast).
func Validate(desc *Descriptor) []*DefinitionError {
	var errs []*DefinitionError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, &DefinitionError{
			Rule:    desc.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if strings.TrimSpace(desc.Name) == "" {
		add("name", ErrMissingRuleName, "rule name is required")
	}

	switch len(desc.Actions) {
	case 0:
		add("actions", ErrNoAction, "no action declared")
	case 1:
		a := desc.Actions[0]
		if a.Func == nil {
			add("actions[0].function", ErrActionNoFunction, "action has no function")
		}
		switch {
		case strings.TrimSpace(a.Produces) == "":
			add("actions[0].produces", ErrMissingProducedType, "action must name the produced tag type")
		case a.Produces == ir.RootTagType:
			add("actions[0].produces", ErrReservedTagType, "%s is reserved for the session input", ir.RootTagType)
		}
		if a.Arity != Single && a.Arity != Multiple {
			add("actions[0].arity", ErrInvalidArity, "arity must be %s or %s, got %q", Single, Multiple, a.Arity)
		}
	default:
		add("actions", ErrMultipleActions, "%d actions declared, exactly one allowed", len(desc.Actions))
	}

	bound := make(map[string]bool, len(desc.Inputs))
	if len(desc.Inputs) == 0 {
		add("inputs", ErrNoInputs, "at least one input is required")
	}
	required := 0
	for i, in := range desc.Inputs {
		field := fmt.Sprintf("inputs[%d]", i)
		if strings.TrimSpace(in.TagType) == "" {
			add(field+".tag_type", ErrUnresolvedInputType, "input names no tag type")
			continue
		}
		if bound[in.TagType] {
			add(field+".tag_type", ErrDuplicateInputType, "tag type %q bound twice", in.TagType)
		}
		bound[in.TagType] = true
		if in.Injection != "" && in.Injection != InjectByValue && in.Injection != InjectByTag {
			add(field+".injection", ErrInvalidInjection, "unknown injection mode %q", in.Injection)
		}
		if !in.Optional {
			required++
		}
	}
	if len(desc.Inputs) > 0 && required == 0 {
		add("inputs", ErrOnlyOptionalInputs, "at least one input must be required")
	}

	conds := make(map[string]bool, len(desc.Conditions))
	for i, c := range desc.Conditions {
		field := fmt.Sprintf("conditions[%d]", i)
		if conds[c.Name] {
			add(field+".name", ErrDuplicateCondition, "duplicate condition name %q", c.Name)
		}
		conds[c.Name] = true
		if c.Predicate == nil {
			add(field+".predicate", ErrConditionNoPredicate, "condition %q has no predicate", c.Name)
		}
		for _, r := range c.Reads {
			if !bound[r] {
				add(field+".reads", ErrUnboundConditionInput, "condition %q reads unbound input %q", c.Name, r)
			}
		}
	}

	vars := make(map[string]bool, len(desc.Variables))
	for i, v := range desc.Variables {
		if v.Name == "" || vars[v.Name] {
			add(fmt.Sprintf("variables[%d].name", i), ErrDuplicateVariable, "variable name %q is empty or duplicated", v.Name)
		}
		vars[v.Name] = true
	}

	return errs
}

func newDefinition(desc *Descriptor) *Definition {
	def := &Definition{
		name:        desc.Name,
		description: desc.Description,
		inputs:      slices.Clone(desc.Inputs),
		conditions:  make([]ConditionSpec, len(desc.Conditions)),
		action:      desc.Actions[0],
		variables:   slices.Clone(desc.Variables),
		slots:       make(map[string]int, len(desc.Inputs)),
	}
	for i := range def.inputs {
		if def.inputs[i].Injection == "" {
			def.inputs[i].Injection = InjectByValue
		}
		def.slots[def.inputs[i].TagType] = i
	}
	for i, c := range desc.Conditions {
		c.Reads = slices.Clone(c.Reads)
		def.conditions[i] = c
	}
	return def
}

// Consumers returns, per tag type, the definitions taking it as input.
func Consumers(defs []*Definition) map[string][]*Definition {
	out := make(map[string][]*Definition)
	for _, d := range defs {
		for _, in := range d.inputs {
			out[in.TagType] = append(out[in.TagType], d)
		}
	}
	return out
}
