package compiler

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rootcause/internal/rules"
)

// CompileRules compiles every field of the top-level `rule` struct into a
// descriptor, in declaration order.
//
// All rules are compiled; the returned error joins one *CompileError per
// rule that failed. Descriptors are not validated here, rules.Build does
// that once the whole set is known.
func CompileRules(v cue.Value, catalog *rules.Catalog) ([]*rules.Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, &CompileError{
			Field:   "rule",
			Message: "no rules declared",
			Pos:     v.Pos(),
		}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var descs []*rules.Descriptor
	var errs []error
	for iter.Next() {
		desc, err := CompileRule(iter.Value(), catalog)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", iter.Label(), err))
			continue
		}
		descs = append(descs, desc)
	}
	return descs, errors.Join(errs...)
}

// CompileRule parses a CUE value into a rules.Descriptor, resolving
// action and predicate names against catalog.
//
// The CUE value should be the rule struct itself, e.g.:
//
//	v := ctx.CompileString(`rule: "global-context": { ... }`)
//	desc, err := CompileRule(v.LookupPath(cue.ParsePath(`rule."global-context"`)), catalog)
func CompileRule(v cue.Value, catalog *rules.Catalog) (*rules.Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	desc := &rules.Descriptor{}

	// Rule name is the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		if sel := labels[len(labels)-1]; sel.LabelType() == cue.StringLabel {
			desc.Name = sel.Unquoted()
		}
	}

	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		s, err := d.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		desc.Description = s
	}

	var err error
	if desc.Inputs, err = parseInputs(v); err != nil {
		return nil, err
	}
	if desc.Conditions, err = parseConditions(v, catalog); err != nil {
		return nil, err
	}
	if desc.Variables, err = parseVariables(v); err != nil {
		return nil, err
	}
	if desc.Actions, err = parseActions(v, desc.Name, catalog); err != nil {
		return nil, err
	}
	return desc, nil
}

func parseInputs(v cue.Value) ([]rules.InputSpec, error) {
	inputVal := v.LookupPath(cue.ParsePath("input"))
	if !inputVal.Exists() {
		return nil, nil
	}

	var out []rules.InputSpec
	err := eachElement(inputVal, "input", func(item cue.Value) error {
		tag, err := requiredString(item, "tag", "input.tag")
		if err != nil {
			return err
		}
		spec := rules.InputSpec{TagType: tag, Injection: rules.InjectByValue}

		if spec.Optional, err = optionalBool(item, "optional"); err != nil {
			return err
		}
		inject, err := optionalString(item, "inject")
		if err != nil {
			return err
		}
		switch rules.Injection(inject) {
		case "", rules.InjectByValue:
		case rules.InjectByTag:
			spec.Injection = rules.InjectByTag
		default:
			return &CompileError{
				Field:   "input.inject",
				Message: fmt.Sprintf("unknown injection %q (want %q or %q)", inject, rules.InjectByValue, rules.InjectByTag),
				Pos:     item.Pos(),
			}
		}
		out = append(out, spec)
		return nil
	})
	return out, err
}

func parseConditions(v cue.Value, catalog *rules.Catalog) ([]rules.ConditionSpec, error) {
	condVal := v.LookupPath(cue.ParsePath("condition"))
	if !condVal.Exists() {
		return nil, nil
	}

	var out []rules.ConditionSpec
	err := eachElement(condVal, "condition", func(item cue.Value) error {
		name, err := requiredString(item, "name", "condition.name")
		if err != nil {
			return err
		}
		spec := rules.ConditionSpec{Name: name}

		// The predicate defaults to the condition's own name
		check, err := optionalString(item, "check")
		if err != nil {
			return err
		}
		if check == "" {
			check = name
		}
		pred, ok := catalog.Predicate(check)
		if !ok {
			return &CompileError{
				Field:   "condition.check",
				Message: fmt.Sprintf("predicate %q is not registered", check),
				Pos:     item.Pos(),
			}
		}
		spec.Predicate = pred

		if spec.Hint, err = optionalString(item, "hint"); err != nil {
			return err
		}
		if spec.Reads, err = optionalStrings(item, "reads"); err != nil {
			return err
		}
		out = append(out, spec)
		return nil
	})
	return out, err
}

func parseVariables(v cue.Value) ([]rules.VariableSpec, error) {
	varVal := v.LookupPath(cue.ParsePath("variable"))
	if !varVal.Exists() {
		return nil, nil
	}

	var out []rules.VariableSpec
	err := eachElement(varVal, "variable", func(item cue.Value) error {
		name, err := requiredString(item, "name", "variable.name")
		if err != nil {
			return err
		}
		spec := rules.VariableSpec{Name: name}
		if spec.Optional, err = optionalBool(item, "optional"); err != nil {
			return err
		}
		if def := item.LookupPath(cue.ParsePath("default")); def.Exists() {
			if spec.Default, err = scalar(def, "variable.default"); err != nil {
				return err
			}
			spec.Optional = true
		}
		out = append(out, spec)
		return nil
	})
	return out, err
}

// parseActions accepts either a single action struct or a list of them.
// Lists with zero or several entries are kept so that validation can
// report them.
func parseActions(v cue.Value, ruleName string, catalog *rules.Catalog) ([]rules.ActionSpec, error) {
	actionVal := v.LookupPath(cue.ParsePath("action"))
	if !actionVal.Exists() {
		return nil, nil
	}

	var out []rules.ActionSpec
	parse := func(item cue.Value) error {
		produces, err := requiredString(item, "produces", "action.produces")
		if err != nil {
			return err
		}
		spec := rules.ActionSpec{Produces: produces, Arity: rules.Single}

		arity, err := optionalString(item, "arity")
		if err != nil {
			return err
		}
		switch rules.Arity(arity) {
		case "", rules.Single:
		case rules.Multiple:
			spec.Arity = rules.Multiple
		default:
			return &CompileError{
				Field:   "action.arity",
				Message: fmt.Sprintf("unknown arity %q (want %q or %q)", arity, rules.Single, rules.Multiple),
				Pos:     item.Pos(),
			}
		}

		// The function defaults to the rule's own name
		fnName, err := optionalString(item, "function")
		if err != nil {
			return err
		}
		if fnName == "" {
			fnName = ruleName
		}
		fn, ok := catalog.Action(fnName)
		if !ok {
			return &CompileError{
				Field:   "action.function",
				Message: fmt.Sprintf("action %q is not registered", fnName),
				Pos:     item.Pos(),
			}
		}
		spec.Func = fn
		out = append(out, spec)
		return nil
	}

	var err error
	if actionVal.Kind() == cue.ListKind {
		err = eachElement(actionVal, "action", parse)
	} else {
		err = parse(actionVal)
	}
	return out, err
}

func eachElement(list cue.Value, field string, fn func(cue.Value) error) error {
	if err := list.Err(); err != nil {
		return formatCUEError(err)
	}
	if list.Kind() != cue.ListKind {
		return &CompileError{
			Field:   field,
			Message: "must be a list",
			Pos:     list.Pos(),
		}
	}
	iter, err := list.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func requiredString(v cue.Value, path, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: path + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, path string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalStrings(v cue.Value, path string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, nil
	}
	var out []string
	err := eachElement(f, path, func(item cue.Value) error {
		s, err := item.String()
		if err != nil {
			return formatCUEError(err)
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// scalar converts a concrete CUE scalar to its Go value. Whole numbers
// become int64, other numbers float64.
func scalar(v cue.Value, field string) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind %s (want string, bool or number)", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
