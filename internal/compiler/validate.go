package compiler

import (
	"fmt"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

// Rule set lint codes (E300-E399). Single-rule checks live in
// rules.Validate (E200-E299); these need the whole set.
const (
	ErrNoEntryRule        = "E300" // no rule consumes the root tag
	ErrUnproducedInput    = "E301" // required input type is never produced
	ErrUnproducedOptional = "E302" // optional input type is never produced
)

// ValidationError represents a rule set lint finding.
type ValidationError struct {
	Rule    string `json:"rule,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("[%s] rule %q: %s: %s", e.Code, e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a built rule set for rules that can never fire.
// Returns all findings (does not fail-fast). None of them stop the
// engine from running; they point at rules that are dead weight.
func Validate(defs []*rules.Definition) []ValidationError {
	var errs []ValidationError

	produced := map[string]bool{ir.RootTagType: true}
	entry := false
	for _, def := range defs {
		produced[def.Produces()] = true
		if def.TriggeredBy(ir.RootTagType) {
			entry = true
		}
	}

	if len(defs) > 0 && !entry {
		errs = append(errs, ValidationError{
			Field:   "input",
			Message: fmt.Sprintf("no rule takes %s as a required input, nothing will fire", ir.RootTagType),
			Code:    ErrNoEntryRule,
		})
	}

	for _, def := range defs {
		for i, in := range def.Inputs() {
			if produced[in.TagType] {
				continue
			}
			code, msg := ErrUnproducedInput, "is never produced, the rule cannot fire"
			if in.Optional {
				code, msg = ErrUnproducedOptional, "is never produced, the slot is always absent"
			}
			errs = append(errs, ValidationError{
				Rule:    def.Name(),
				Field:   fmt.Sprintf("inputs[%d]", i),
				Message: fmt.Sprintf("tag type %q %s", in.TagType, msg),
				Code:    code,
			})
		}
	}
	return errs
}
