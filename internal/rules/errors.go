package rules

import (
	"errors"
	"fmt"
)

// ErrRuleDefinition is wrapped by every DefinitionError.
var ErrRuleDefinition = errors.New("invalid rule definition")

// Definition error codes (E200-E299)
const (
	ErrMissingRuleName       = "E200" // rule has no name
	ErrNoAction              = "E201" // no action declared
	ErrMultipleActions       = "E202" // more than one action declared
	ErrNoInputs              = "E203" // at least one input required
	ErrUnresolvedInputType   = "E204" // input names no tag type
	ErrDuplicateInputType    = "E205" // two inputs share a tag type
	ErrOnlyOptionalInputs    = "E206" // nothing can trigger the rule
	ErrConditionNoPredicate  = "E207" // condition without a function
	ErrUnboundConditionInput = "E208" // condition reads an input the rule does not bind
	ErrActionNoFunction      = "E209" // action without a function
	ErrInvalidArity          = "E210" // arity is neither SINGLE nor MULTIPLE
	ErrDuplicateRuleName     = "E211" // two rules share a name
	ErrInvalidInjection      = "E212" // unknown injection mode
	ErrReservedTagType       = "E213" // rule produces the root tag type
	ErrMissingProducedType   = "E214" // action names no produced type
	ErrDuplicateCondition    = "E215" // two conditions share a name
	ErrDuplicateVariable     = "E216" // two variables share a name
)

// DefinitionError describes one problem with a rule descriptor.
type DefinitionError struct {
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] rule %q: %s: %s", e.Code, e.Rule, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrRuleDefinition.
func (e *DefinitionError) Unwrap() error {
	return ErrRuleDefinition
}

// IsDefinitionError reports whether err carries a DefinitionError.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

// DefinitionErrors extracts every DefinitionError from an error returned
// by Build.
func DefinitionErrors(err error) []*DefinitionError {
	if err == nil {
		return nil
	}
	var out []*DefinitionError
	var de *DefinitionError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, DefinitionErrors(e)...)
		}
		return out
	}
	if errors.As(err, &de) {
		out = append(out, de)
	}
	return out
}
