package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/rules"
)

func TestValidateReachableRuleSet(t *testing.T) {
	defs := build(t,
		rules.New("a").Input("ROOT_TAG").Action("A", produce),
		rules.New("b").Input("A").Input("ROOT_TAG", rules.Optional()).Action("B", produce),
	)
	assert.Empty(t, Validate(defs))
}

func TestValidateEmptySet(t *testing.T) {
	assert.Empty(t, Validate(nil))
}

func TestValidateNoEntryRule(t *testing.T) {
	defs := build(t,
		rules.New("a").Input("A").Action("B", produce),
		rules.New("b").Input("B").Action("A", produce),
	)

	errs := Validate(defs)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrNoEntryRule, errs[0].Code)
	assert.Empty(t, errs[0].Rule)
}

func TestValidateUnproducedInputs(t *testing.T) {
	defs := build(t,
		rules.New("a").Input("ROOT_TAG").Action("A", produce),
		rules.New("b").Input("A").Input("Ghost", rules.Optional()).Action("B", produce),
		rules.New("c").Input("Phantom").Action("C", produce),
	)

	errs := Validate(defs)
	require.Len(t, errs, 2)

	assert.Equal(t, ErrUnproducedOptional, errs[0].Code)
	assert.Equal(t, "b", errs[0].Rule)
	assert.Equal(t, "inputs[1]", errs[0].Field)

	assert.Equal(t, ErrUnproducedInput, errs[1].Code)
	assert.Equal(t, "c", errs[1].Rule)
	assert.Equal(t,
		`[E301] rule "c": inputs[0]: tag type "Phantom" is never produced, the rule cannot fire`,
		errs[1].Error())
}
