// Package rules defines diagnosis rules and validates them into
// immutable definitions.
//
// A rule is authored as a plain Descriptor record through a builder:
//
//	rules.New("simple").
//		Input("RootTag").
//		Condition("not-empty", notEmpty, rules.WithHint("root value is empty")).
//		Action("SimpleTag", appendInsight)
//
// Build validates a set of descriptors once, at configuration time, and
// returns Definitions that are shared read-only by every session.
// Actions and predicates are closures; there is no reflection over rule
// types.
package rules
