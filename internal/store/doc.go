// Package store provides SQLite-backed storage for finished diagnoses.
//
// One diagnosis is written as:
//   - diagnoses: the input trace, session variables and versions
//   - tags: every tag of the run with its parent ids
//   - rule_outputs: every executed or rejected rule invocation, by seq
//   - condition_failures: the guards that rejected an invocation
//   - end_tags: the leaf findings
//
// Writes are all-or-nothing: a diagnosis is inserted in one transaction.
// All reads order by logical ids (tag_id, seq), never by wall time, so
// a stored diagnosis reads back identically.
//
// Tag values are stored as JSON. They read back as generic JSON values
// (maps, slices, strings, float64), not as the Go types the rules
// produced.
package store
