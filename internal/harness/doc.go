// Package harness runs conformance scenarios against a rule set.
//
// A scenario pairs one invocation trace with session variables and the
// outcome the rules must reach. The harness runs the real engine, stores
// the diagnosis in an in-memory SQLite database, reads it back, and
// checks the stored records against the scenario's expectations.
//
// # Scenario Format
//
//	name: n-plus-one
//	description: "Four identical queries inside one controller call"
//	trace_file: ../traces/checkout.yaml   # or an inline trace: {...}
//	variables:
//	  baseline: 500ms
//	expect:
//	  end_tags:
//	    CauseStructure: 2
//	  condition_failures:
//	    - rule: time-wasting-operations
//	      condition: exceeds-baseline
//	  problems:
//	    - method: Dao.query
//	      structure: ITERATIVE
//	      calls: 4
//	  error: MISSING_VARIABLE
//
// Every expectation is optional, but a scenario must state at least one.
// end_tags and condition_failures are exact: tag types and rules not
// listed must not appear. problems are matched in order.
//
// # Deterministic Testing
//
// Sessions are named by testutil.FixedSessionGenerator and outputs are
// ordered by the session's logical clock, so the same scenario always
// stores byte-identical records. RunWithGolden snapshots them with goldie.
package harness
