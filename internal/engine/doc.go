// Package engine implements the diagnosis engine: a forward-chaining
// propagation loop over typed tags, run by pooled sessions.
//
// ARCHITECTURE:
//
// Session Loop:
// A Session seeds a FIFO worklist with the root tag wrapping the input.
// Each popped tag is matched against the rule set in declaration order.
// Every ready binding is recorded in the execution log, its guards are
// evaluated, and its action produces new tags that are pushed back onto
// the worklist. The loop ends when the worklist is empty.
//
// Correlation:
// A multi-input rule only combines tags lying on one lineage path (see
// match). Tags derived from unrelated branches of a trace never meet.
//
// Pooling:
// Sessions are expensive to set up and cheap to reset, so the Engine
// keeps them in a bounded pool. A session serves one trace at a time;
// after a failed run it is destroyed instead of being reused.
//
// CRITICAL PATTERNS:
//
// At-most-once execution:
// A (rule, exact tag tuple) pair is recorded before it runs and is never
// scheduled twice in one Call. This bounds fan-out when a rule consumes
// its own output type.
//
// Deterministic scheduling:
// Rules evaluated in declaration order, tags processed FIFO, rule outputs
// stamped by a logical Clock. Two runs over the same input produce the
// same outputs in the same order.
//
// Failure isolation:
// Condition failures are data. Errors and panics from rule functions
// abort the run with a RuntimeError.
package engine
