// Package apm is the built-in rule set for diagnosing slow application
// traces.
//
// A trace is an InvocationSequence: a tree of method invocations with
// wall-clock durations. The rules derive, in order:
//
//	ROOT_TAG → GlobalContext → TimeWastingOperation → ProblemContext → RootCause → CauseStructure
//
// CauseStructure tags are the end findings. Problems turns them, with
// their lineage, into flat records.
//
// The rules are available as Go descriptors (DefaultDescriptors) and as
// a named Catalog for rule files compiled by internal/compiler.
package apm
