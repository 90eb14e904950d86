// Package ir provides the foundational fact model for the diagnosis engine.
//
// This package contains the tag model, rule output records and the
// canonical encoding used for execution keys. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Tags are immutable once allocated; the Arena only ever appends
//   - Lineage is a DAG: a tag may only reference tags allocated before it
//   - Tag ids are dense per-session indexes, never reused within an Arena
//   - Logical sequence numbers (Seq) order rule outputs, never wall-clock time
package ir
