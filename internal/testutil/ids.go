package testutil

import (
	"fmt"
	"sync"
)

// FixedSessionGenerator hands out the same session id every time.
//
// A scenario run with a FixedSessionGenerator stores byte-identical
// diagnoses, which golden snapshots rely on.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// DefaultSessionID is used when a scenario names no session id.
const DefaultSessionID = "test-session-default"

// NewFixedSessionGenerator creates a generator returning id.
// An empty id selects DefaultSessionID.
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = DefaultSessionID
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed id. Implements engine.SessionIDGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}

// SequenceGenerator hands out "<prefix>-1", "<prefix>-2", ...
//
// Unlike engine.FixedGenerator it never runs out, and it can be reset so
// the same test can run twice with identical ids.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceGenerator creates a generator whose first id is prefix-1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id. Implements engine.SessionIDGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Current returns how many ids were handed out.
func (g *SequenceGenerator) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence; the next id is prefix-1 again.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
