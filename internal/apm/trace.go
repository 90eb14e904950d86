package apm

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// InvocationSequence is one node of a sampled execution trace: a method
// invocation with its wall-clock duration and nested calls.
type InvocationSequence struct {
	ID       string                `yaml:"id" json:"id"`
	Method   string                `yaml:"method" json:"method"`
	Duration time.Duration         `yaml:"duration" json:"duration"`
	SQL      string                `yaml:"sql,omitempty" json:"sql,omitempty"`
	Children []*InvocationSequence `yaml:"children,omitempty" json:"children,omitempty"`
}

// LoadTrace reads an invocation sequence from a YAML file.
func LoadTrace(path string) (*InvocationSequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace file: %w", err)
	}
	seq, err := ParseTrace(data)
	if err != nil {
		return nil, fmt.Errorf("parse trace %s: %w", path, err)
	}
	return seq, nil
}

// ParseTrace decodes an invocation sequence from YAML.
// Unknown fields are rejected. Durations use Go syntax ("120ms").
func ParseTrace(data []byte) (*InvocationSequence, error) {
	var seq InvocationSequence
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&seq); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	if err := seq.validate(); err != nil {
		return nil, err
	}
	seq.assignIDs("0")
	return &seq, nil
}

func (s *InvocationSequence) validate() error {
	var check func(n *InvocationSequence, path string) error
	check = func(n *InvocationSequence, path string) error {
		if n == nil {
			return fmt.Errorf("%s: empty invocation", path)
		}
		if n.Method == "" {
			return fmt.Errorf("%s: method is required", path)
		}
		if n.Duration < 0 {
			return fmt.Errorf("%s: negative duration %s", path, n.Duration)
		}
		for i, c := range n.Children {
			if err := check(c, fmt.Sprintf("%s.children[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	return check(s, "trace")
}

// assignIDs fills missing ids with the node's position, e.g. "0.2.1".
func (s *InvocationSequence) assignIDs(prefix string) {
	if s.ID == "" {
		s.ID = prefix
	}
	for i, c := range s.Children {
		c.assignIDs(fmt.Sprintf("%s.%d", prefix, i))
	}
}

// ExclusiveTime is the duration not spent in nested calls.
// Children reported longer than their parent clamp it to zero.
func (s *InvocationSequence) ExclusiveTime() time.Duration {
	excl := s.Duration
	for _, c := range s.Children {
		excl -= c.Duration
	}
	return max(excl, 0)
}

// Walk visits the node and its descendants in pre-order. Returning false
// skips the node's children.
func (s *InvocationSequence) Walk(fn func(n *InvocationSequence, depth int) bool) {
	var walk func(n *InvocationSequence, depth int)
	walk = func(n *InvocationSequence, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(s, 0)
}

// Count returns the number of invocations in the sequence.
func (s *InvocationSequence) Count() int {
	n := 0
	s.Walk(func(*InvocationSequence, int) bool { n++; return true })
	return n
}

// PathTo returns the invocations from s down to target, both included.
// ok is false if target is not in the sequence.
func (s *InvocationSequence) PathTo(target *InvocationSequence) (path []*InvocationSequence, ok bool) {
	if s == target {
		return []*InvocationSequence{s}, true
	}
	for _, c := range s.Children {
		if sub, found := c.PathTo(target); found {
			return append([]*InvocationSequence{s}, sub...), true
		}
	}
	return nil, false
}

// Calls returns every invocation of method, in pre-order.
func (s *InvocationSequence) Calls(method string) []*InvocationSequence {
	var out []*InvocationSequence
	s.Walk(func(n *InvocationSequence, _ int) bool {
		if n.Method == method {
			out = append(out, n)
		}
		return true
	})
	return out
}

// LowestCommonAncestor returns the deepest invocation that is an
// ancestor-or-self of every node. Nodes outside the sequence are ignored;
// nil is returned when none remain.
func (s *InvocationSequence) LowestCommonAncestor(nodes ...*InvocationSequence) *InvocationSequence {
	var common []*InvocationSequence
	for _, n := range nodes {
		path, ok := s.PathTo(n)
		if !ok {
			continue
		}
		if common == nil {
			common = path
			continue
		}
		i := 0
		for i < len(common) && i < len(path) && common[i] == path[i] {
			i++
		}
		common = common[:i]
	}
	if len(common) == 0 {
		return nil
	}
	return common[len(common)-1]
}

// Parent returns the invocation directly containing target, or nil for
// the root and for nodes outside the sequence.
func (s *InvocationSequence) Parent(target *InvocationSequence) *InvocationSequence {
	path, ok := s.PathTo(target)
	if !ok || len(path) < 2 {
		return nil
	}
	return path[len(path)-2]
}
