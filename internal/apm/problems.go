package apm

import (
	"cmp"
	"slices"
	"time"

	"github.com/roach88/rootcause/internal/engine"
)

// Result is the engine result of an APM diagnosis.
type Result = engine.DefaultResult[*InvocationSequence]

// Problem is one diagnosed performance problem, assembled from a cause
// structure finding and its lineage.
type Problem struct {
	TraceID       string        `json:"trace_id"`
	Method        string        `json:"method"`
	Structure     StructureKind `json:"structure"`
	Depth         int           `json:"depth"`
	Calls         int           `json:"calls"`
	ExclusiveTime time.Duration `json:"exclusive_time"`
	Share         float64       `json:"share"`
	ContextID     string        `json:"context_id"`
	ContextMethod string        `json:"context_method"`
}

// Problems extracts problems from a result, largest exclusive time first.
// A nil result has no problems.
func Problems(res *Result) []Problem {
	if res == nil {
		return nil
	}

	var out []Problem
	for _, end := range res.EndTags[TagCauseStructure] {
		s, ok := end.Value.(Structure)
		if !ok {
			continue
		}
		p := Problem{
			Method:    s.Method,
			Structure: s.Kind,
			Depth:     s.Depth,
			Calls:     s.Calls,
		}
		if res.Input != nil {
			p.TraceID = res.Input.ID
		}

		for _, t := range res.Lineage(end) {
			switch v := t.Value.(type) {
			case Cause:
				p.ExclusiveTime = v.ExclusiveTime
			case ProblemContext:
				if v.Invocation != nil {
					p.ContextID = v.Invocation.ID
					p.ContextMethod = v.Invocation.Method
				}
			case Operation:
				p.Share = v.Share
			}
		}
		out = append(out, p)
	}

	slices.SortStableFunc(out, func(a, b Problem) int {
		if c := cmp.Compare(b.ExclusiveTime, a.ExclusiveTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})
	return out
}
