package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rootcause/internal/rules"
)

// Recursion warning levels.
const (
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// RecursionWarning reports rules that can trigger each other in a loop.
//
// Recursion is legal: every loop iteration allocates new tags and the
// execution log stops exact repeats. A loop with no guard condition
// anywhere along it relies on its actions returning nil to stop, so it
// is reported as a warning; guarded loops are reported as info.
type RecursionWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeRecursion performs static loop analysis on a rule set.
//
// The algorithm:
//  1. Build rule → rule edges: A → B when B is triggered by the tag type A produces
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, or a self-loop, as a loop
//
// A rule set without loops returns an empty list.
func AnalyzeRecursion(defs []*rules.Definition) []RecursionWarning {
	warnings := []RecursionWarning{}
	if len(defs) == 0 {
		return warnings
	}

	graph := buildTriggerGraph(defs)
	guarded := make(map[string]bool, len(defs))
	for _, def := range defs {
		guarded[def.Name()] = len(def.Conditions()) > 0
	}

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, sccToWarning(scc, graph, guarded))
		}
	}
	return warnings
}

// triggerGraph maps a rule name to the rules its output can trigger.
type triggerGraph struct {
	order []string
	edges map[string][]string
}

func buildTriggerGraph(defs []*rules.Definition) triggerGraph {
	g := triggerGraph{edges: make(map[string][]string, len(defs))}
	for _, from := range defs {
		g.order = append(g.order, from.Name())
		g.edges[from.Name()] = []string{}
		for _, to := range defs {
			if to.TriggeredBy(from.Produces()) {
				g.edges[from.Name()] = append(g.edges[from.Name()], to.Name())
			}
		}
	}
	return g
}

func hasSelfLoop(node string, g triggerGraph) bool {
	return slices.Contains(g.edges[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in rule declaration order so the output is stable.
func tarjanSCC(g triggerGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of an SCC: pop it
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToWarning(scc []string, g triggerGraph, guarded map[string]bool) RecursionWarning {
	// Start from the earliest declared member
	pos := make(map[string]int, len(g.order))
	for i, name := range g.order {
		pos[name] = i
	}
	slices.SortFunc(scc, func(a, b string) int { return pos[a] - pos[b] })

	level := LevelWarning
	for _, name := range scc {
		if guarded[name] {
			level = LevelInfo
			break
		}
	}

	if len(scc) == 1 {
		name := scc[0]
		return RecursionWarning{
			Path:    []string{name, name},
			Message: loopMessage(fmt.Sprintf("self-recursive rule %s → %s", name, name), level),
			Level:   level,
		}
	}

	path := cyclePath(scc, g)
	return RecursionWarning{
		Path:    path,
		Message: loopMessage("rule loop "+strings.Join(path, " → "), level),
		Level:   level,
	}
}

func loopMessage(loop, level string) string {
	if level == LevelWarning {
		return loop + " has no guard condition"
	}
	return loop
}

// cyclePath follows edges inside the SCC from its first member until it
// returns to it.
func cyclePath(scc []string, g triggerGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, n := range g.edges[current] {
			if members[n] && (!visited[n] || n == start) {
				next = n
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
