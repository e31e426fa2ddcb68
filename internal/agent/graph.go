package agent

import (
	"sort"
	"strings"
)

// delegationGraph is the directed graph formed by delegates_to edges.
type delegationGraph map[string][]string

// maxCycles bounds cycle enumeration on pathological graphs.
const maxCycles = 64

// cycles returns every elementary delegation cycle in g as a closed path
// (first element repeated at the end). Each cycle is reported once, starting
// at its lowest name; roots are taken in name order so the output is stable.
func (g delegationGraph) cycles() [][]string {
	nodes := make([]string, 0, len(g))
	for name := range g {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)

	var found [][]string
	seen := make(map[string]bool)

	for _, root := range nodes {
		onStack := map[string]bool{root: true}
		stack := []string{root}

		var visit func(name string)
		visit = func(name string) {
			for _, next := range g[name] {
				if len(found) >= maxCycles {
					return
				}
				if _, known := g[next]; !known {
					// Dangling references are reported separately.
					continue
				}
				switch {
				case next == root:
					path := closePath(stack, root)
					if key := strings.Join(path, "\x00"); !seen[key] {
						seen[key] = true
						found = append(found, path)
					}
				case next < root || onStack[next]:
					// Cycles through lower names were found from their own root.
				default:
					onStack[next] = true
					stack = append(stack, next)
					visit(next)
					stack = stack[:len(stack)-1]
					onStack[next] = false
				}
			}
		}
		visit(root)
	}
	return found
}

// closePath extracts the cycle that starts at target from the recursion stack.
func closePath(stack []string, target string) []string {
	start := 0
	for i, name := range stack {
		if name == target {
			start = i
			break
		}
	}
	path := append([]string(nil), stack[start:]...)
	return append(path, target)
}

// FormatCycle renders a cycle path as "a → b → a".
func FormatCycle(path []string) string {
	return strings.Join(path, " → ")
}
