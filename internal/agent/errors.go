package agent

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("agent not found")

// Rule identifies the validation rule a definition violated.
type Rule string

const (
	RuleMissingField   Rule = "missing-field"
	RuleInvalidName    Rule = "invalid-name"
	RuleNameMismatch   Rule = "name-mismatch"
	RuleInvalidTier    Rule = "invalid-tier"
	RuleInvalidStatus  Rule = "invalid-status"
	RuleInvalidMode    Rule = "invalid-runtime-mode"
	RuleUnknownRuntime Rule = "unknown-runtime"
	RuleMalformed      Rule = "malformed"
	RuleDuplicateName  Rule = "duplicate-name"
	RuleDanglingRef    Rule = "dangling-delegate"
	RuleCycle          Rule = "delegation-cycle"
	RuleTacticalDelegs Rule = "tactical-delegates"
)

// Violation is one broken rule found while loading definitions.
type Violation struct {
	Agent  string `json:"agent"`
	Rule   Rule   `json:"rule"`
	Detail string `json:"detail"`
	Source string `json:"source,omitempty"`
}

func (v Violation) String() string {
	s := fmt.Sprintf("%s: [%s] %s", v.Agent, v.Rule, v.Detail)
	if v.Source != "" {
		s += " (" + v.Source + ")"
	}
	return s
}

// ValidationError carries every violation found during a load.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "agent validation failed: " + e.Violations[0].String()
	}
	lines := make([]string, 0, len(e.Violations)+1)
	lines = append(lines, fmt.Sprintf("agent validation failed with %d violations:", len(e.Violations)))
	for _, v := range e.Violations {
		lines = append(lines, "  "+v.String())
	}
	return strings.Join(lines, "\n")
}

// ByAgent groups violations by agent name.
func (e *ValidationError) ByAgent() map[string][]Violation {
	out := make(map[string][]Violation)
	for _, v := range e.Violations {
		out[v.Agent] = append(out[v.Agent], v)
	}
	return out
}

// Has reports whether any violation matches rule.
func (e *ValidationError) Has(rule Rule) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func (e *ValidationError) sort() {
	sort.SliceStable(e.Violations, func(i, j int) bool {
		a, b := e.Violations[i], e.Violations[j]
		if a.Agent != b.Agent {
			return a.Agent < b.Agent
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Detail < b.Detail
	})
}

// NotFoundError is returned when a caller names an agent missing from the snapshot.
type NotFoundError struct {
	Name        string   `json:"name"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("agent not found: %s", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// Is makes errors.Is(err, ErrNotFound) true for NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

const (
	maxSuggestions        = 3
	maxSuggestionDistance = 4
)

// suggest returns up to maxSuggestions names close to name by edit distance.
func suggest(name string, names []string) []string {
	type scored struct {
		name string
		dist int
	}
	if name == "" {
		return nil
	}
	var candidates []scored
	for _, n := range names {
		d := levenshtein.ComputeDistance(name, n)
		if d <= maxSuggestionDistance || strings.Contains(n, name) {
			candidates = append(candidates, scored{n, d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})
	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.name)
	}
	return out
}
