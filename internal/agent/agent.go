package agent

import (
	"regexp"
	"sort"
	"strings"
)

// Definition describes one named agent.
type Definition struct {
	Name                      string      `json:"name" yaml:"name"`
	Description               string      `json:"description" yaml:"description"`
	Version                   string      `json:"version,omitempty" yaml:"version,omitempty"`
	Tier                      Tier        `json:"tier" yaml:"tier"`
	Category                  string      `json:"category,omitempty" yaml:"category,omitempty"`
	Status                    Status      `json:"status" yaml:"status"`
	Keywords                  []string    `json:"keywords" yaml:"keywords"`
	RequiresAdvancedReasoning bool        `json:"requiresAdvancedReasoning" yaml:"requires_advanced_reasoning"`
	Execution                 Execution   `json:"execution" yaml:"execution"`
	RuntimeMode               RuntimeMode `json:"runtimeMode" yaml:"runtime_mode"`
	DelegatesTo               []string    `json:"delegatesTo,omitempty" yaml:"delegates_to,omitempty"`
	Source                    string      `json:"source,omitempty" yaml:"-"`
}

// Tier is the execution tier of an agent.
type Tier string

const (
	TierStrategic Tier = "strategic"
	TierTactical  Tier = "tactical"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierStrategic || t == TierTactical
}

// Status marks an agent as finished or work in progress.
type Status string

const (
	StatusStable Status = "stable"
	StatusDraft  Status = "draft"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusStable || s == StatusDraft
}

// RuntimeMode controls how tool integrations surface the agent.
// Preload agents are projected into skill files; on-demand agents are only reachable
// through dispatch.
type RuntimeMode string

const (
	ModeOnDemand RuntimeMode = "on-demand"
	ModePreload  RuntimeMode = "preload"
)

// Valid reports whether m is a known runtime mode.
func (m RuntimeMode) Valid() bool {
	return m == ModeOnDemand || m == ModePreload
}

// Execution names the external runtime that should carry out the agent's work.
// It is opaque to routing.
type Execution struct {
	Preferred string   `json:"preferred,omitempty" yaml:"preferred,omitempty"`
	Fallbacks []string `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// Runtimes returns the preferred runtime followed by the fallbacks.
func (e Execution) Runtimes() []string {
	var ids []string
	if e.Preferred != "" {
		ids = append(ids, e.Preferred)
	}
	return append(ids, e.Fallbacks...)
}

// Summary is the listing view of a definition.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tier        Tier     `json:"tier"`
	Category    string   `json:"category,omitempty"`
	Status      Status   `json:"status"`
	DelegatesTo []string `json:"delegatesTo,omitempty"`
}

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidName reports whether name is lowercase tokens joined by single dashes.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// IsStrategic returns true if the agent may plan and delegate.
func (d *Definition) IsStrategic() bool {
	return d.Tier == TierStrategic
}

// IsDraft returns true if the agent is flagged as work in progress.
func (d *Definition) IsDraft() bool {
	return d.Status == StatusDraft
}

// Summary returns the listing view of the definition.
func (d *Definition) Summary() Summary {
	return Summary{
		Name:        d.Name,
		Description: d.Description,
		Tier:        d.Tier,
		Category:    d.Category,
		Status:      d.Status,
		DelegatesTo: append([]string(nil), d.DelegatesTo...),
	}
}

// NormalizedKeywords returns the lower-cased keyword phrases without duplicates,
// preserving declared order.
func (d *Definition) NormalizedKeywords() []string {
	seen := make(map[string]bool, len(d.Keywords))
	out := make([]string, 0, len(d.Keywords))
	for _, kw := range d.Keywords {
		norm := strings.ToLower(kw)
		if strings.TrimSpace(norm) == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

// Clone creates a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	clone := *d
	clone.Keywords = append([]string(nil), d.Keywords...)
	clone.DelegatesTo = append([]string(nil), d.DelegatesTo...)
	clone.Execution.Fallbacks = append([]string(nil), d.Execution.Fallbacks...)
	return &clone
}

// SortByName sorts definitions in place by name.
func SortByName(defs []*Definition) {
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
}
