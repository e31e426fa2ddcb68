package agent

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type loadOptions struct {
	knownRuntimes map[string]bool
	now           func() time.Time
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithKnownRuntimes restricts execution.preferred and execution.fallbacks to ids.
// Without it runtime identifiers are passed through unchecked.
func WithKnownRuntimes(ids ...string) LoadOption {
	return func(o *loadOptions) {
		if len(ids) == 0 {
			return
		}
		o.knownRuntimes = make(map[string]bool, len(ids))
		for _, id := range ids {
			o.knownRuntimes[id] = true
		}
	}
}

// WithClock overrides the clock used to stamp the snapshot.
func WithClock(now func() time.Time) LoadOption {
	return func(o *loadOptions) {
		o.now = now
	}
}

// Load validates raw records and builds an immutable registry snapshot.
// Any violation aborts the whole load; the returned *ValidationError lists all of them.
func Load(records []Record, opts ...LoadOption) (*Registry, error) {
	var violations []Violation
	defs := make([]*Definition, 0, len(records))
	for i := range records {
		def, vs := records[i].definition()
		violations = append(violations, vs...)
		if def != nil {
			defs = append(defs, def)
		}
	}
	return build(defs, violations, opts)
}

// New builds a registry from already typed definitions, applying the same
// defaults and validation as Load. The definitions are copied.
func New(defs []*Definition, opts ...LoadOption) (*Registry, error) {
	var violations []Violation
	copies := make([]*Definition, 0, len(defs))
	for _, d := range defs {
		c := d.Clone()
		if c.Status == "" {
			c.Status = StatusStable
		}
		if c.RuntimeMode == "" {
			c.RuntimeMode = ModeOnDemand
		}
		violations = append(violations, checkDefinition(c)...)
		copies = append(copies, c)
	}
	return build(copies, violations, opts)
}

// checkDefinition applies the per-record rules to a typed definition.
func checkDefinition(d *Definition) []Violation {
	var out []Violation
	add := func(rule Rule, format string, args ...any) {
		out = append(out, Violation{Agent: d.Name, Rule: rule, Detail: fmt.Sprintf(format, args...), Source: d.Source})
	}
	if d.Name == "" {
		add(RuleMissingField, "missing required field 'name'")
	} else if !ValidName(d.Name) {
		add(RuleInvalidName, "name %q must be lowercase tokens joined by '-'", d.Name)
	}
	if !d.Tier.Valid() {
		add(RuleInvalidTier, "invalid tier %q (must be strategic or tactical)", d.Tier)
	}
	if !d.Status.Valid() {
		add(RuleInvalidStatus, "invalid status %q (must be stable or draft)", d.Status)
	}
	if !d.RuntimeMode.Valid() {
		add(RuleInvalidMode, "invalid runtime mode %q (must be on-demand or preload)", d.RuntimeMode)
	}
	if len(d.NormalizedKeywords()) == 0 {
		add(RuleMissingField, "no keywords defined")
	}
	return out
}

func build(defs []*Definition, violations []Violation, opts []LoadOption) (*Registry, error) {
	o := loadOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	agents := make(map[string]*Definition, len(defs))
	graph := make(delegationGraph, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		if first, dup := agents[d.Name]; dup {
			detail := fmt.Sprintf("agent %q is defined more than once", d.Name)
			if first.Source != "" {
				detail += " (first defined in " + first.Source + ")"
			}
			violations = append(violations, Violation{Agent: d.Name, Rule: RuleDuplicateName, Detail: detail, Source: d.Source})
			continue
		}
		agents[d.Name] = d
		graph[d.Name] = d.DelegatesTo
	}

	for _, d := range defs {
		if d.Name == "" || agents[d.Name] != d {
			continue
		}
		if d.Tier == TierTactical && len(d.DelegatesTo) > 0 {
			violations = append(violations, Violation{
				Agent:  d.Name,
				Rule:   RuleTacticalDelegs,
				Detail: fmt.Sprintf("tactical agent must not delegate (delegates_to: %v)", d.DelegatesTo),
				Source: d.Source,
			})
		}
		for _, target := range d.DelegatesTo {
			if _, ok := agents[target]; !ok {
				violations = append(violations, Violation{
					Agent:  d.Name,
					Rule:   RuleDanglingRef,
					Detail: fmt.Sprintf("delegates to unknown agent %q", target),
					Source: d.Source,
				})
			}
		}
		if o.knownRuntimes != nil {
			for _, id := range d.Execution.Runtimes() {
				if !o.knownRuntimes[id] {
					violations = append(violations, Violation{
						Agent:  d.Name,
						Rule:   RuleUnknownRuntime,
						Detail: fmt.Sprintf("unknown execution runtime %q", id),
						Source: d.Source,
					})
				}
			}
		}
	}

	for _, path := range graph.cycles() {
		violations = append(violations, Violation{
			Agent:  path[0],
			Rule:   RuleCycle,
			Detail: "delegation cycle " + FormatCycle(path),
			Source: agents[path[0]].Source,
		})
	}

	if len(violations) > 0 {
		verr := &ValidationError{Violations: violations}
		verr.sort()
		return nil, verr
	}

	now := o.now()
	return newRegistry(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(), now, agents), nil
}
