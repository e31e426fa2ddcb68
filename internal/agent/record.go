package agent

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is a raw, loosely typed agent declaration as read from a declarative source.
// It accepts both the current field names and the legacy layout
// (triggers.keywords, requires_opus, runtime.mode, runtime.execution).
type Record struct {
	Name                      string         `yaml:"name"`
	Description               string         `yaml:"description"`
	Version                   string         `yaml:"version"`
	Tier                      string         `yaml:"tier"`
	Category                  string         `yaml:"category"`
	Status                    string         `yaml:"status"`
	Keywords                  Phrases        `yaml:"keywords"`
	Triggers                  *RecordTrigger `yaml:"triggers"`
	RequiresAdvancedReasoning *bool          `yaml:"requires_advanced_reasoning"`
	RequiresOpus              *bool          `yaml:"requires_opus"`
	Execution                 *Execution     `yaml:"execution"`
	RuntimeMode               string         `yaml:"runtime_mode"`
	Runtime                   *RecordRuntime `yaml:"runtime"`
	DelegatesTo               []string       `yaml:"delegates_to"`

	// Source is where the record came from, used in violation reports.
	Source string `yaml:"-"`
	// Dir, when set, must equal Name.
	Dir string `yaml:"-"`
	// Err is set by sources that could not decode the record at all.
	Err error `yaml:"-"`
}

// RecordTrigger is the legacy trigger block.
type RecordTrigger struct {
	Keywords Phrases `yaml:"keywords"`
}

// RecordRuntime is the legacy runtime block.
type RecordRuntime struct {
	Mode      string     `yaml:"mode"`
	Execution *Execution `yaml:"execution"`
	Preferred string     `yaml:"preferred"`
	Fallback  string     `yaml:"fallback"`
}

// Phrases is a keyword list that also accepts a single scalar.
type Phrases []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Phrases) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*p = Phrases{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("keywords: expected string or list, got %s", kindName(value.Kind))
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "node"
	}
}

// ParseRecord decodes a YAML document into a Record.
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// label identifies the record in violations before its name is known.
func (r *Record) label() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Dir != "":
		return r.Dir
	case r.Source != "":
		return r.Source
	default:
		return "<unnamed>"
	}
}

// definition converts the record into a Definition, applying defaults and
// reporting per-record violations.
func (r *Record) definition() (*Definition, []Violation) {
	var violations []Violation
	add := func(rule Rule, format string, args ...any) {
		violations = append(violations, Violation{
			Agent:  r.label(),
			Rule:   rule,
			Detail: fmt.Sprintf(format, args...),
			Source: r.Source,
		})
	}

	if r.Err != nil {
		add(RuleMalformed, "%v", r.Err)
		return nil, violations
	}

	def := &Definition{
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		Tier:        Tier(r.Tier),
		Category:    r.Category,
		Status:      Status(r.Status),
		DelegatesTo: append([]string(nil), r.DelegatesTo...),
		Source:      r.Source,
	}

	switch {
	case r.Name == "":
		add(RuleMissingField, "missing required field 'name'")
	case !ValidName(r.Name):
		add(RuleInvalidName, "name %q must be lowercase tokens joined by '-'", r.Name)
	}
	if r.Dir != "" && r.Name != "" && r.Name != r.Dir {
		add(RuleNameMismatch, "name %q doesn't match directory %q", r.Name, r.Dir)
	}

	switch {
	case r.Tier == "":
		add(RuleMissingField, "missing required field 'tier'")
	case !def.Tier.Valid():
		add(RuleInvalidTier, "invalid tier %q (must be strategic or tactical)", r.Tier)
	}

	if def.Status == "" {
		def.Status = StatusStable
	} else if !def.Status.Valid() {
		add(RuleInvalidStatus, "invalid status %q (must be stable or draft)", r.Status)
	}

	keywords := r.Keywords
	if len(keywords) == 0 && r.Triggers != nil {
		keywords = r.Triggers.Keywords
	}
	for _, kw := range keywords {
		if strings.TrimSpace(kw) != "" {
			def.Keywords = append(def.Keywords, kw)
		}
	}
	if len(def.Keywords) == 0 {
		add(RuleMissingField, "no keywords defined")
	}

	switch {
	case r.RequiresAdvancedReasoning != nil:
		def.RequiresAdvancedReasoning = *r.RequiresAdvancedReasoning
	case r.RequiresOpus != nil:
		def.RequiresAdvancedReasoning = *r.RequiresOpus
	}

	mode := r.RuntimeMode
	if mode == "" && r.Runtime != nil {
		mode = r.Runtime.Mode
	}
	def.RuntimeMode = RuntimeMode(mode)
	if def.RuntimeMode == "" {
		def.RuntimeMode = ModeOnDemand
	} else if !def.RuntimeMode.Valid() {
		add(RuleInvalidMode, "invalid runtime mode %q (must be on-demand or preload)", mode)
	}

	switch {
	case r.Execution != nil:
		def.Execution = *r.Execution
	case r.Runtime != nil && r.Runtime.Execution != nil:
		def.Execution = *r.Runtime.Execution
	case r.Runtime != nil:
		def.Execution.Preferred = r.Runtime.Preferred
		if r.Runtime.Fallback != "" {
			def.Execution.Fallbacks = []string{r.Runtime.Fallback}
		}
	}
	def.Execution.Fallbacks = append([]string(nil), def.Execution.Fallbacks...)

	return def, violations
}
