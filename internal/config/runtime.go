package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Placeholders recognised in runtime command templates.
const (
	PlaceholderAgent        = "agent"
	PlaceholderTask         = "task"
	PlaceholderInstructions = "instructions"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z]+)\}`)

// CommandTemplate is a validated runtime command with {placeholder} slots.
// Placeholders must stand as unquoted shell words or word parts; values are
// shell-quoted when rendered so they always expand to a single argument.
type CommandTemplate struct {
	raw          string
	placeholders []string
}

// ParseCommand validates a runtime command template.
func ParseCommand(tmpl string) (*CommandTemplate, error) {
	if strings.TrimSpace(tmpl) == "" {
		return nil, fmt.Errorf("empty command")
	}

	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		name := m[1]
		switch name {
		case PlaceholderAgent, PlaceholderTask, PlaceholderInstructions:
		default:
			return nil, fmt.Errorf("unknown placeholder {%s}", name)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	// Swap each placeholder for a marker word and parse the result.
	probe := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		return marker(m[1 : len(m)-1])
	})
	file, err := parseShell(probe)
	if err != nil {
		return nil, err
	}

	var quoted []string
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.SglQuoted:
			quoted = append(quoted, markersIn(n.Value)...)
		case *syntax.DblQuoted:
			for _, part := range n.Parts {
				if lit, ok := part.(*syntax.Lit); ok {
					quoted = append(quoted, markersIn(lit.Value)...)
				}
			}
		}
		return true
	})
	if len(quoted) > 0 {
		return nil, fmt.Errorf("placeholder {%s} must not be inside quotes", quoted[0])
	}

	return &CommandTemplate{raw: tmpl, placeholders: names}, nil
}

// String returns the template as written.
func (c *CommandTemplate) String() string {
	return c.raw
}

// Placeholders returns the distinct placeholders used, sorted.
func (c *CommandTemplate) Placeholders() []string {
	return append([]string(nil), c.placeholders...)
}

// Render substitutes shell-quoted values for the placeholders. Placeholders
// without a value render as an empty argument.
func (c *CommandTemplate) Render(values map[string]string) (string, error) {
	var renderErr error
	out := placeholderPattern.ReplaceAllStringFunc(c.raw, func(m string) string {
		q, err := syntax.Quote(values[m[1:len(m)-1]], syntax.LangBash)
		if err != nil && renderErr == nil {
			renderErr = fmt.Errorf("cannot quote {%s}: %w", m[1:len(m)-1], err)
		}
		return q
	})
	if renderErr != nil {
		return "", renderErr
	}
	if _, err := parseShell(out); err != nil {
		return "", err
	}
	return out, nil
}

func parseShell(src string) (*syntax.File, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)
	file, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	return file, nil
}

func marker(name string) string {
	return "__pleiades_" + name + "__"
}

func markersIn(s string) []string {
	var found []string
	for _, name := range []string{PlaceholderAgent, PlaceholderInstructions, PlaceholderTask} {
		if strings.Contains(s, marker(name)) {
			found = append(found, name)
		}
	}
	return found
}
