// Package skills projects preload agents into SKILL.md files that coding tools
// activate by keyword.
package skills

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/logging"
	"github.com/pleiades-agents/pleiades/internal/storage"
)

// FileName is the skill document written for each agent.
const FileName = "SKILL.md"

// Status describes what a sync did, or would do, to one skill file.
type Status string

const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusRemoved   Status = "removed"
)

// File is the outcome for one skill file.
type File struct {
	Agent     string `json:"agent"`
	Path      string `json:"path"`
	Status    Status `json:"status"`
	Diff      string `json:"diff,omitempty"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Result lists every skill file touched by a sync in agent order, followed by
// stale files.
type Result struct {
	Files []File `json:"files"`
	// Skipped names the agents that are not preloaded.
	Skipped []string `json:"skipped"`
}

// Drift reports whether any file differs from the registry.
func (r *Result) Drift() bool {
	for _, f := range r.Files {
		if f.Status != StatusUnchanged {
			return true
		}
	}
	return false
}

// Count returns the number of files with the given status.
func (r *Result) Count(status Status) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Generator renders skill files into an output tree.
type Generator struct {
	instructions instructions.Store
	out          *storage.Storage
	log          zerolog.Logger
}

// NewGenerator creates a Generator writing below out.
func NewGenerator(store instructions.Store, out *storage.Storage) *Generator {
	return &Generator{
		instructions: store,
		out:          out,
		log:          logging.Component("skills"),
	}
}

type frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Activation  string   `yaml:"activation"`
	Model       string   `yaml:"model,omitempty"`
}

// Render returns the SKILL.md document for def: YAML frontmatter followed by the
// agent's instructions.
func Render(def *agent.Definition, body string) ([]byte, error) {
	fm := frontmatter{
		Name:        def.Name,
		Description: def.Description,
		Keywords:    def.Keywords,
		Activation:  "keywords",
	}
	if def.RequiresAdvancedReasoning {
		fm.Model = "advanced"
	}
	if fm.Keywords == nil {
		fm.Keywords = []string{}
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("encode frontmatter for %s: %w", def.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Check compares the output tree with what Write would produce. Nothing is
// written.
func (g *Generator) Check(ctx context.Context, reg *agent.Registry) (*Result, error) {
	res, _, err := g.plan(ctx, reg)
	return res, err
}

// Write brings the output tree in line with the registry: preload agents get a
// fresh SKILL.md and skill directories of other agents are removed.
func (g *Generator) Write(ctx context.Context, reg *agent.Registry) (*Result, error) {
	res, contents, err := g.plan(ctx, reg)
	if err != nil {
		return nil, err
	}
	for _, f := range res.Files {
		switch f.Status {
		case StatusCreated, StatusUpdated:
			if err := g.out.Put(ctx, []string{f.Agent, FileName}, contents[f.Agent]); err != nil {
				return nil, fmt.Errorf("write skill %s: %w", f.Agent, err)
			}
		case StatusRemoved:
			if err := g.out.Delete(ctx, []string{f.Agent}); err != nil {
				return nil, fmt.Errorf("remove skill %s: %w", f.Agent, err)
			}
		}
		g.log.Debug().Str("agent", f.Agent).Str("status", string(f.Status)).Msg("skill synced")
	}
	g.log.Info().
		Int("created", res.Count(StatusCreated)).
		Int("updated", res.Count(StatusUpdated)).
		Int("removed", res.Count(StatusRemoved)).
		Msg("skills written")
	return res, nil
}

func (g *Generator) plan(ctx context.Context, reg *agent.Registry) (*Result, map[string][]byte, error) {
	res := &Result{Files: []File{}, Skipped: []string{}}
	contents := make(map[string][]byte)
	wanted := make(map[string]bool)

	for _, def := range reg.List() {
		if def.RuntimeMode != agent.ModePreload {
			res.Skipped = append(res.Skipped, def.Name)
			continue
		}
		wanted[def.Name] = true

		body, err := g.body(ctx, def.Name)
		if err != nil {
			return nil, nil, err
		}
		content, err := Render(def, body)
		if err != nil {
			return nil, nil, err
		}
		contents[def.Name] = content

		old, err := g.existing(ctx, def.Name)
		if err != nil {
			return nil, nil, err
		}
		res.Files = append(res.Files, compare(def.Name, old, content))
	}

	dirs, err := g.out.List(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range dirs {
		if wanted[name] || !g.out.Exists(ctx, []string{name, FileName}) {
			continue
		}
		old, err := g.existing(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		f := File{Agent: name, Path: name + "/" + FileName, Status: StatusRemoved}
		f.Diff, f.Additions, f.Deletions = unifiedDiff(f.Path, string(old), "")
		res.Files = append(res.Files, f)
	}
	return res, contents, nil
}

// body returns the agent's instructions, or "" when it has none.
func (g *Generator) body(ctx context.Context, name string) (string, error) {
	if g.instructions == nil {
		return "", nil
	}
	text, err := g.instructions.Get(ctx, name)
	if errors.Is(err, instructions.ErrMissing) {
		g.log.Debug().Str("agent", name).Msg("no instructions, writing frontmatter only")
		return "", nil
	}
	return text, err
}

func (g *Generator) existing(ctx context.Context, name string) ([]byte, error) {
	data, err := g.out.Get(ctx, []string{name, FileName})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func compare(name string, old, content []byte) File {
	f := File{Agent: name, Path: name + "/" + FileName}
	switch {
	case old == nil:
		f.Status = StatusCreated
	case bytes.Equal(old, content):
		f.Status = StatusUnchanged
		return f
	default:
		f.Status = StatusUpdated
	}
	f.Diff, f.Additions, f.Deletions = unifiedDiff(f.Path, string(old), string(content))
	return f
}
