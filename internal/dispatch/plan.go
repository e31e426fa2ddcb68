package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/config"
	"github.com/pleiades-agents/pleiades/internal/event"
	"github.com/pleiades-agents/pleiades/internal/routing"
)

// Severity levels accepted on plan requests.
var severities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

// PlanRequest asks for the execution plan of a named agent.
type PlanRequest struct {
	Agent          string `json:"agent"`
	Task           string `json:"task"`
	Severity       string `json:"severity,omitempty"`
	Environment    string `json:"environment,omitempty"`
	RepositoryPath string `json:"repositoryPath,omitempty"`
}

// Step is one entry of a strategic plan.
type Step struct {
	Number     int    `json:"step"`
	Action     string `json:"action"`
	DelegateTo string `json:"delegateTo,omitempty"`
}

// Runtime tells the caller where the agent's work should run. Command is a
// rendered hint only; nothing here executes it.
type Runtime struct {
	Execution agent.Execution `json:"execution"`
	ID        string          `json:"id,omitempty"`
	Command   string          `json:"command,omitempty"`
}

// Plan is the ready-to-run description of an agent handling a task.
type Plan struct {
	ID              string          `json:"id"`
	RegistryID      string          `json:"registryID"`
	Agent           string          `json:"agent"`
	Tier            agent.Tier      `json:"tier"`
	Category        string          `json:"category,omitempty"`
	Task            string          `json:"task"`
	Severity        string          `json:"severity,omitempty"`
	Environment     string          `json:"environment,omitempty"`
	RepositoryPath  string          `json:"repositoryPath,omitempty"`
	MatchedKeywords []string        `json:"matchedKeywords"`
	Advanced        bool            `json:"requiresAdvancedReasoning"`
	Steps           []Step          `json:"steps"`
	Delegates       []agent.Summary `json:"delegates"`
	Runtime         Runtime         `json:"runtime"`
	// HasInstructions reports whether the agent has an instruction document.
	HasInstructions bool `json:"hasInstructions"`
}

// Strategic agents always start with these steps.
var strategicSteps = []string{
	"Analyze task",
	"Develop strategy",
	"Execute plan",
	"Verify results",
}

// Plan describes how the named agent would take on a task: matched keywords,
// the fixed strategic steps followed by one delegation step per delegate, and
// the runtime hint. Tactical agents get no steps and no delegates.
func (d *Dispatcher) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Agent)
	if name == "" {
		return nil, fmt.Errorf("%w: agent is required", ErrInvalidRequest)
	}
	if req.Severity != "" && !severities[req.Severity] {
		return nil, fmt.Errorf("%w: severity %q (must be low, medium, high or critical)", ErrInvalidRequest, req.Severity)
	}

	reg := d.current.Load()
	def, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	delegates, err := routing.ResolveDelegates(reg, name)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		ID:              ulid.Make().String(),
		RegistryID:      reg.ID(),
		Agent:           def.Name,
		Tier:            def.Tier,
		Category:        def.Category,
		Task:            req.Task,
		Severity:        req.Severity,
		Environment:     req.Environment,
		RepositoryPath:  req.RepositoryPath,
		MatchedKeywords: routing.MatchedKeywords(def, req.Task),
		Advanced:        def.RequiresAdvancedReasoning,
		Steps:           []Step{},
		Delegates:       make([]agent.Summary, 0, len(delegates)),
		Runtime:         d.runtime(def, req.Task),
		HasInstructions: d.hasInstructions(ctx, def.Name),
	}
	if plan.MatchedKeywords == nil {
		plan.MatchedKeywords = []string{}
	}

	if def.IsStrategic() {
		for i, action := range strategicSteps {
			plan.Steps = append(plan.Steps, Step{Number: i + 1, Action: action})
		}
	}
	names := make([]string, 0, len(delegates))
	for _, del := range delegates {
		plan.Delegates = append(plan.Delegates, del.Summary())
		plan.Steps = append(plan.Steps, Step{
			Number:     len(plan.Steps) + 1,
			Action:     "Delegate tactical task to " + del.Name,
			DelegateTo: del.Name,
		})
		names = append(names, del.Name)
	}

	d.log.Debug().Str("agent", def.Name).Int("steps", len(plan.Steps)).Msg("plan created")
	d.publish(event.PlanCreated, event.PlanCreatedData{
		RegistryID: reg.ID(),
		Agent:      def.Name,
		Delegates:  names,
	})
	return plan, nil
}

// runtime renders the command of the first runtime, preferred then fallbacks,
// that has a configured template.
func (d *Dispatcher) runtime(def *agent.Definition, task string) Runtime {
	rt := Runtime{Execution: agent.Execution{
		Preferred: def.Execution.Preferred,
		Fallbacks: append([]string(nil), def.Execution.Fallbacks...),
	}}
	for _, id := range def.Execution.Runtimes() {
		tmpl, ok := d.commands[id]
		if !ok {
			continue
		}
		cmd, err := tmpl.Render(map[string]string{
			config.PlaceholderAgent:        def.Name,
			config.PlaceholderTask:         task,
			config.PlaceholderInstructions: d.instructionsPath(def.Name),
		})
		if err != nil {
			d.log.Warn().Err(err).Str("runtime", id).Str("agent", def.Name).Msg("cannot render runtime command")
			continue
		}
		rt.ID = id
		rt.Command = cmd
		break
	}
	return rt
}

func (d *Dispatcher) hasInstructions(ctx context.Context, name string) bool {
	if d.instructions == nil {
		return false
	}
	_, err := d.instructions.Get(ctx, name)
	return err == nil
}

func (d *Dispatcher) instructionsPath(name string) string {
	if p, ok := d.instructions.(interface{ Path(string) string }); ok {
		return p.Path(name)
	}
	return ""
}
