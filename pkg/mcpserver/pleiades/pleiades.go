// Package pleiades exposes the dispatcher as MCP tools.
//
// Every outcome a caller can act on, including unknown agents and ambiguous
// routes, is returned as a tool result rather than a protocol error.
package pleiades

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/routing"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "pleiades-agents"

// Tool names.
const (
	ToolSelect       = "select_pleiades_agent"
	ToolExecute      = "execute_pleiades_agent"
	ToolList         = "list_pleiades_agents"
	ToolInfo         = "get_pleiades_agent_info"
	ToolInstructions = "get_agent_instructions"
)

var severities = []string{"low", "medium", "high", "critical"}

type handlers struct {
	d *dispatch.Dispatcher
}

// NewServer creates an MCP server with the agent tools registered.
func NewServer(d *dispatch.Dispatcher, version string) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	h := &handlers{d: d}

	s.AddTool(mcp.NewTool(ToolSelect,
		mcp.WithDescription("Select the most appropriate Pleiades agent for a task based on keywords and context"),
		mcp.WithString("task_description",
			mcp.Required(),
			mcp.Description("Description of the task to be performed"),
		),
		mcp.WithString("explicit_agent",
			mcp.Description("Optional: Explicitly request a specific agent by name"),
		),
		mcp.WithString("tier",
			mcp.Enum(string(agent.TierStrategic), string(agent.TierTactical)),
			mcp.Description("Optional: Only consider agents of this tier"),
		),
		mcp.WithString("category",
			mcp.Description("Optional: Only consider agents of this category"),
		),
	), h.selectAgent)

	s.AddTool(mcp.NewTool(ToolExecute,
		mcp.WithDescription("Execute a Pleiades agent to analyze and plan a task"),
		mcp.WithString("agent_name",
			mcp.Required(),
			mcp.Description("Name of the agent to execute"),
		),
		mcp.WithString("task_description",
			mcp.Required(),
			mcp.Description("Detailed description of the task"),
		),
		mcp.WithString("repository_path",
			mcp.Description("Optional: Path to repository if task is repository-specific"),
		),
		mcp.WithString("severity",
			mcp.Enum(severities...),
			mcp.Description("Task severity/priority"),
		),
		mcp.WithString("environment",
			mcp.Description("Environment context"),
		),
	), h.executeAgent)

	s.AddTool(mcp.NewTool(ToolList,
		mcp.WithDescription("List all available Pleiades agents with their details"),
		mcp.WithString("tier",
			mcp.Enum(string(agent.TierStrategic), string(agent.TierTactical)),
			mcp.Description("Optional: Filter by agent tier"),
		),
		mcp.WithString("category",
			mcp.Description("Optional: Filter by category"),
		),
	), h.listAgents)

	s.AddTool(mcp.NewTool(ToolInfo,
		mcp.WithDescription("Get detailed information about a specific Pleiades agent"),
		mcp.WithString("agent_name",
			mcp.Required(),
			mcp.Description("Name of the agent"),
		),
	), h.agentInfo)

	s.AddTool(mcp.NewTool(ToolInstructions,
		mcp.WithDescription("Get the full instructions (AGENT.md) for a specific agent"),
		mcp.WithString("agent_name",
			mcp.Required(),
			mcp.Description("Name of the agent"),
		),
	), h.agentInstructions)

	return s
}

func (h *handlers) selectAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := request.RequireString("task_description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	decision, err := h.d.Select(ctx, dispatch.SelectRequest{
		Task:     task,
		Agent:    request.GetString("explicit_agent", ""),
		Tier:     agent.Tier(request.GetString("tier", "")),
		Category: request.GetString("category", ""),
	})
	if err != nil {
		return errorResult(err)
	}

	if decision.Ambiguous {
		var b strings.Builder
		fmt.Fprintf(&b, "No suitable agent found for task: %s\n", task)
		if decision.DefaultAgent != "" {
			fmt.Fprintf(&b, "\nThe configured default agent is **%s**. Pass it as `explicit_agent` to use it.\n", decision.DefaultAgent)
		}
		return mcp.NewToolResultText(b.String()), nil
	}

	// The definition comes from the snapshot the route was computed against.
	def := decision.Definition
	if def == nil {
		return nil, fmt.Errorf("decision %s carries no definition", decision.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Selected Agent: %s\n\n", def.Name)
	fmt.Fprintf(&b, "**Description**: %s\n", def.Description)
	fmt.Fprintf(&b, "**Tier**: %s\n", def.Tier)
	fmt.Fprintf(&b, "**Category**: %s\n\n", orNA(def.Category))
	if decision.Score != nil {
		fmt.Fprintf(&b, "**Score**: %d\n", *decision.Score)
	}
	fmt.Fprintf(&b, "**Matched Keywords**: %s\n\n", strings.Join(routing.MatchedKeywords(def, task), ", "))
	if len(def.DelegatesTo) > 0 {
		fmt.Fprintf(&b, "**Can Delegate To**: %s\n\n", strings.Join(def.DelegatesTo, ", "))
	}
	if len(decision.Candidates) > 1 {
		b.WriteString("**Other Candidates**:\n")
		for _, c := range decision.Candidates[1:] {
			fmt.Fprintf(&b, "- %s (%s, score %d)\n", c.Name, c.Tier, c.Score)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Use `%s` to run this agent.\n", ToolExecute)

	return mcp.NewToolResultText(b.String()), nil
}

func (h *handlers) executeAgent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("agent_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := request.RequireString("task_description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	plan, err := h.d.Plan(ctx, dispatch.PlanRequest{
		Agent:          name,
		Task:           task,
		Severity:       request.GetString("severity", ""),
		Environment:    request.GetString("environment", ""),
		RepositoryPath: request.GetString("repository_path", ""),
	})
	if err != nil {
		return errorResult(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Agent Execution: %s\n\n", plan.Agent)
	fmt.Fprintf(&b, "**Status**: planned\n")
	fmt.Fprintf(&b, "**Message**: %s agent %s is ready\n\n", plan.Tier, plan.Agent)

	b.WriteString("### Analysis\n")
	fmt.Fprintf(&b, "- **Tier**: %s\n", plan.Tier)
	fmt.Fprintf(&b, "- **Category**: %s\n", orNA(plan.Category))
	fmt.Fprintf(&b, "- **Matched Keywords**: %s\n", strings.Join(plan.MatchedKeywords, ", "))
	if plan.Severity != "" {
		fmt.Fprintf(&b, "- **Severity**: %s\n", plan.Severity)
	}
	if plan.Environment != "" {
		fmt.Fprintf(&b, "- **Environment**: %s\n", plan.Environment)
	}
	if plan.Advanced {
		b.WriteString("- **Requires Advanced Reasoning**: Yes\n")
	}
	b.WriteString("\n")

	if len(plan.Steps) > 0 {
		fmt.Fprintf(&b, "### Plan (%d steps)\n", len(plan.Steps))
		for _, step := range plan.Steps {
			delegation := ""
			if step.DelegateTo != "" {
				delegation = " → " + step.DelegateTo
			}
			fmt.Fprintf(&b, "%d. %s%s\n", step.Number, step.Action, delegation)
		}
		b.WriteString("\n")
	}

	if len(plan.Delegates) > 0 {
		names := make([]string, 0, len(plan.Delegates))
		for _, d := range plan.Delegates {
			names = append(names, d.Name)
		}
		b.WriteString("### Delegation Targets\n")
		fmt.Fprintf(&b, "This agent can delegate to: %s\n\n", strings.Join(names, ", "))
	}

	if plan.Runtime.Command != "" {
		b.WriteString("### Runtime\n")
		fmt.Fprintf(&b, "Run with `%s`:\n\n```sh\n%s\n```\n\n", plan.Runtime.ID, plan.Runtime.Command)
	}

	if plan.HasInstructions {
		b.WriteString("### Agent Instructions Available\n")
		fmt.Fprintf(&b, "Use `%s` to view full instructions.\n", ToolInstructions)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (h *handlers) listAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := dispatch.ListFilter{
		Tier:     agent.Tier(request.GetString("tier", "")),
		Category: request.GetString("category", ""),
	}
	if filter.Tier != "" && !filter.Tier.Valid() {
		return mcp.NewToolResultError("tier must be strategic or tactical"), nil
	}

	var strategic, tactical []agent.Summary
	for _, s := range h.d.List(ctx, filter) {
		if s.Tier == agent.TierStrategic {
			strategic = append(strategic, s)
		} else {
			tactical = append(tactical, s)
		}
	}

	var b strings.Builder
	b.WriteString("## Available Pleiades Agents\n\n")
	if len(strategic) > 0 {
		fmt.Fprintf(&b, "### Strategic Agents (%d)\n\n", len(strategic))
		for _, s := range strategic {
			writeSummary(&b, s)
			if len(s.DelegatesTo) > 0 {
				fmt.Fprintf(&b, "  Delegates to: %s\n", strings.Join(s.DelegatesTo, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(tactical) > 0 {
		fmt.Fprintf(&b, "### Tactical Agents (%d)\n\n", len(tactical))
		for _, s := range tactical {
			writeSummary(&b, s)
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\n**Total**: %d agents", len(strategic)+len(tactical))

	return mcp.NewToolResultText(b.String()), nil
}

func writeSummary(b *strings.Builder, s agent.Summary) {
	fmt.Fprintf(b, "**%s** (%s)", s.Name, orNA(s.Category))
	if s.Status == agent.StatusDraft {
		b.WriteString(" [draft]")
	}
	fmt.Fprintf(b, "\n  %s\n", s.Description)
}

func (h *handlers) agentInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("agent_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	def, err := h.d.GetInfo(ctx, name)
	if err != nil {
		return errorResult(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", def.Name)
	fmt.Fprintf(&b, "**Description**: %s\n\n", def.Description)
	fmt.Fprintf(&b, "**Tier**: %s\n", def.Tier)
	fmt.Fprintf(&b, "**Category**: %s\n", orNA(def.Category))
	fmt.Fprintf(&b, "**Status**: %s\n", def.Status)
	fmt.Fprintf(&b, "**Requires Advanced Reasoning**: %s\n", yesNo(def.RequiresAdvancedReasoning))
	fmt.Fprintf(&b, "**Runtime Mode**: %s\n", def.RuntimeMode)
	if runtimes := def.Execution.Runtimes(); len(runtimes) > 0 {
		fmt.Fprintf(&b, "**Execution**: %s\n", strings.Join(runtimes, " → "))
	}
	b.WriteString("\n")

	if len(def.Keywords) > 0 {
		b.WriteString("**Keywords**:\n")
		for _, kw := range def.Keywords {
			fmt.Fprintf(&b, "- %s\n", kw)
		}
		b.WriteString("\n")
	}
	if len(def.DelegatesTo) > 0 {
		b.WriteString("**Delegates To**:\n")
		for _, d := range def.DelegatesTo {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (h *handlers) agentInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("agent_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := h.d.GetInstructions(ctx, name)
	if errors.Is(err, instructions.ErrMissing) {
		return mcp.NewToolResultText(fmt.Sprintf("No instructions found for agent '%s'.", name)), nil
	}
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(text), nil
}

// errorResult turns caller mistakes into readable tool results. Anything else
// is a server fault and surfaces as a protocol error.
func errorResult(err error) (*mcp.CallToolResult, error) {
	var nf *agent.NotFoundError
	switch {
	case errors.As(err, &nf):
		msg := fmt.Sprintf("Agent '%s' not found.", nf.Name)
		if len(nf.Suggestions) > 0 {
			msg += fmt.Sprintf(" Did you mean: %s?", strings.Join(nf.Suggestions, ", "))
		}
		return mcp.NewToolResultText(msg), nil
	case errors.Is(err, dispatch.ErrInvalidRequest):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		return nil, err
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
