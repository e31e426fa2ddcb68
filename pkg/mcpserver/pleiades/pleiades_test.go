package pleiades

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/source"
)

func newTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	records := source.Static{
		{Name: "commit-writer", Description: "Writes commit messages", Tier: "tactical", Category: "development", Keywords: agent.Phrases{"commit message", "git commit"}},
		{Name: "secret-scanner", Description: "Finds leaked secrets", Tier: "tactical", Category: "security", Keywords: agent.Phrases{"secret", "api key"}},
		{Name: "security-lead", Description: "Leads security reviews", Tier: "strategic", Category: "security", Keywords: agent.Phrases{"security review", "api key"}, DelegatesTo: []string{"secret-scanner"}},
	}
	store := instructions.Map{"commit-writer": "# Commit Writer\n\nUse conventional commits."}
	d := dispatch.New(records, store, dispatch.WithLogger(zerolog.Nop()), dispatch.WithDefaultAgent("commit-writer"))
	_, err := d.Reload(context.Background(), dispatch.TriggerStartup)
	require.NoError(t, err)
	return NewServer(d, "test")
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "%s tool should exist", name)

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args

	result, err := tool.Handler(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content should be text")
	return text.Text
}

func TestServer_RegistersTools(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{ToolSelect, ToolExecute, ToolList, ToolInfo, ToolInstructions} {
		tool := s.GetTool(name)
		require.NotNil(t, tool, name)
		assert.Equal(t, name, tool.Tool.Name)
		assert.NotEmpty(t, tool.Tool.Description)
	}
}

func TestSelectTool(t *testing.T) {
	s := newTestServer(t)

	t.Run("keyword match", func(t *testing.T) {
		text := resultText(t, callTool(t, s, ToolSelect, map[string]any{"task_description": "write a git commit message"}))
		assert.Contains(t, text, "## Selected Agent: commit-writer")
		assert.Contains(t, text, "**Matched Keywords**: commit message, git commit")
		assert.Contains(t, text, "**Score**: 2")
	})

	t.Run("tie goes to strategic", func(t *testing.T) {
		text := resultText(t, callTool(t, s, ToolSelect, map[string]any{"task_description": "rotate the api key"}))
		assert.Contains(t, text, "## Selected Agent: security-lead")
		assert.Contains(t, text, "**Can Delegate To**: secret-scanner")
		assert.Contains(t, text, "- secret-scanner (tactical, score 1)")
	})

	t.Run("explicit agent", func(t *testing.T) {
		text := resultText(t, callTool(t, s, ToolSelect, map[string]any{"task_description": "anything", "explicit_agent": "secret-scanner"}))
		assert.Contains(t, text, "## Selected Agent: secret-scanner")
		assert.NotContains(t, text, "**Score**")
	})

	t.Run("ambiguous is not an error", func(t *testing.T) {
		result := callTool(t, s, ToolSelect, map[string]any{"task_description": "bake bread"})
		assert.False(t, result.IsError)
		text := resultText(t, result)
		assert.Contains(t, text, "No suitable agent found for task: bake bread")
		assert.Contains(t, text, "**commit-writer**")
	})

	t.Run("unknown explicit agent", func(t *testing.T) {
		result := callTool(t, s, ToolSelect, map[string]any{"task_description": "x", "explicit_agent": "comit-writer"})
		assert.False(t, result.IsError)
		assert.Equal(t, "Agent 'comit-writer' not found. Did you mean: commit-writer?", resultText(t, result))
	})

	t.Run("missing task", func(t *testing.T) {
		result := callTool(t, s, ToolSelect, map[string]any{})
		assert.True(t, result.IsError)
	})
}

func TestExecuteTool(t *testing.T) {
	s := newTestServer(t)

	text := resultText(t, callTool(t, s, ToolExecute, map[string]any{
		"agent_name":       "security-lead",
		"task_description": "security review of the login flow",
		"severity":         "high",
	}))
	assert.Contains(t, text, "## Agent Execution: security-lead")
	assert.Contains(t, text, "- **Severity**: high")
	assert.Contains(t, text, "### Plan (5 steps)")
	assert.Contains(t, text, "5. Delegate tactical task to secret-scanner → secret-scanner")
	assert.Contains(t, text, "This agent can delegate to: secret-scanner")
	assert.NotContains(t, text, "### Agent Instructions Available")

	text = resultText(t, callTool(t, s, ToolExecute, map[string]any{
		"agent_name":       "commit-writer",
		"task_description": "git commit",
	}))
	assert.NotContains(t, text, "### Delegation Targets")
	assert.NotContains(t, text, "### Plan")
	assert.Contains(t, text, "- **Matched Keywords**: git commit")
	assert.Contains(t, text, "### Agent Instructions Available")

	result := callTool(t, s, ToolExecute, map[string]any{"agent_name": "nobody", "task_description": "x"})
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Agent 'nobody' not found.")

	result = callTool(t, s, ToolExecute, map[string]any{"agent_name": "commit-writer", "task_description": "x", "severity": "extreme"})
	assert.True(t, result.IsError)
}

func TestListTool(t *testing.T) {
	s := newTestServer(t)

	text := resultText(t, callTool(t, s, ToolList, map[string]any{}))
	assert.Contains(t, text, "### Strategic Agents (1)")
	assert.Contains(t, text, "### Tactical Agents (2)")
	assert.Contains(t, text, "  Delegates to: secret-scanner")
	assert.Contains(t, text, "**Total**: 3 agents")

	text = resultText(t, callTool(t, s, ToolList, map[string]any{"category": "security", "tier": "tactical"}))
	assert.NotContains(t, text, "Strategic Agents")
	assert.Contains(t, text, "**secret-scanner** (security)")
	assert.Contains(t, text, "**Total**: 1 agents")

	result := callTool(t, s, ToolList, map[string]any{"tier": "operational"})
	assert.True(t, result.IsError)
}

func TestInfoTool(t *testing.T) {
	s := newTestServer(t)

	text := resultText(t, callTool(t, s, ToolInfo, map[string]any{"agent_name": "security-lead"}))
	assert.Contains(t, text, "## security-lead")
	assert.Contains(t, text, "**Tier**: strategic")
	assert.Contains(t, text, "**Requires Advanced Reasoning**: No")
	assert.Contains(t, text, "- security review\n- api key\n")
	assert.Contains(t, text, "**Delegates To**:\n- secret-scanner")

	result := callTool(t, s, ToolInfo, map[string]any{"agent_name": "ghost"})
	assert.False(t, result.IsError)
	assert.Equal(t, "Agent 'ghost' not found.", resultText(t, result))
}

func TestInstructionsTool(t *testing.T) {
	s := newTestServer(t)

	text := resultText(t, callTool(t, s, ToolInstructions, map[string]any{"agent_name": "commit-writer"}))
	assert.Equal(t, "# Commit Writer\n\nUse conventional commits.", text)

	text = resultText(t, callTool(t, s, ToolInstructions, map[string]any{"agent_name": "secret-scanner"}))
	assert.Equal(t, "No instructions found for agent 'secret-scanner'.", text)

	text = resultText(t, callTool(t, s, ToolInstructions, map[string]any{"agent_name": "ghost"}))
	assert.Equal(t, "Agent 'ghost' not found.", text)
}

// flipSource drops commit-writer from every other load.
type flipSource struct {
	loads atomic.Int64
}

func (s *flipSource) Records(ctx context.Context) ([]agent.Record, error) {
	records := []agent.Record{
		{Name: "secret-scanner", Description: "Finds leaked secrets", Tier: "tactical", Keywords: agent.Phrases{"secret"}},
	}
	if s.loads.Add(1)%2 == 1 {
		records = append(records, agent.Record{Name: "commit-writer", Description: "Writes commit messages", Tier: "tactical", Keywords: agent.Phrases{"commit message"}})
	}
	return records, nil
}

func TestSelectTool_ConsistentDuringReload(t *testing.T) {
	d := dispatch.New(&flipSource{}, instructions.Map{}, dispatch.WithLogger(zerolog.Nop()))
	_, err := d.Reload(context.Background(), dispatch.TriggerStartup)
	require.NoError(t, err)
	s := NewServer(d, "test")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_, _ = d.Reload(ctx, dispatch.TriggerWatch)
		}
	}()

	for i := 0; i < 2000; i++ {
		text := resultText(t, callTool(t, s, ToolSelect, map[string]any{"task_description": "write a commit message"}))
		if text == "No suitable agent found for task: write a commit message\n" {
			continue
		}
		require.Contains(t, text, "## Selected Agent: commit-writer")
		require.Contains(t, text, "**Description**: Writes commit messages")
	}
	cancel()
	wg.Wait()
}
