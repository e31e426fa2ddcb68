package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/dispatch"
)

var (
	planSeverity    string
	planEnvironment string
	planRepository  string
	planJSON        bool
)

var planCmd = &cobra.Command{
	Use:   "plan <agent> <task...>",
	Short: "Plan a task for an agent, including delegation",
	Long: `Build the execution plan for a named agent. Strategic agents get the
standard analysis steps followed by one delegation step per tactical agent
they delegate to. When a runtime command is configured for the agent's
preferred or fallback runtime, the rendered command is printed but never run.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planSeverity, "severity", "", "Task severity (low|medium|high|critical)")
	planCmd.Flags().StringVar(&planEnvironment, "environment", "", "Environment context")
	planCmd.Flags().StringVar(&planRepository, "repo", "", "Repository path the task applies to")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadRegistry(ctx)
	if err != nil {
		return err
	}

	plan, err := a.dispatcher.Plan(ctx, dispatch.PlanRequest{
		Agent:          args[0],
		Task:           strings.Join(args[1:], " "),
		Severity:       planSeverity,
		Environment:    planEnvironment,
		RepositoryPath: planRepository,
	})
	if err != nil {
		return err
	}

	if jsonRequested(planJSON) {
		return printJSON(os.Stdout, plan)
	}

	fmt.Printf("%s %s %s\n", headingColor.Sprint("plan ›"), agentColor.Sprint(plan.Agent), dimColor.Sprintf("(%s)", plan.Tier))
	if len(plan.MatchedKeywords) > 0 {
		fmt.Printf("  matched: %s\n", strings.Join(plan.MatchedKeywords, ", "))
	}
	if plan.Severity != "" {
		fmt.Printf("  severity: %s\n", plan.Severity)
	}
	if plan.Advanced {
		fmt.Println("  requires advanced reasoning")
	}
	for _, step := range plan.Steps {
		line := fmt.Sprintf("  %d. %s", step.Number, step.Action)
		if step.DelegateTo != "" {
			line += " → " + agentColor.Sprint(step.DelegateTo)
		}
		fmt.Println(line)
	}
	if plan.Runtime.Command != "" {
		fmt.Printf("\n%s %s\n  %s\n", headingColor.Sprint("runtime ›"), plan.Runtime.ID, plan.Runtime.Command)
	}
	return nil
}
