package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
	"github.com/pleiades-agents/pleiades/internal/routing"
)

var (
	selectAgent        string
	selectTier         string
	selectCategory     string
	selectExcludeDraft bool
	selectJSON         bool
)

var selectCmd = &cobra.Command{
	Use:   "select <task...>",
	Short: "Route a task to the best matching agent",
	Long: `Score every agent's keywords against the task and print the winner.

Ties go to strategic agents, then to the alphabetically first name. When no
agent matches the command exits with status 2 and names the configured
default agent, if any.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSelect,
}

func init() {
	selectCmd.Flags().StringVarP(&selectAgent, "agent", "a", "", "Select this agent explicitly")
	selectCmd.Flags().StringVar(&selectTier, "tier", "", "Only consider agents of this tier")
	selectCmd.Flags().StringVar(&selectCategory, "category", "", "Only consider agents of this category")
	selectCmd.Flags().BoolVar(&selectExcludeDraft, "exclude-draft", false, "Skip draft agents")
	selectCmd.Flags().BoolVar(&selectJSON, "json", false, "Print the decision as JSON")
}

func runSelect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadRegistry(ctx)
	if err != nil {
		return err
	}

	req := dispatch.SelectRequest{
		Task:     strings.Join(args, " "),
		Agent:    selectAgent,
		Tier:     agent.Tier(selectTier),
		Category: selectCategory,
	}
	if cmd.Flags().Changed("exclude-draft") {
		req.ExcludeDraft = &selectExcludeDraft
	}

	decision, err := a.dispatcher.Select(ctx, req)
	if err != nil {
		return err
	}

	if jsonRequested(selectJSON) {
		if err := printJSON(os.Stdout, decision); err != nil {
			return err
		}
	} else {
		printDecision(decision)
	}

	if decision.Ambiguous {
		return &exitError{code: 2, err: fmt.Errorf("no agent matched %q", req.Task)}
	}
	return nil
}

func printDecision(d *routing.Decision) {
	if d.Ambiguous {
		warnColor.Println("No agent matched the task.")
		if d.DefaultAgent != "" {
			fmt.Printf("Default agent: %s (pass --agent %s to use it)\n", agentColor.Sprint(d.DefaultAgent), d.DefaultAgent)
		}
		return
	}

	fmt.Printf("%s %s", headingColor.Sprint("agent ›"), agentColor.Sprint(d.Agent))
	if d.Explicit {
		fmt.Print(dimColor.Sprint(" (explicit)"))
	} else if d.Score != nil {
		fmt.Print(dimColor.Sprintf(" (score %d)", *d.Score))
	}
	fmt.Println()

	for i, c := range d.Candidates {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Printf("  %s %-28s %-10s %d  %s\n", marker, c.Name, c.Tier, c.Score, dimColor.Sprint(strings.Join(c.Matched, ", ")))
	}
}
