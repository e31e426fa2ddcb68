package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every agent definition",
	Long: `Load the agents directory the same way the server does and report every
violation at once: missing fields, bad tiers, duplicate names, dangling
delegates, delegation cycles and unknown runtimes.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print violations as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}

	reg, err := a.dispatcher.Reload(cmd.Context(), dispatch.TriggerManual)
	var verr *agent.ValidationError
	if errors.As(err, &verr) {
		if jsonRequested(validateJSON) {
			if err := printJSON(os.Stdout, verr); err != nil {
				return err
			}
		} else {
			printViolations(verr)
		}
		return &exitError{code: 1, err: fmt.Errorf("%d violations in %s", len(verr.Violations), a.config.AgentsDir)}
	}
	if err != nil {
		return err
	}

	if jsonRequested(validateJSON) {
		return printJSON(os.Stdout, map[string]any{
			"valid":     true,
			"id":        reg.ID(),
			"agents":    reg.Count(),
			"strategic": len(reg.ListByTier(agent.TierStrategic)),
			"tactical":  len(reg.ListByTier(agent.TierTactical)),
		})
	}
	printSummary(os.Stdout, reg, a.config.AgentsDir)
	return nil
}

func printSummary(w io.Writer, reg *agent.Registry, dir string) {
	fmt.Fprintf(w, "%s %d agents in %s\n", agentColor.Sprint("ok"), reg.Count(), dir)
	fmt.Fprintf(w, "  strategic: %d\n", len(reg.ListByTier(agent.TierStrategic)))
	fmt.Fprintf(w, "  tactical:  %d\n", len(reg.ListByTier(agent.TierTactical)))
}

func printViolations(verr *agent.ValidationError) {
	byAgent := verr.ByAgent()
	names := make([]string, 0, len(byAgent))
	for name := range byAgent {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		label := name
		if label == "" {
			label = "(unnamed)"
		}
		errorColor.Println(label)
		for _, v := range byAgent[name] {
			fmt.Printf("  %s %s", warnColor.Sprintf("[%s]", v.Rule), v.Detail)
			if v.Source != "" {
				fmt.Print(dimColor.Sprintf("  %s", v.Source))
			}
			fmt.Println()
		}
	}
}
