package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
)

var (
	listTier     string
	listCategory string
	listStatus   string
	listJSON     bool
	infoJSON     bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List agents",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var infoCmd = &cobra.Command{
	Use:   "info <agent>",
	Short: "Show an agent's full definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var instructionsCmd = &cobra.Command{
	Use:   "instructions <agent>",
	Short: "Print an agent's instruction document",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstructions,
}

func init() {
	listCmd.Flags().StringVar(&listTier, "tier", "", "Filter by tier (strategic|tactical)")
	listCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (stable|draft)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print as JSON")

	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Print as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	filter := dispatch.ListFilter{
		Tier:     agent.Tier(listTier),
		Category: listCategory,
		Status:   agent.Status(listStatus),
	}
	if filter.Tier != "" && !filter.Tier.Valid() {
		return fmt.Errorf("invalid --tier %q (must be strategic or tactical)", listTier)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("invalid --status %q (must be stable or draft)", listStatus)
	}

	ctx := cmd.Context()
	a, err := loadRegistry(ctx)
	if err != nil {
		return err
	}
	agents := a.dispatcher.List(ctx, filter)

	if jsonRequested(listJSON) {
		return printJSON(os.Stdout, agents)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTIER\tCATEGORY\tSTATUS\tDELEGATES TO\t")
	for _, s := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", s.Name, s.Tier, s.Category, s.Status, strings.Join(s.DelegatesTo, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println(dimColor.Sprintf("%d agents", len(agents)))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadRegistry(ctx)
	if err != nil {
		return err
	}
	def, err := a.dispatcher.GetInfo(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonRequested(infoJSON) {
		return printJSON(os.Stdout, def)
	}

	agentColor.Println(def.Name)
	fmt.Printf("  %s\n\n", def.Description)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  tier\t%s\n", def.Tier)
	fmt.Fprintf(w, "  category\t%s\n", def.Category)
	fmt.Fprintf(w, "  status\t%s\n", def.Status)
	if def.Version != "" {
		fmt.Fprintf(w, "  version\t%s\n", def.Version)
	}
	fmt.Fprintf(w, "  keywords\t%s\n", strings.Join(def.Keywords, ", "))
	fmt.Fprintf(w, "  advanced reasoning\t%t\n", def.RequiresAdvancedReasoning)
	fmt.Fprintf(w, "  runtime mode\t%s\n", def.RuntimeMode)
	if runtimes := def.Execution.Runtimes(); len(runtimes) > 0 {
		fmt.Fprintf(w, "  execution\t%s\n", strings.Join(runtimes, " → "))
	}
	if len(def.DelegatesTo) > 0 {
		fmt.Fprintf(w, "  delegates to\t%s\n", strings.Join(def.DelegatesTo, ", "))
	}
	if def.Source != "" {
		fmt.Fprintf(w, "  source\t%s\n", def.Source)
	}
	return w.Flush()
}

func runInstructions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadRegistry(ctx)
	if err != nil {
		return err
	}
	text, err := a.dispatcher.GetInstructions(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Print(text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Println()
	}
	return nil
}
