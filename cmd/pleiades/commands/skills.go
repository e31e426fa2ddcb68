package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/skills"
	"github.com/pleiades-agents/pleiades/internal/storage"
)

var (
	skillsCheck  bool
	skillsOutDir string
	skillsDiff   bool
	skillsJSON   bool
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Project preload agents into SKILL.md files",
	Long: `Write one <agent>/SKILL.md per preload agent into the skills directory,
removing skill directories whose agent is gone. With --check nothing is
written and the command exits with status 1 when any file would change.`,
	Args: cobra.NoArgs,
	RunE: runSkills,
}

func init() {
	skillsCmd.Flags().BoolVar(&skillsCheck, "check", false, "Report drift without writing")
	skillsCmd.Flags().StringVar(&skillsOutDir, "out", "", "Skills directory (overrides config)")
	skillsCmd.Flags().BoolVar(&skillsDiff, "diff", false, "Print a diff for every changed file")
	skillsCmd.Flags().BoolVar(&skillsJSON, "json", false, "Print the result as JSON")
}

func runSkills(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadRegistry(ctx)
	if err != nil {
		return err
	}

	outDir := a.config.Skills.OutputDir
	if skillsOutDir != "" {
		outDir = skillsOutDir
	}
	gen := skills.NewGenerator(instructions.NewFileStore(a.store, a.config.InstructionsFile), storage.NewOS(outDir))

	reg := a.dispatcher.Snapshot()
	var result *skills.Result
	if skillsCheck {
		result, err = gen.Check(ctx, reg)
	} else {
		result, err = gen.Write(ctx, reg)
	}
	if err != nil {
		return err
	}

	if jsonRequested(skillsJSON) {
		if err := printJSON(os.Stdout, result); err != nil {
			return err
		}
	} else {
		printSkills(result, outDir)
	}

	if skillsCheck && result.Drift() {
		return &exitError{code: 1, err: errors.New("skills are out of date; run 'pleiades skills'")}
	}
	return nil
}

func printSkills(result *skills.Result, outDir string) {
	for _, f := range result.Files {
		switch f.Status {
		case skills.StatusCreated:
			fmt.Printf("%s %s\n", agentColor.Sprint("+"), f.Path)
		case skills.StatusUpdated:
			fmt.Printf("%s %s %s\n", warnColor.Sprint("~"), f.Path, dimColor.Sprintf("(+%d -%d)", f.Additions, f.Deletions))
		case skills.StatusRemoved:
			fmt.Printf("%s %s\n", errorColor.Sprint("-"), f.Path)
		default:
			continue
		}
		if skillsDiff && f.Diff != "" {
			fmt.Println(dimColor.Sprint(f.Diff))
		}
	}
	fmt.Println(dimColor.Sprintf("%s: %d created, %d updated, %d removed, %d unchanged, %d skipped",
		outDir,
		result.Count(skills.StatusCreated),
		result.Count(skills.StatusUpdated),
		result.Count(skills.StatusRemoved),
		result.Count(skills.StatusUnchanged),
		len(result.Skipped),
	))
}
