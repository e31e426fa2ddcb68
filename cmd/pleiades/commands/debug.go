package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/config"
	"github.com/pleiades-agents/pleiades/internal/logging"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting pleiades configuration and setup.`,
}

var debugConfigWrite bool

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration after merging every config file, environment
override and default. With --write the result is saved to
.pleiades/pleiades.json in the project directory instead.`,
	RunE: runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

func init() {
	debugConfigCmd.Flags().BoolVar(&debugConfigWrite, "write", false, "Save the effective configuration as the project config")

	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	if debugConfigWrite {
		path := config.ProjectConfigPath(a.dir)
		if err := config.Save(a.config, path); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
		return nil
	}
	return printJSON(os.Stdout, a.config)
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	paths := config.GetPaths()

	fmt.Println("Pleiades System Paths:")
	fmt.Println()
	fmt.Printf("  Config:    %s\n", paths.Config)
	fmt.Printf("  Cache:     %s\n", paths.Cache)
	fmt.Printf("  State:     %s\n", paths.State)
	fmt.Printf("  Log:       %s\n", logging.FilePath())
	fmt.Printf("  Global:    %s\n", config.GlobalConfigPath())
	fmt.Printf("  Project:   %s\n", config.ProjectConfigPath(dir))
	return nil
}
