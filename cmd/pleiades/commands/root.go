// Package commands provides the CLI commands for pleiades.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/config"
	"github.com/pleiades-agents/pleiades/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
	agentsDir string
	jqFilter  string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "pleiades",
	Short: "Pleiades - route tasks to declarative agents",
	Long: `Pleiades loads agent definitions from a directory, routes natural-language
tasks to the best matching agent and plans delegation from strategic agents
to tactical ones.

Run 'pleiades select "<task>"' to route a task, or 'pleiades serve' to expose
the router over HTTP.`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&workDir, "dir", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&agentsDir, "agents", "", "Agents directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&jqFilter, "jq", "", "Print JSON output filtered through a jq expression")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("pleiades %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(instructionsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	defer logging.Close()
	return rootCmd.Execute()
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps an Execute error onto the process exit code.
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// setup loads .env files and routes logs to the log file, or to stderr with
// --print-logs. The mcp command always logs to stderr since stdout carries
// the protocol.
func setup(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	_ = godotenv.Load(dir + "/.env")
	applyColor()

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(resolveLogLevel(dir))

	stdio := cmd.Name() == "mcp"
	if printLogs || stdio {
		cfg.Output = os.Stderr
		cfg.Pretty = !stdio
	} else {
		cfg.Output = io.Discard
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err == nil {
			cfg.File = paths.LogPath()
		}
	}
	if err := logging.Init(cfg); err != nil {
		// Logging is best effort for CLI runs.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return nil
}

// resolveLogLevel picks --log-level, then PLEIADES_LOG_LEVEL, then logLevel
// from the config files. A config that fails to load is reported later by the
// command itself.
func resolveLogLevel(dir string) string {
	if logLevel != "" {
		return logLevel
	}
	if level := os.Getenv("PLEIADES_LOG_LEVEL"); level != "" {
		return level
	}
	if cfg, err := config.Load(dir); err == nil {
		return cfg.LogLevel
	}
	return ""
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
