package commands

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/pleiades-agents/pleiades/internal/logging"
	"github.com/pleiades-agents/pleiades/pkg/mcpserver/pleiades"
)

var (
	mcpTransport string
	mcpAddr      string
	mcpWatch     bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent tools over the Model Context Protocol",
	Long: `Expose select_pleiades_agent, execute_pleiades_agent, list_pleiades_agents,
get_pleiades_agent_info and get_agent_instructions to MCP clients.

The default transport is stdio; logs always go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport (stdio|sse)")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", "127.0.0.1:7421", "Listen address for the sse transport")
	mcpCmd.Flags().BoolVarP(&mcpWatch, "watch", "w", false, "Reload agents when the directory changes")
}

func runMCP(cmd *cobra.Command, args []string) error {
	log := logging.Component("mcp")

	a, err := loadRegistry(cmd.Context())
	if err != nil {
		return err
	}

	w, err := a.startWatcher(mcpWatch)
	if err != nil {
		return err
	}
	if w != nil {
		defer w.Stop()
	}

	s := pleiades.NewServer(a.dispatcher, Version)

	switch mcpTransport {
	case "stdio":
		log.Info().Str("agents", a.config.AgentsDir).Msg("serving MCP over stdio")
		return server.ServeStdio(s)
	case "sse":
		log.Info().Str("addr", mcpAddr).Msg("serving MCP over SSE")
		return server.NewSSEServer(s, server.WithBaseURL("http://"+mcpAddr)).Start(mcpAddr)
	default:
		return fmt.Errorf("unknown transport %q (must be stdio or sse)", mcpTransport)
	}
}
