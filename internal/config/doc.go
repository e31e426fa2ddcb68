// Package config provides configuration loading, merging, and path management for pleiades.
//
// # Configuration Loading
//
// Load searches for and merges configuration from several sources, later
// sources overriding earlier ones:
//
//  1. Global config (~/.config/pleiades/pleiades.json[c], XDG aware)
//  2. Project config (pleiades.json[c], then .pleiades/pleiades.json[c])
//  3. PLEIADES_CONFIG file
//  4. PLEIADES_CONFIG_CONTENT inline JSON
//  5. Environment variables (PLEIADES_AGENTS_DIR, PLEIADES_LOG_LEVEL,
//     PLEIADES_PORT, PLEIADES_DEFAULT_AGENT)
//
// Missing files are skipped. A file that exists but cannot be parsed fails the
// load with the file name in the error.
//
// # Supported Formats
//
// Both pleiades.json and pleiades.jsonc are accepted; comments are stripped with
// tidwall/jsonc before decoding.
//
// # Variable Interpolation
//
//   - {env:VAR_NAME} expands to the environment variable value
//   - {file:path} expands to the file contents, escaped for a JSON string
//
// Relative paths (agentsDir, skills.outputDir, {file:...}) resolve against the
// directory of the file that declared them; project files under .pleiades/
// resolve against the project root.
//
// Example:
//
//	{
//	  "agentsDir": "agents",
//	  "defaultAgent": "incident-commander",
//	  "runtimes": {
//	    "claude-native": {"command": "claude -p {task} --append-system-prompt {instructions}"},
//	    "gemini-cli": {"command": "gemini -p {task}"}
//	  },
//	  "watcher": {"enabled": true, "debounce": "500ms"}
//	}
//
// # Runtime Commands
//
// A runtime command is a shell template checked with mvdan.cc/sh at load time.
// Placeholders ({agent}, {task}, {instructions}) must not sit inside quotes;
// [CommandTemplate.Render] shell-quotes each value so it always stays one
// argument. Rendered commands are informational: nothing here executes them.
//
// # Paths
//
// [GetPaths] returns the XDG config, cache and state directories for pleiades.
package config
