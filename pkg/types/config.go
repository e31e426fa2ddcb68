package types

// Config represents the pleiades configuration file (pleiades.json / pleiades.jsonc).
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Directory holding one sub-directory per agent. Relative paths resolve
	// against the directory of the file that set it.
	AgentsDir string `json:"agentsDir,omitempty"`

	// Glob selecting agent definition files inside AgentsDir.
	Pattern string `json:"pattern,omitempty"` // default "*/config.yaml"

	// Instruction document name inside each agent directory.
	InstructionsFile string `json:"instructionsFile,omitempty"` // default "AGENT.md"

	// Agent suggested to callers when routing is ambiguous. Never chosen automatically.
	DefaultAgent string `json:"defaultAgent,omitempty"`

	// Drop draft agents from implicit routing unless a request says otherwise.
	ExcludeDraft bool `json:"excludeDraft,omitempty"`

	// Runtime identifiers agents may name in execution.preferred/fallbacks.
	// When empty, runtime identifiers are not checked.
	Runtimes map[string]RuntimeConfig `json:"runtimes,omitempty"`

	// HTTP API
	Server *ServerConfig `json:"server,omitempty"`

	// Hot reload of the agents directory
	Watcher *WatcherConfig `json:"watcher,omitempty"`

	// Skill projection
	Skills *SkillsConfig `json:"skills,omitempty"`

	// Log level: debug, info, warn, error
	LogLevel string `json:"logLevel,omitempty"`
}

// RuntimeConfig describes an external execution runtime.
type RuntimeConfig struct {
	Description string `json:"description,omitempty"`

	// Shell command template with {agent}, {task} and {instructions}
	// placeholders, e.g. "claude -p {task} --agent {agent}".
	Command string `json:"command,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Hostname string `json:"hostname,omitempty"`
	Port     int    `json:"port,omitempty"`
	CORS     *bool  `json:"cors,omitempty"`
}

// WatcherConfig holds agents directory watcher configuration.
type WatcherConfig struct {
	Enabled  bool     `json:"enabled,omitempty"`
	Debounce string   `json:"debounce,omitempty"` // Go duration, default "250ms"
	Ignore   []string `json:"ignore,omitempty"`   // doublestar patterns relative to agentsDir
}

// SkillsConfig holds skill projection settings.
type SkillsConfig struct {
	OutputDir string `json:"outputDir,omitempty"` // default ".claude/skills"
}
