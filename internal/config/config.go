package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/pleiades-agents/pleiades/pkg/types"
)

// Defaults applied by Load.
const (
	DefaultAgentsDir = "agents"
	DefaultPort      = 7420
	DefaultHostname  = "127.0.0.1"
	DefaultDebounce  = 250 * time.Millisecond
	DefaultSkillsDir = ".claude/skills"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/pleiades/)
// 2. Project config (pleiades.json[c], then .pleiades/pleiades.json[c])
// 3. PLEIADES_CONFIG file
// 4. PLEIADES_CONFIG_CONTENT inline JSON
// 5. Environment variables
//
// Missing files are skipped; a file that exists but does not parse is an error.
// The result has defaults applied and runtime command templates validated.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	loaded := make(map[string]bool)
	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	var candidates [][2]string

	// 1. XDG global config
	globalPath := GetPaths().Config
	candidates = append(candidates,
		[2]string{filepath.Join(globalPath, "pleiades.json"), globalPath},
		[2]string{filepath.Join(globalPath, "pleiades.jsonc"), globalPath},
	)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".pleiades")
		candidates = append(candidates,
			[2]string{filepath.Join(directory, "pleiades.json"), directory},
			[2]string{filepath.Join(directory, "pleiades.jsonc"), directory},
			[2]string{filepath.Join(projectConfigDir, "pleiades.json"), directory},
			[2]string{filepath.Join(projectConfigDir, "pleiades.jsonc"), directory},
		)
	}

	// 3. PLEIADES_CONFIG file override
	if configPath := os.Getenv("PLEIADES_CONFIG"); configPath != "" {
		candidates = append(candidates, [2]string{configPath, filepath.Dir(configPath)})
	}

	for _, c := range candidates {
		if err := loadOnce(c[0], c[1]); err != nil {
			return nil, err
		}
	}

	// 4. PLEIADES_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("PLEIADES_CONFIG_CONTENT"); configContent != "" {
		inline, err := parse([]byte(configContent), directory)
		if err != nil {
			return nil, fmt.Errorf("PLEIADES_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, inline)
	}

	// 5. Environment variables (highest priority)
	if err := applyEnvOverrides(config, directory); err != nil {
		return nil, err
	}

	applyDefaults(config, directory)

	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fileConfig, err := parse(data, baseDir)
	if err != nil {
		return err
	}

	mergeConfig(config, fileConfig)
	return nil
}

// parse decodes JSONC, interpolates placeholders and anchors relative paths at baseDir.
func parse(data []byte, baseDir string) (*types.Config, error) {
	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var cfg types.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.AgentsDir = resolvePath(cfg.AgentsDir, baseDir)
	if cfg.Skills != nil {
		cfg.Skills.OutputDir = resolvePath(cfg.Skills.OutputDir, baseDir)
	}
	return &cfg, nil
}

// resolvePath expands ~/ and makes a relative path absolute under baseDir.
func resolvePath(path, baseDir string) string {
	switch {
	case path == "":
		return ""
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(os.Getenv("HOME"), path[2:])
	case filepath.IsAbs(path) || baseDir == "":
		return path
	default:
		return filepath.Join(baseDir, path)
	}
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := resolvePath(filePattern.FindStringSubmatch(match)[1], baseDir)

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for a JSON string body
		quoted, _ := json.Marshal(string(content))
		return string(quoted[1 : len(quoted)-1])
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.AgentsDir != "" {
		target.AgentsDir = source.AgentsDir
	}
	if source.Pattern != "" {
		target.Pattern = source.Pattern
	}
	if source.InstructionsFile != "" {
		target.InstructionsFile = source.InstructionsFile
	}
	if source.DefaultAgent != "" {
		target.DefaultAgent = source.DefaultAgent
	}
	if source.ExcludeDraft {
		target.ExcludeDraft = true
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	// Merge runtimes
	if source.Runtimes != nil {
		if target.Runtimes == nil {
			target.Runtimes = make(map[string]types.RuntimeConfig)
		}
		for k, v := range source.Runtimes {
			target.Runtimes[k] = v
		}
	}

	// Merge server field by field
	if source.Server != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		if source.Server.Hostname != "" {
			target.Server.Hostname = source.Server.Hostname
		}
		if source.Server.Port != 0 {
			target.Server.Port = source.Server.Port
		}
		if source.Server.CORS != nil {
			target.Server.CORS = source.Server.CORS
		}
	}

	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}
	if source.Skills != nil {
		target.Skills = source.Skills
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config, directory string) error {
	if dir := os.Getenv("PLEIADES_AGENTS_DIR"); dir != "" {
		config.AgentsDir = resolvePath(dir, directory)
	}

	if level := os.Getenv("PLEIADES_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	if agent := os.Getenv("PLEIADES_DEFAULT_AGENT"); agent != "" {
		config.DefaultAgent = agent
	}

	if portStr := os.Getenv("PLEIADES_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("PLEIADES_PORT: invalid port %q", portStr)
		}
		if config.Server == nil {
			config.Server = &types.ServerConfig{}
		}
		config.Server.Port = port
	}
	return nil
}

// applyDefaults fills unset fields.
func applyDefaults(config *types.Config, directory string) {
	if config.AgentsDir == "" {
		config.AgentsDir = resolvePath(DefaultAgentsDir, directory)
	}
	if config.Server == nil {
		config.Server = &types.ServerConfig{}
	}
	if config.Server.Hostname == "" {
		config.Server.Hostname = DefaultHostname
	}
	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if config.Skills == nil {
		config.Skills = &types.SkillsConfig{}
	}
	if config.Skills.OutputDir == "" {
		config.Skills.OutputDir = resolvePath(DefaultSkillsDir, directory)
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// Validate checks values Load cannot repair.
func Validate(config *types.Config) error {
	var problems []string

	if config.Server != nil && (config.Server.Port < 0 || config.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", config.Server.Port))
	}
	if config.Watcher != nil && config.Watcher.Debounce != "" {
		if _, err := time.ParseDuration(config.Watcher.Debounce); err != nil {
			problems = append(problems, fmt.Sprintf("watcher.debounce: %v", err))
		}
	}
	for _, id := range RuntimeIDs(config) {
		cmd := config.Runtimes[id].Command
		if cmd == "" {
			continue
		}
		if _, err := ParseCommand(cmd); err != nil {
			problems = append(problems, fmt.Sprintf("runtimes.%s.command: %v", id, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RuntimeIDs returns the configured runtime identifiers in sorted order.
func RuntimeIDs(config *types.Config) []string {
	ids := make([]string, 0, len(config.Runtimes))
	for id := range config.Runtimes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Debounce returns the configured watcher debounce.
func Debounce(config *types.Config) time.Duration {
	if config.Watcher == nil || config.Watcher.Debounce == "" {
		return DefaultDebounce
	}
	d, err := time.ParseDuration(config.Watcher.Debounce)
	if err != nil || d <= 0 {
		return DefaultDebounce
	}
	return d
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
