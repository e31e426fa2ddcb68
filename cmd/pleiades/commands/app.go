package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/itchyny/gojq"

	"github.com/pleiades-agents/pleiades/internal/config"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
	"github.com/pleiades-agents/pleiades/internal/event"
	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/source"
	"github.com/pleiades-agents/pleiades/internal/storage"
	"github.com/pleiades-agents/pleiades/internal/watcher"
	"github.com/pleiades-agents/pleiades/pkg/types"
)

// app is the wiring shared by every command.
type app struct {
	dir        string
	config     *types.Config
	store      *storage.Storage
	dispatcher *dispatch.Dispatcher
}

// loadApp loads configuration and builds a dispatcher without loading the
// registry. bus may be nil.
func loadApp(bus *event.Bus) (*app, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if agentsDir != "" {
		cfg.AgentsDir = agentsDir
	}

	opts, err := dispatch.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if bus != nil {
		opts = append(opts, dispatch.WithBus(bus))
	}

	store := storage.NewOS(cfg.AgentsDir)
	src := source.NewDir(store, source.WithPattern(cfg.Pattern))
	d := dispatch.New(src, instructions.NewFileStore(store, cfg.InstructionsFile), opts...)

	return &app{dir: dir, config: cfg, store: store, dispatcher: d}, nil
}

// loadRegistry builds the app and loads the first snapshot.
func loadRegistry(ctx context.Context) (*app, error) {
	a, err := loadApp(nil)
	if err != nil {
		return nil, err
	}
	if _, err := a.dispatcher.Reload(ctx, dispatch.TriggerStartup); err != nil {
		return nil, err
	}
	return a, nil
}

// watcherOptions maps the watcher section of the config onto watcher.Options.
func watcherOptions(cfg *types.Config) watcher.Options {
	opts := watcher.Options{Debounce: config.Debounce(cfg)}
	if cfg.Watcher != nil && cfg.Watcher.Ignore != nil {
		opts.Ignore = cfg.Watcher.Ignore
	}
	return opts
}

// startWatcher starts hot reload when force is set or the config enables it.
// It returns nil when reload is off.
func (a *app) startWatcher(force bool) (*watcher.Watcher, error) {
	if !force && (a.config.Watcher == nil || !a.config.Watcher.Enabled) {
		return nil, nil
	}
	w, err := watcher.New(a.config.AgentsDir, a.dispatcher, watcherOptions(a.config))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", a.config.AgentsDir, err)
	}
	w.Start()
	return w, nil
}

// jsonRequested reports whether output should be JSON.
func jsonRequested(flag bool) bool {
	return flag || jqFilter != ""
}

// printJSON writes v as indented JSON, filtered through --jq when set.
func printJSON(w io.Writer, v any) error {
	if jqFilter == "" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	query, err := gojq.Parse(jqFilter)
	if err != nil {
		return fmt.Errorf("jq: filter parse error: %v", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("jq: compile error: %v", err)
	}

	// gojq works on plain JSON values.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return err
	}

	iter := code.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := out.(error); ok {
			return fmt.Errorf("jq: execution error: %v", err)
		}
		if s, ok := out.(string); ok {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	}
}

// Palette
var (
	headingColor = color.New(color.FgCyan, color.Bold)
	agentColor   = color.New(color.FgGreen, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

func applyColor() {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}
