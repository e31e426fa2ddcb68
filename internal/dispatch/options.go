package dispatch

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/config"
	"github.com/pleiades-agents/pleiades/internal/event"
	"github.com/pleiades-agents/pleiades/pkg/types"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBus publishes routing and registry events on bus.
func WithBus(bus *event.Bus) Option {
	return func(d *Dispatcher) {
		d.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithDefaultAgent sets the agent suggested on ambiguous decisions.
func WithDefaultAgent(name string) Option {
	return func(d *Dispatcher) {
		d.defaultAgent = name
	}
}

// WithExcludeDraft drops draft agents from implicit routing unless a request
// overrides it.
func WithExcludeDraft(exclude bool) Option {
	return func(d *Dispatcher) {
		d.excludeDraft = exclude
	}
}

// WithKnownRuntimes restricts the runtime identifiers definitions may name.
func WithKnownRuntimes(ids ...string) Option {
	return func(d *Dispatcher) {
		d.loadOpts = append(d.loadOpts, agent.WithKnownRuntimes(ids...))
	}
}

// WithRuntimeCommands sets the command templates rendered into plans, keyed by
// runtime identifier.
func WithRuntimeCommands(commands map[string]*config.CommandTemplate) Option {
	return func(d *Dispatcher) {
		d.commands = commands
	}
}

// WithLoadOptions passes extra options to agent.Load on every reload.
func WithLoadOptions(opts ...agent.LoadOption) Option {
	return func(d *Dispatcher) {
		d.loadOpts = append(d.loadOpts, opts...)
	}
}

// OptionsFromConfig translates configuration into dispatcher options.
func OptionsFromConfig(cfg *types.Config) ([]Option, error) {
	opts := []Option{
		WithDefaultAgent(cfg.DefaultAgent),
		WithExcludeDraft(cfg.ExcludeDraft),
	}
	if len(cfg.Runtimes) == 0 {
		return opts, nil
	}

	ids := config.RuntimeIDs(cfg)
	commands := make(map[string]*config.CommandTemplate)
	for _, id := range ids {
		raw := cfg.Runtimes[id].Command
		if raw == "" {
			continue
		}
		tmpl, err := config.ParseCommand(raw)
		if err != nil {
			return nil, fmt.Errorf("runtime %s: %w", id, err)
		}
		commands[id] = tmpl
	}
	return append(opts, WithKnownRuntimes(ids...), WithRuntimeCommands(commands)), nil
}
