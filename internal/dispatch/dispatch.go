// Package dispatch is the single entry point transports use to route tasks.
//
// A Dispatcher holds the current registry snapshot behind an atomic pointer.
// Every operation loads the pointer once and works against that snapshot, so a
// concurrent Reload never changes the view of a request already in flight.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/config"
	"github.com/pleiades-agents/pleiades/internal/event"
	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/logging"
	"github.com/pleiades-agents/pleiades/internal/routing"
	"github.com/pleiades-agents/pleiades/internal/source"
)

// Reload triggers.
const (
	TriggerStartup = "startup"
	TriggerManual  = "manual"
	TriggerWatch   = "watch"
)

// ErrInvalidRequest is wrapped by errors caused by malformed request fields.
var ErrInvalidRequest = errors.New("invalid request")

// Dispatcher answers routing requests against the current registry snapshot.
type Dispatcher struct {
	source       source.Source
	instructions instructions.Store
	bus          *event.Bus
	log          zerolog.Logger

	defaultAgent string
	excludeDraft bool
	loadOpts     []agent.LoadOption
	commands     map[string]*config.CommandTemplate

	current  atomic.Pointer[agent.Registry]
	reloadMu sync.Mutex
}

// New creates a Dispatcher serving an empty registry. Call Reload to load the
// first snapshot.
func New(src source.Source, store instructions.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:       src,
		instructions: store,
		log:          logging.Component("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.current.Store(agent.Empty())
	return d
}

// Snapshot returns the registry currently in service.
func (d *Dispatcher) Snapshot() *agent.Registry {
	return d.current.Load()
}

// DefaultAgent returns the configured ambiguity hint.
func (d *Dispatcher) DefaultAgent() string {
	return d.defaultAgent
}

// Reload reads the source, validates it and swaps the new snapshot in. On any
// failure the previous snapshot stays in service and the error is returned;
// validation failures are *agent.ValidationError.
func (d *Dispatcher) Reload(ctx context.Context, trigger string) (*agent.Registry, error) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	start := time.Now()
	records, err := d.source.Records(ctx)
	if err != nil {
		err = fmt.Errorf("failed to read agents: %w", err)
		d.reloadFailed(err, trigger)
		return nil, err
	}

	reg, err := agent.Load(records, d.loadOpts...)
	if err != nil {
		d.reloadFailed(err, trigger)
		return nil, err
	}

	d.current.Store(reg)
	elapsed := time.Since(start)

	d.log.Info().
		Str("registry", reg.ID()).
		Int("agents", reg.Count()).
		Str("trigger", trigger).
		Dur("duration", elapsed).
		Msg("registry loaded")

	if d.defaultAgent != "" && !reg.Exists(d.defaultAgent) {
		d.log.Warn().Str("agent", d.defaultAgent).Msg("default agent is not in the registry")
	}

	d.publish(event.RegistryLoaded, event.RegistryLoadedData{
		ID:       reg.ID(),
		Agents:   reg.Count(),
		Source:   describe(d.source),
		Duration: elapsed,
		Trigger:  trigger,
	})
	return reg, nil
}

func (d *Dispatcher) reloadFailed(err error, trigger string) {
	serving := d.current.Load()
	data := event.RegistryReloadFailedData{
		Error:     err.Error(),
		ServingID: serving.ID(),
		Trigger:   trigger,
	}
	var verr *agent.ValidationError
	if errors.As(err, &verr) {
		data.Violations = verr.Violations
	}

	d.log.Error().
		Err(err).
		Str("serving", serving.ID()).
		Str("trigger", trigger).
		Msg("registry reload failed")

	d.publish(event.RegistryReloadFailed, data)
}

// SelectRequest asks for the agent that should handle a task.
type SelectRequest struct {
	Task     string     `json:"task"`
	Agent    string     `json:"agent,omitempty"`
	Tier     agent.Tier `json:"tier,omitempty"`
	Category string     `json:"category,omitempty"`
	// ExcludeDraft overrides the dispatcher default when set.
	ExcludeDraft *bool `json:"excludeDraft,omitempty"`
}

// Select routes a task. An explicit Agent wins without scoring. When nothing
// scores above zero the decision is Ambiguous and carries the configured
// default agent as a hint, provided it exists in the snapshot.
func (d *Dispatcher) Select(ctx context.Context, req SelectRequest) (*routing.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reg := d.current.Load()

	filters := routing.Filters{
		Tier:         req.Tier,
		Category:     req.Category,
		ExcludeDraft: d.excludeDraft,
	}
	if req.ExcludeDraft != nil {
		filters.ExcludeDraft = *req.ExcludeDraft
	}

	decision, err := routing.Route(reg, req.Task, strings.TrimSpace(req.Agent), filters)
	if err != nil {
		if errors.Is(err, routing.ErrInvalidFilter) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		return nil, err
	}
	decision.ID = ulid.Make().String()
	decision.RegistryID = reg.ID()

	if decision.Ambiguous {
		if d.defaultAgent != "" && reg.Exists(d.defaultAgent) {
			decision.DefaultAgent = d.defaultAgent
		}
		d.log.Debug().Str("decision", decision.ID).Msg("no agent matched")
		d.publish(event.RouteAmbiguous, event.RouteAmbiguousData{
			DecisionID:   decision.ID,
			RegistryID:   reg.ID(),
			Task:         req.Task,
			DefaultAgent: decision.DefaultAgent,
		})
		return decision, nil
	}

	if def, ok := reg.Lookup(decision.Agent); ok {
		decision.Definition = def.Clone()
	}

	d.log.Debug().
		Str("decision", decision.ID).
		Str("agent", decision.Agent).
		Bool("explicit", decision.Explicit).
		Int("candidates", len(decision.Candidates)).
		Msg("agent selected")
	d.publish(event.RouteSelected, event.RouteSelectedData{
		DecisionID: decision.ID,
		RegistryID: reg.ID(),
		Agent:      decision.Agent,
		Score:      decision.Score,
		Explicit:   decision.Explicit,
		Candidates: len(decision.Candidates),
	})
	return decision, nil
}

// ListFilter narrows List. Zero values mean no restriction.
type ListFilter struct {
	Tier     agent.Tier   `json:"tier,omitempty"`
	Category string       `json:"category,omitempty"`
	Status   agent.Status `json:"status,omitempty"`
}

// List returns summaries of the agents passing filter, sorted by name.
func (d *Dispatcher) List(ctx context.Context, filter ListFilter) []agent.Summary {
	reg := d.current.Load()
	defs := reg.Filter(func(def *agent.Definition) bool {
		if filter.Tier != "" && def.Tier != filter.Tier {
			return false
		}
		if filter.Category != "" && def.Category != filter.Category {
			return false
		}
		if filter.Status != "" && def.Status != filter.Status {
			return false
		}
		return true
	})

	out := make([]agent.Summary, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Summary())
	}
	return out
}

// GetInfo returns a copy of the named definition.
func (d *Dispatcher) GetInfo(ctx context.Context, name string) (*agent.Definition, error) {
	def, err := d.current.Load().Get(name)
	if err != nil {
		return nil, err
	}
	return def.Clone(), nil
}

// GetInstructions returns the instruction document of the named agent. Unknown
// agents yield *agent.NotFoundError; known agents without a document yield an
// error wrapping instructions.ErrMissing.
func (d *Dispatcher) GetInstructions(ctx context.Context, name string) (string, error) {
	if _, err := d.current.Load().Get(name); err != nil {
		return "", err
	}
	if d.instructions == nil {
		return "", fmt.Errorf("%s: %w", name, instructions.ErrMissing)
	}
	return d.instructions.Get(ctx, name)
}

func (d *Dispatcher) publish(t event.EventType, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(event.Event{Type: t, Data: data})
}

func describe(src source.Source) string {
	if r, ok := src.(interface{ Root() string }); ok {
		return r.Root()
	}
	return fmt.Sprintf("%T", src)
}
