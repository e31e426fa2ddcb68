package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/event"
	"github.com/pleiades-agents/pleiades/internal/instructions"
	"github.com/pleiades-agents/pleiades/internal/source"
)

// swapSource serves whatever records were last set.
type swapSource struct {
	mu      sync.Mutex
	records []agent.Record
	err     error
}

func (s *swapSource) set(records []agent.Record, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.err = err
}

func (s *swapSource) Records(ctx context.Context) ([]agent.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Record(nil), s.records...), s.err
}

func pleiadesRecords() []agent.Record {
	return []agent.Record{
		{Name: "commit-writer", Description: "Writes commit messages", Tier: "tactical", Category: "development", Keywords: agent.Phrases{"commit message", "git commit"}},
		{Name: "secret-scanner", Description: "Finds leaked secrets", Tier: "tactical", Category: "security", Keywords: agent.Phrases{"secret", "api key"}},
		{Name: "report-writer", Description: "Drafts reports", Tier: "tactical", Category: "documentation", Status: "draft", Keywords: agent.Phrases{"report"}},
		{Name: "security-lead", Description: "Leads security reviews", Tier: "strategic", Category: "security", Keywords: agent.Phrases{"security review"}, DelegatesTo: []string{"secret-scanner", "report-writer"}},
		{Name: "incident-commander", Description: "Runs incidents", Tier: "strategic", Category: "operations", Keywords: agent.Phrases{"incident", "outage"}},
	}
}

func newTestDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	store := instructions.Map{
		"commit-writer": "# Commit Writer\n\nUse conventional commits.",
		"security-lead": "# Security Lead",
	}
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	d := New(source.Static(pleiadesRecords()), store, opts...)
	_, err := d.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)
	return d
}

func TestDispatcher_EmptyBeforeReload(t *testing.T) {
	d := New(source.Static(pleiadesRecords()), nil, WithLogger(zerolog.Nop()))

	assert.Equal(t, 0, d.Snapshot().Count())
	assert.Empty(t, d.List(context.Background(), ListFilter{}))

	decision, err := d.Select(context.Background(), SelectRequest{Task: "write a git commit"})
	require.NoError(t, err)
	assert.True(t, decision.Ambiguous)
}

func TestDispatcher_Reload(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	loaded := make(chan event.RegistryLoadedData, 1)
	bus.Subscribe(event.RegistryLoaded, func(e event.Event) {
		loaded <- e.Data.(event.RegistryLoadedData)
	})

	d := New(source.Static(pleiadesRecords()), nil, WithLogger(zerolog.Nop()), WithBus(bus))
	reg, err := d.Reload(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Same(t, reg, d.Snapshot())
	assert.Equal(t, 5, reg.Count())
	assert.NotEmpty(t, reg.ID())

	select {
	case data := <-loaded:
		assert.Equal(t, reg.ID(), data.ID)
		assert.Equal(t, 5, data.Agents)
		assert.Equal(t, TriggerManual, data.Trigger)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registry.loaded")
	}
}

func TestDispatcher_ReloadValidationFailureKeepsSnapshot(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	failed := make(chan event.RegistryReloadFailedData, 1)
	bus.Subscribe(event.RegistryReloadFailed, func(e event.Event) {
		failed <- e.Data.(event.RegistryReloadFailedData)
	})

	src := &swapSource{}
	src.set(pleiadesRecords(), nil)
	d := New(src, nil, WithLogger(zerolog.Nop()), WithBus(bus))
	good, err := d.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)

	src.set([]agent.Record{
		{Name: "a", Tier: "strategic", Keywords: agent.Phrases{"x"}, DelegatesTo: []string{"b"}},
		{Name: "b", Tier: "strategic", Keywords: agent.Phrases{"y"}, DelegatesTo: []string{"a"}},
	}, nil)

	_, err = d.Reload(context.Background(), TriggerWatch)
	var verr *agent.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has(agent.RuleCycle))

	assert.Same(t, good, d.Snapshot(), "previous snapshot must stay in service")

	select {
	case data := <-failed:
		assert.Equal(t, good.ID(), data.ServingID)
		assert.Equal(t, TriggerWatch, data.Trigger)
		assert.NotEmpty(t, data.Violations)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for registry.reload_failed")
	}
}

func TestDispatcher_ReloadSourceError(t *testing.T) {
	src := &swapSource{}
	src.set(pleiadesRecords(), nil)
	d := New(src, nil, WithLogger(zerolog.Nop()))
	good, err := d.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)

	src.set(nil, errors.New("disk on fire"))
	_, err = d.Reload(context.Background(), TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Same(t, good, d.Snapshot())
}

func TestDispatcher_Select(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	t.Run("scored", func(t *testing.T) {
		decision, err := d.Select(ctx, SelectRequest{Task: "Write a git commit for the fix"})
		require.NoError(t, err)
		assert.Equal(t, "commit-writer", decision.Agent)
		require.NotNil(t, decision.Score)
		assert.Equal(t, 2, *decision.Score)
		assert.False(t, decision.Explicit)
		assert.NotEmpty(t, decision.ID)
		assert.Equal(t, d.Snapshot().ID(), decision.RegistryID)
	})

	t.Run("explicit", func(t *testing.T) {
		decision, err := d.Select(ctx, SelectRequest{Task: "write a git commit", Agent: "security-lead"})
		require.NoError(t, err)
		assert.Equal(t, "security-lead", decision.Agent)
		assert.True(t, decision.Explicit)
		assert.Nil(t, decision.Score)
	})

	t.Run("explicit unknown", func(t *testing.T) {
		_, err := d.Select(ctx, SelectRequest{Task: "anything", Agent: "comit-writer"})
		var nf *agent.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Contains(t, nf.Suggestions, "commit-writer")
	})

	t.Run("ambiguous", func(t *testing.T) {
		decision, err := d.Select(ctx, SelectRequest{Task: "bake a cake"})
		require.NoError(t, err)
		assert.True(t, decision.Ambiguous)
		assert.Empty(t, decision.Agent)
		assert.Empty(t, decision.Candidates)
		assert.Empty(t, decision.DefaultAgent)
	})

	t.Run("invalid tier", func(t *testing.T) {
		_, err := d.Select(ctx, SelectRequest{Task: "outage", Tier: "operational"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("filters", func(t *testing.T) {
		decision, err := d.Select(ctx, SelectRequest{Task: "security review of the leaked secret", Tier: agent.TierTactical})
		require.NoError(t, err)
		assert.Equal(t, "secret-scanner", decision.Agent)
	})
}

func TestDispatcher_SelectCarriesDefinition(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	decision, err := d.Select(ctx, SelectRequest{Task: "security review please"})
	require.NoError(t, err)
	require.NotNil(t, decision.Definition)
	assert.Equal(t, "security-lead", decision.Definition.Name)
	assert.Equal(t, []string{"secret-scanner", "report-writer"}, decision.Definition.DelegatesTo)

	decision.Definition.DelegatesTo[0] = "mutated"
	def, err := d.GetInfo(ctx, "security-lead")
	require.NoError(t, err)
	assert.Equal(t, "secret-scanner", def.DelegatesTo[0], "decision must carry a copy")

	explicit, err := d.Select(ctx, SelectRequest{Task: "anything", Agent: "commit-writer"})
	require.NoError(t, err)
	require.NotNil(t, explicit.Definition)
	assert.Equal(t, "commit-writer", explicit.Definition.Name)

	ambiguous, err := d.Select(ctx, SelectRequest{Task: "bake a cake"})
	require.NoError(t, err)
	assert.Nil(t, ambiguous.Definition)
}

func TestDispatcher_SelectDefaultAgentHint(t *testing.T) {
	d := newTestDispatcher(t, WithDefaultAgent("incident-commander"))

	decision, err := d.Select(context.Background(), SelectRequest{Task: "bake a cake"})
	require.NoError(t, err)
	assert.True(t, decision.Ambiguous)
	assert.Empty(t, decision.Agent, "the default agent is a hint, not a choice")
	assert.Equal(t, "incident-commander", decision.DefaultAgent)

	missing := newTestDispatcher(t, WithDefaultAgent("ghost"))
	decision, err = missing.Select(context.Background(), SelectRequest{Task: "bake a cake"})
	require.NoError(t, err)
	assert.Empty(t, decision.DefaultAgent)
}

func TestDispatcher_SelectExcludeDraft(t *testing.T) {
	ctx := context.Background()

	d := newTestDispatcher(t)
	decision, err := d.Select(ctx, SelectRequest{Task: "write the quarterly report"})
	require.NoError(t, err)
	assert.Equal(t, "report-writer", decision.Agent)

	strict := newTestDispatcher(t, WithExcludeDraft(true))
	decision, err = strict.Select(ctx, SelectRequest{Task: "write the quarterly report"})
	require.NoError(t, err)
	assert.True(t, decision.Ambiguous)

	include := false
	decision, err = strict.Select(ctx, SelectRequest{Task: "write the quarterly report", ExcludeDraft: &include})
	require.NoError(t, err)
	assert.Equal(t, "report-writer", decision.Agent)
}

func TestDispatcher_SelectPublishesEvents(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	selected := make(chan event.RouteSelectedData, 1)
	ambiguous := make(chan event.RouteAmbiguousData, 1)
	bus.Subscribe(event.RouteSelected, func(e event.Event) {
		selected <- e.Data.(event.RouteSelectedData)
	})
	bus.Subscribe(event.RouteAmbiguous, func(e event.Event) {
		ambiguous <- e.Data.(event.RouteAmbiguousData)
	})

	d := newTestDispatcher(t, WithBus(bus))
	ctx := context.Background()

	decision, err := d.Select(ctx, SelectRequest{Task: "major outage"})
	require.NoError(t, err)
	select {
	case data := <-selected:
		assert.Equal(t, decision.ID, data.DecisionID)
		assert.Equal(t, "incident-commander", data.Agent)
		assert.Equal(t, 1, data.Candidates)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for route.selected")
	}

	decision, err = d.Select(ctx, SelectRequest{Task: "bake a cake"})
	require.NoError(t, err)
	select {
	case data := <-ambiguous:
		assert.Equal(t, decision.ID, data.DecisionID)
		assert.Equal(t, "bake a cake", data.Task)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for route.ambiguous")
	}
}

func TestDispatcher_List(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	names := func(sums []agent.Summary) []string {
		out := []string{}
		for _, s := range sums {
			out = append(out, s.Name)
		}
		return out
	}

	assert.Equal(t, []string{"commit-writer", "incident-commander", "report-writer", "secret-scanner", "security-lead"}, names(d.List(ctx, ListFilter{})))
	assert.Equal(t, []string{"incident-commander", "security-lead"}, names(d.List(ctx, ListFilter{Tier: agent.TierStrategic})))
	assert.Equal(t, []string{"secret-scanner", "security-lead"}, names(d.List(ctx, ListFilter{Category: "security"})))
	assert.Equal(t, []string{"report-writer"}, names(d.List(ctx, ListFilter{Status: agent.StatusDraft})))
	assert.Empty(t, d.List(ctx, ListFilter{Category: "finance"}))
}

func TestDispatcher_GetInfo(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	def, err := d.GetInfo(ctx, "security-lead")
	require.NoError(t, err)
	assert.Equal(t, agent.TierStrategic, def.Tier)
	assert.Equal(t, []string{"secret-scanner", "report-writer"}, def.DelegatesTo)

	// Mutating the copy must not leak into the snapshot.
	def.DelegatesTo[0] = "tampered"
	def.Keywords = nil
	again, err := d.GetInfo(ctx, "security-lead")
	require.NoError(t, err)
	assert.Equal(t, "secret-scanner", again.DelegatesTo[0])
	assert.NotEmpty(t, again.Keywords)

	_, err = d.GetInfo(ctx, "nobody")
	assert.ErrorIs(t, err, agent.ErrNotFound)
}

func TestDispatcher_GetInstructions(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	text, err := d.GetInstructions(ctx, "commit-writer")
	require.NoError(t, err)
	assert.Contains(t, text, "conventional commits")

	_, err = d.GetInstructions(ctx, "incident-commander")
	assert.ErrorIs(t, err, instructions.ErrMissing)

	_, err = d.GetInstructions(ctx, "nobody")
	assert.ErrorIs(t, err, agent.ErrNotFound)
}

// Requests running during reloads must each see exactly one snapshot.
func TestDispatcher_ConcurrentSelectDuringReload(t *testing.T) {
	first := []agent.Record{
		{Name: "alpha", Tier: "tactical", Keywords: agent.Phrases{"deploy"}},
		{Name: "beta", Tier: "tactical", Keywords: agent.Phrases{"rollback"}},
	}
	second := []agent.Record{
		{Name: "alpha", Tier: "tactical", Keywords: agent.Phrases{"rollback"}},
		{Name: "beta", Tier: "tactical", Keywords: agent.Phrases{"deploy the service"}},
	}

	src := &swapSource{}
	src.set(first, nil)
	d := New(src, nil, WithLogger(zerolog.Nop()))
	_, err := d.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		byReg    = map[string]string{}
		conflict []string
	)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				decision, err := d.Select(context.Background(), SelectRequest{Task: "deploy the service"})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				if prev, ok := byReg[decision.RegistryID]; ok && prev != decision.Agent {
					conflict = append(conflict, decision.RegistryID)
				}
				byReg[decision.RegistryID] = decision.Agent
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			src.set(second, nil)
		} else {
			src.set(first, nil)
		}
		_, err := d.Reload(context.Background(), TriggerWatch)
		require.NoError(t, err)
	}
	cancel()
	wg.Wait()

	assert.Empty(t, conflict)
	for _, name := range byReg {
		assert.Contains(t, []string{"alpha", "beta"}, name)
	}
}

func TestDispatcher_ConcurrentReloadsSerialise(t *testing.T) {
	d := newTestDispatcher(t)

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg, err := d.Reload(context.Background(), TriggerManual)
			if assert.NoError(t, err) {
				ids <- reg.ID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 10, "every reload builds its own snapshot")
	assert.True(t, seen[d.Snapshot().ID()])
}
