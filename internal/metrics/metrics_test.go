package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pleiades-agents/pleiades/internal/event"
)

func intPtr(i int) *int { return &i }

func TestCollector_Observe(t *testing.T) {
	c := NewCollector("")

	c.Observe(event.Event{Type: event.RouteSelected, Data: event.RouteSelectedData{Agent: "commit-writer", Score: intPtr(2)}})
	c.Observe(event.Event{Type: event.RouteSelected, Data: event.RouteSelectedData{Agent: "commit-writer", Explicit: true}})
	c.Observe(event.Event{Type: event.RouteAmbiguous, Data: event.RouteAmbiguousData{Task: "bake bread"}})
	c.Observe(event.Event{Type: event.PlanCreated, Data: event.PlanCreatedData{Agent: "security-lead"}})
	c.Observe(event.Event{Type: event.RegistryLoaded, Data: event.RegistryLoadedData{Agents: 7, Trigger: "startup", Duration: 3 * time.Millisecond}})
	c.Observe(event.Event{Type: event.RegistryReloadFailed, Data: event.RegistryReloadFailedData{Trigger: "watch"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.selectionsTotal.WithLabelValues("commit-writer", OutcomeScored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.selectionsTotal.WithLabelValues("commit-writer", OutcomeExplicit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.selectionsTotal.WithLabelValues("", OutcomeAmbiguous)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plansTotal.WithLabelValues("security-lead")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reloadsTotal.WithLabelValues("success", "startup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reloadsTotal.WithLabelValues("failure", "watch")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.registryAgents))
}

func TestCollector_IgnoresUnknownPayloads(t *testing.T) {
	c := NewCollector("")
	assert.NotPanics(t, func() {
		c.Observe(event.Event{Type: "something.else", Data: "payload"})
		c.Observe(event.Event{Type: event.RouteSelected})
	})
}

func TestCollector_Attach(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	c := NewCollector("")
	detach := c.Attach(bus)

	bus.PublishSync(event.Event{Type: event.RegistryLoaded, Data: event.RegistryLoadedData{Agents: 3, Trigger: "manual"}})
	assert.Equal(t, 3.0, testutil.ToFloat64(c.registryAgents))

	detach()
	bus.PublishSync(event.Event{Type: event.RegistryLoaded, Data: event.RegistryLoadedData{Agents: 9, Trigger: "manual"}})
	assert.Equal(t, 3.0, testutil.ToFloat64(c.registryAgents))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("pleiades")
	c.Observe(event.Event{Type: event.RouteSelected, Data: event.RouteSelectedData{Agent: "commit-writer"}})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pleiades_selections_total{agent="commit-writer",outcome="scored"} 1`)
	assert.Contains(t, string(body), "pleiades_registry_agents")
}

func TestNewCollector_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("")
		NewCollector("")
	})
}
