package event

import (
	"time"

	"github.com/pleiades-agents/pleiades/internal/agent"
)

// RegistryLoadedData is the data for registry.loaded events.
type RegistryLoadedData struct {
	ID       string        `json:"id"`
	Agents   int           `json:"agents"`
	Source   string        `json:"source,omitempty"`
	Duration time.Duration `json:"duration"`
	Trigger  string        `json:"trigger"` // "startup" | "manual" | "watch"
}

// RegistryReloadFailedData is the data for registry.reload_failed events.
// The previous snapshot stays in service.
type RegistryReloadFailedData struct {
	Error      string            `json:"error"`
	Violations []agent.Violation `json:"violations,omitempty"`
	ServingID  string            `json:"servingID"`
	Trigger    string            `json:"trigger"`
}

// RouteSelectedData is the data for route.selected events.
type RouteSelectedData struct {
	DecisionID string `json:"decisionID"`
	RegistryID string `json:"registryID"`
	Agent      string `json:"agent"`
	Score      *int   `json:"score"`
	Explicit   bool   `json:"explicit"`
	Candidates int    `json:"candidates"`
}

// RouteAmbiguousData is the data for route.ambiguous events.
type RouteAmbiguousData struct {
	DecisionID   string `json:"decisionID"`
	RegistryID   string `json:"registryID"`
	Task         string `json:"task"`
	DefaultAgent string `json:"defaultAgent,omitempty"`
}

// PlanCreatedData is the data for plan.created events.
type PlanCreatedData struct {
	RegistryID string   `json:"registryID"`
	Agent      string   `json:"agent"`
	Delegates  []string `json:"delegates"`
}
