package routing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pleiades-agents/pleiades/internal/agent"
)

// ErrInvalidFilter is wrapped by filter validation failures.
var ErrInvalidFilter = errors.New("invalid filter")

// Filters restricts implicit routing to a subset of agents.
// Zero values mean no restriction.
type Filters struct {
	Tier         agent.Tier `json:"tier,omitempty"`
	Category     string     `json:"category,omitempty"`
	ExcludeDraft bool       `json:"excludeDraft,omitempty"`
}

// Validate rejects filters that can never match.
func (f Filters) Validate() error {
	if f.Tier != "" && !f.Tier.Valid() {
		return fmt.Errorf("%w: tier %q (must be strategic or tactical)", ErrInvalidFilter, f.Tier)
	}
	return nil
}

// Allows reports whether def passes the filters.
func (f Filters) Allows(def *agent.Definition) bool {
	if f.Tier != "" && def.Tier != f.Tier {
		return false
	}
	if f.Category != "" && def.Category != f.Category {
		return false
	}
	if f.ExcludeDraft && def.IsDraft() {
		return false
	}
	return true
}

// Candidate is one agent with a non-zero score.
type Candidate struct {
	Name    string     `json:"name"`
	Score   int        `json:"score"`
	Tier    agent.Tier `json:"tier"`
	Matched []string   `json:"matched"`
}

// Decision is the outcome of routing a task.
type Decision struct {
	// ID identifies the decision in events and logs. Set by the dispatcher.
	ID string `json:"id,omitempty"`
	// RegistryID is the snapshot the decision was made against. Set by the dispatcher.
	RegistryID string `json:"registryID,omitempty"`
	// Agent is the chosen agent, empty when Ambiguous.
	Agent string `json:"agent,omitempty"`
	// Score is nil for explicit selections.
	Score *int `json:"score"`
	// Explicit is true when the caller named the agent.
	Explicit bool `json:"explicit"`
	// Ambiguous is true when no agent scored above zero.
	Ambiguous bool `json:"ambiguous"`
	// Candidates is every non-zero candidate in rank order.
	Candidates []Candidate `json:"candidates"`
	// DefaultAgent is a configured fallback the caller may choose when the
	// decision is Ambiguous. It is never selected automatically.
	DefaultAgent string `json:"defaultAgent,omitempty"`
	// Definition is a copy of the chosen agent taken from the same snapshot the
	// decision was made against. Nil when Ambiguous. Set by the dispatcher.
	Definition *agent.Definition `json:"-"`
}

// Route picks the agent for task from reg.
//
// A non-empty explicit name is looked up directly and returned without scoring or
// filtering; an unknown name yields *agent.NotFoundError. Otherwise agents allowed
// by filters are scored and ranked. If none scores above zero the decision is
// Ambiguous with an empty candidate list.
func Route(reg *agent.Registry, task, explicit string, filters Filters) (*Decision, error) {
	if explicit != "" {
		def, err := reg.Get(explicit)
		if err != nil {
			return nil, err
		}
		return &Decision{Agent: def.Name, Explicit: true, Candidates: []Candidate{}}, nil
	}

	if err := filters.Validate(); err != nil {
		return nil, err
	}

	candidates := Rank(reg, task, filters)
	if len(candidates) == 0 {
		return &Decision{Ambiguous: true, Candidates: candidates}, nil
	}

	best := candidates[0]
	score := best.Score
	return &Decision{Agent: best.Name, Score: &score, Candidates: candidates}, nil
}

// Rank scores every agent allowed by filters and returns the non-zero ones in
// rank order: score descending, strategic before tactical, then name ascending.
func Rank(reg *agent.Registry, task string, filters Filters) []Candidate {
	norm := normalize(task)
	candidates := []Candidate{}
	// The keyword index only narrows the set; every candidate is rescored.
	for _, name := range reg.CandidateNames(norm) {
		def, ok := reg.Lookup(name)
		if !ok || !filters.Allows(def) {
			continue
		}
		score, matched := match(def, norm)
		if score == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:    def.Name,
			Score:   score,
			Tier:    def.Tier,
			Matched: matched,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})
	return candidates
}

func less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Tier != b.Tier {
		return a.Tier == agent.TierStrategic
	}
	return a.Name < b.Name
}
