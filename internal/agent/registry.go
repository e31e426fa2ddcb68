package agent

import (
	"sort"
	"strings"
	"time"
)

// Registry is an immutable, fully validated snapshot of agent definitions.
// It is safe for concurrent use because nothing mutates it after Load returns.
// Definitions handed out by Get, Lookup and List are shared and must be treated
// as read-only; use Definition.Clone before modifying one.
type Registry struct {
	id       string
	loadedAt time.Time
	agents   map[string]*Definition
	names    []string

	// keywordIndex maps a lower-cased phrase to the sorted names declaring it.
	keywordIndex map[string][]string
	phrases      []string
}

func newRegistry(id string, loadedAt time.Time, agents map[string]*Definition) *Registry {
	r := &Registry{
		id:           id,
		loadedAt:     loadedAt,
		agents:       agents,
		names:        make([]string, 0, len(agents)),
		keywordIndex: make(map[string][]string),
	}
	for name, def := range agents {
		r.names = append(r.names, name)
		for _, phrase := range def.NormalizedKeywords() {
			r.keywordIndex[phrase] = append(r.keywordIndex[phrase], name)
		}
	}
	sort.Strings(r.names)
	for phrase, names := range r.keywordIndex {
		sort.Strings(names)
		r.phrases = append(r.phrases, phrase)
	}
	sort.Strings(r.phrases)
	return r
}

// Empty returns a registry with no agents.
func Empty() *Registry {
	return newRegistry("", time.Time{}, map[string]*Definition{})
}

// ID returns the snapshot identifier.
func (r *Registry) ID() string {
	return r.id
}

// LoadedAt returns when the snapshot was built.
func (r *Registry) LoadedAt() time.Time {
	return r.loadedAt
}

// Get retrieves an agent by name.
func (r *Registry) Get(name string) (*Definition, error) {
	def, ok := r.agents[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Suggestions: suggest(name, r.names)}
	}
	return def, nil
}

// Lookup retrieves an agent by name without building an error.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.agents[name]
	return def, ok
}

// List returns all agents ordered by name.
func (r *Registry) List() []*Definition {
	out := make([]*Definition, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.agents[name])
	}
	return out
}

// Filter returns the agents for which keep returns true, ordered by name.
func (r *Registry) Filter(keep func(*Definition) bool) []*Definition {
	var out []*Definition
	for _, name := range r.names {
		if def := r.agents[name]; keep(def) {
			out = append(out, def)
		}
	}
	return out
}

// ListByTier returns agents of the given tier ordered by name.
func (r *Registry) ListByTier(tier Tier) []*Definition {
	return r.Filter(func(d *Definition) bool { return d.Tier == tier })
}

// ListByCategory returns agents in the given category ordered by name.
func (r *Registry) ListByCategory(category string) []*Definition {
	return r.Filter(func(d *Definition) bool { return d.Category == category })
}

// Names returns all agent names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Categories returns the distinct non-empty categories in sorted order.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range r.names {
		c := r.agents[name].Category
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Exists checks if an agent exists.
func (r *Registry) Exists(name string) bool {
	_, ok := r.agents[name]
	return ok
}

// Count returns the number of agents in the snapshot.
func (r *Registry) Count() int {
	return len(r.agents)
}

// CandidateNames returns, in sorted order, the names of every agent with at least
// one keyword phrase occurring in the lower-cased task text. It is an index shortcut
// over scoring every agent and yields exactly the agents whose score is non-zero.
func (r *Registry) CandidateNames(normalizedTask string) []string {
	hit := make(map[string]bool)
	for _, phrase := range r.phrases {
		if strings.Contains(normalizedTask, phrase) {
			for _, name := range r.keywordIndex[phrase] {
				hit[name] = true
			}
		}
	}
	out := make([]string, 0, len(hit))
	for name := range hit {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
