package routing

import (
	"github.com/pleiades-agents/pleiades/internal/agent"
)

// ResolveDelegates returns the agents name may delegate to, in declared order.
// Only one level is expanded: a strategic delegate is returned as is, without its
// own delegates. Tactical agents resolve to an empty list.
func ResolveDelegates(reg *agent.Registry, name string) ([]*agent.Definition, error) {
	def, err := reg.Get(name)
	if err != nil {
		return nil, err
	}
	if !def.IsStrategic() {
		return []*agent.Definition{}, nil
	}

	delegates := make([]*agent.Definition, 0, len(def.DelegatesTo))
	for _, target := range def.DelegatesTo {
		d, err := reg.Get(target)
		if err != nil {
			// Unreachable for a validated registry.
			return nil, err
		}
		delegates = append(delegates, d)
	}
	return delegates, nil
}
