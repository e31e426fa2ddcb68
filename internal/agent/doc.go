// Package agent provides agent definitions and the registry snapshot they live in.
//
// An agent is a named, keyword-tagged handler with an execution tier. Definitions are
// declared in loosely typed sources (YAML files on disk, see package source) and are
// validated eagerly at the load boundary into a strict [Definition]; nothing that
// failed validation ever reaches routing.
//
// # Tiers
//
//   - TierStrategic: analyzes, plans, executes and monitors; may delegate to other agents
//     through delegates_to.
//   - TierTactical: executes a focused task directly and never delegates.
//
// # Loading
//
// [Load] turns raw [Record] values into an immutable [Registry]:
//
//	reg, err := agent.Load(records, agent.WithKnownRuntimes("claude-native", "gemini-cli"))
//	var verr *agent.ValidationError
//	if errors.As(err, &verr) {
//	    for _, v := range verr.Violations {
//	        fmt.Println(v) // commit-writer: [tactical-delegates] ...
//	    }
//	}
//
// Loading is all-or-nothing. Per-record checks (required fields, tier, status, runtime
// mode, name format, name matching its directory) run first, then global checks
// (duplicate names, dangling delegate references, delegation cycles, tactical agents
// with delegates). Every violation is reported, not just the first.
//
// Delegation cycles are detected with a depth-first search that keeps an explicit
// recursion stack; a node reached again while still on the stack closes a cycle, which
// is reported with its full path (a → b → a).
//
// # Registry
//
// A [Registry] is never mutated once built, so any number of goroutines may read it
// without locking. Reloading produces a new Registry; holders of the old one keep a
// consistent view until they drop it. Besides the name index the registry keeps an
// inverted keyword index used by [Registry.CandidateNames] to narrow scoring.
//
// # Errors
//
// [NotFoundError] reports an unknown agent name together with the closest existing
// names by edit distance, and matches [ErrNotFound] under errors.Is.
package agent
