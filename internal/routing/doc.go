// Package routing picks the agent that should handle a task.
//
// Routing is keyword based and fully deterministic. [Score] lower-cases the task and
// every keyword phrase of a definition; each phrase found as a substring of the task
// contributes its word count, so "commit message" outweighs a stray "commit".
//
// [Route] ranks every agent in a registry snapshot:
//
//  1. an explicit agent name wins outright and skips scoring;
//  2. otherwise the filters are applied and agents scoring zero are dropped;
//  3. the remainder is ordered by score (descending), strategic before tactical,
//     then name (ascending), and the first entry is chosen.
//
// When nothing scores, the decision is marked Ambiguous with no candidates. The
// router never falls back to an arbitrary agent; choosing a default is the
// caller's business.
//
// [ResolveDelegates] expands the delegates_to list of a strategic agent by exactly
// one level, in declared order.
package routing
