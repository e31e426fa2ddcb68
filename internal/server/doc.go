// Package server exposes the dispatcher over HTTP.
//
// The server is a thin chi router in front of dispatch.Dispatcher. Every
// handler reads the registry snapshot that is current when the request
// arrives, so a reload never changes the answer to a request in flight.
//
// # API Endpoints
//
//   - POST /select: route a task to an agent
//   - POST /plan: produce an execution plan for a named agent
//   - GET /agent: list agents, filtered by tier, category or status
//   - GET /agent/{name}: full definition of one agent
//   - GET /agent/{name}/instructions: the agent's AGENT.md
//   - GET /registry, POST /registry/reload: inspect or replace the snapshot
//   - GET /event: server-sent events from the event bus
//   - GET /metrics: Prometheus metrics
//   - GET /health: liveness and the serving snapshot ID
//
// # Errors
//
// Errors use a single envelope:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "details": {...}}}
//
// Unknown agents map to 404 with spelling suggestions, invalid filters and
// bodies to 400, and a reload that fails validation to 422 with the full
// violation list. An ambiguous route is not an error; it is a 200 whose
// decision has ambiguous set.
//
// # Event Streaming
//
// GET /event writes one "message" event per bus event with the payload
// {"type": "...", "properties": {...}}, preceded by a server.connected event.
// ?type=route.selected,plan.created limits the stream to those types.
package server
