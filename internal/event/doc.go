/*
Package event provides a pub/sub event system for registry and routing activity.

Publishers (the dispatcher and the reload watcher) emit events; subscribers
(metrics, logging, the SSE endpoint) react to them without the publisher knowing
who listens.

# Event Types

Registry Events:
  - registry.loaded: A new snapshot was built and swapped in
  - registry.reload_failed: A reload was rejected; the previous snapshot keeps serving

Routing Events:
  - route.selected: A task was routed to an agent (explicitly or by score)
  - route.ambiguous: No agent scored above zero for a task
  - plan.created: A plan was built for an agent

# Delivery

In-process subscribers receive the typed [Event] by direct call:

	unsubscribe := bus.Subscribe(event.RouteSelected, func(e event.Event) {
		data := e.Data.(event.RouteSelectedData)
		log.Info().Str("agent", data.Agent).Msg("routed")
	})
	defer unsubscribe()

Publish calls each subscriber in its own goroutine; PublishSync calls them in the
publisher's goroutine before returning. Subscribers of PublishSync must return
quickly and must not publish themselves.

Every event is also encoded as a JSON [Envelope] and published on the watermill
gochannel topic [StreamTopic]. Streaming consumers read it with [Bus.Stream] and
ack each message:

	msgs, err := bus.Stream(ctx)
	for msg := range msgs {
		env, _ := event.Decode(msg)
		msg.Ack()
	}

# Thread Safety

The bus is safe for concurrent use. After Close, publishing is a no-op and new
subscriptions are ignored.
*/
package event
