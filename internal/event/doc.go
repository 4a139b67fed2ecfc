// Package event provides the in-process event bus that modules use to
// communicate with each other. Modules never hold references to their
// siblings; immutable event values flowing through the bus are the only
// coupling between them.
//
// Dispatch is keyed by the concrete Go type of the published event.
// Subscribe is a generic registration API; each handler is stored behind
// a non-generic invocation wrapper so Publish needs the event's dynamic
// type only as a map key, never to inspect the value:
//
//	sub := event.Subscribe(bus, func(ctx context.Context, ev events.InvoiceCreated) error {
//	    // typed payload, no assertions needed
//	    return nil
//	})
//	defer bus.Unsubscribe(sub)
//
//	if err := bus.Publish(ctx, events.NewInvoiceCreated("INV-1", "acme", 99.5)); err != nil {
//	    log.Printf("publish failed: %v", err)
//	}
//
// Publish fans out to every handler registered for the exact concrete
// type concurrently and joins before returning, so the publisher's
// completion is bound to the slowest handler. There is no per-handler
// timeout; the caller's context is passed through and cancels handlers
// that honor it. Handler errors and panics never cancel sibling
// handlers and are observable only through the failure-reporting
// channel, not through Publish's return value.
//
// Delivery is at-most-once per handler per publish, with no
// persistence, retry, or replay. No ordering is guaranteed between
// handlers of one publish, nor across concurrent publishes of the same
// event type.
package event
