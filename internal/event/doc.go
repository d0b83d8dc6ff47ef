// Package event provides the in-process event bus.
//
// Handlers are registered against string event identifiers and run
// synchronously, in registration order, when the identifier is triggered,
// either explicitly through TriggerEvent or by a native event source the bus
// is bound to.
//
// # Basic Usage
//
//	bus := event.New(event.WithName("ui"))
//
//	h := event.HandlerFunc(func(ctx context.Context, name string, args ...any) error {
//	    fmt.Println(name, args)
//	    return nil
//	})
//
//	unregister, _ := bus.RegisterEvent("PLAYER_LOGIN", h)
//	defer unregister()
//
//	_ = bus.TriggerEvent(ctx, "PLAYER_LOGIN", "arthas")
//
// # Handler Lists
//
// Each identifier owns an ordered list of entries. Unregistering marks an
// entry inactive; the list is compacted once, after the dispatch pass that
// saw the change. This keeps a handler that removes itself (or a sibling)
// from disturbing the pass in progress. A list with no active entries left
// is removed, which releases the identifier from the event source.
//
// # One-Shot Handlers
//
// RegisterEventOnce wraps a handler so that it unregisters itself before
// running. The original always runs fault-isolated.
//
// # Invocation Strategies
//
// By default handler errors and panics are reported to an ErrorSink and the
// pass continues. WithFaultIsolation(false) selects the direct strategy:
// the first error aborts the pass and is returned from TriggerEvent.
//
// # Event Sources
//
// A source.Source is subscribed the first time a handler is registered for
// an identifier and unsubscribed when the last one is removed. Refusals are
// logged and ignored; the handlers still receive explicit triggers.
//
// # Subpackages
//
//   - dispatch: invocation strategies, executor and error sinks
//   - source: event source contract and adapters
//   - source/terminal: terminal input as an event source
package event
