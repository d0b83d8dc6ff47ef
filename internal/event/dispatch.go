package event

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TriggerEvent invokes every active handler registered for event, in
// registration order, with (ctx, event, args...).
//
// Only handlers present when the pass starts are visited; handlers
// registered during the pass wait for the next trigger. A handler
// unregistered before its turn is skipped. Under the direct strategy the
// first handler error stops the pass and is returned as a *HandlerError;
// under the isolated strategy TriggerEvent always returns nil.
func (b *Bus) TriggerEvent(ctx context.Context, event string, args ...any) (err error) {
	b.mu.Lock()
	list := b.lists[event]
	if list == nil {
		b.mu.Unlock()
		return nil
	}
	n := len(list.entries)
	list.depth++
	b.mu.Unlock()

	b.triggers.Add(1)

	ctx, span := b.tracer.Start(ctx, "event.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("event.bus", b.name),
			attribute.String("event.name", event),
			attribute.Int("event.handlers", n),
		),
	)
	defer func() {
		b.finishPass(event, list)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for i := 0; i < n; i++ {
		b.mu.Lock()
		e := list.entries[i]
		active := e.active
		b.mu.Unlock()

		if !active {
			continue
		}

		result, invokeErr := b.strategy.Invoke(ctx, e.handler, event, args)
		b.record(result)
		if invokeErr != nil {
			return &HandlerError{Bus: b.name, Event: event, Err: invokeErr}
		}
	}

	return nil
}

// finishPass closes one dispatch pass over list. The outermost pass
// compacts a dirty list and, if nothing is left, removes it and releases
// the source binding.
func (b *Bus) finishPass(event string, list *handlerList) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list.depth--
	if list.depth > 0 {
		return
	}

	if list.dirty {
		list.compact()
		b.compactions.Add(1)
	}
	if len(list.entries) == 0 {
		b.drop(event, list)
	}
}
