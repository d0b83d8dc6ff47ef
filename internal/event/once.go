package event

import "context"

// onceWrapper is the handler actually registered for a one-shot
// registration. It removes itself before running the original handler, so
// a failing original cannot skip the cleanup.
type onceWrapper struct {
	bus      *Bus
	event    string
	original Handler
}

// HandleEvent implements Handler.
func (w *onceWrapper) HandleEvent(ctx context.Context, event string, args ...any) error {
	w.bus.mu.Lock()
	if w.bus.once[w.event][w.original] == w {
		w.bus.cancelOnce(w.event, w.original)
	} else {
		w.bus.deactivate(w.event, w)
	}
	w.bus.mu.Unlock()

	result, _ := w.bus.isolated.Invoke(ctx, w.original, event, args)
	w.bus.recordFailure(result)
	return nil
}

// RegisterEventOnce registers h to run on the next trigger of event only.
//
// ok is false if a one-shot registration of h for event is already
// pending, or if the input is malformed. The returned handle cancels the
// pending registration. The original handler always runs under the
// isolated strategy.
func (b *Bus) RegisterEventOnce(event string, h Handler) (unregister UnregisterFunc, ok bool) {
	if ValidateEvent(event) != nil || validateHandler(h) != nil {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.once[event][h]; exists {
		return nil, false
	}

	w := &onceWrapper{bus: b, event: event, original: h}
	if b.insert(event, w) == nil {
		return nil, false
	}

	wrappers := b.once[event]
	if wrappers == nil {
		wrappers = make(map[Handler]*onceWrapper)
		b.once[event] = wrappers
	}
	wrappers[h] = w

	return b.handle(func() {
		if b.once[event][h] == w {
			b.cancelOnce(event, h)
		}
	}), true
}

// cancelOnce deactivates the pending wrapper for (event, h) and drops the
// mapping. Caller must hold b.mu.
func (b *Bus) cancelOnce(event string, h Handler) {
	wrappers := b.once[event]
	w := wrappers[h]
	if w == nil {
		return
	}

	delete(wrappers, h)
	if len(wrappers) == 0 {
		delete(b.once, event)
	}
	b.deactivate(event, w)
}
