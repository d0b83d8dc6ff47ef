package event

// entry is one registered handler. Unregistration clears active; the entry
// stays in place until its list is compacted.
type entry struct {
	handler Handler
	active  bool
}

// handlerList holds the entries for one event identifier in registration
// order, which is also dispatch order.
type handlerList struct {
	entries []*entry

	// dirty is set when an entry was deactivated and not yet compacted.
	dirty bool

	// depth counts dispatch passes currently iterating this list.
	// Compaction waits until it drops to zero.
	depth int
}

// find returns the active entry for h, or nil.
func (l *handlerList) find(h Handler) *entry {
	for _, e := range l.entries {
		if e.active && e.handler == h {
			return e
		}
	}
	return nil
}

// hasActive reports whether any entry is still active.
func (l *handlerList) hasActive() bool {
	for _, e := range l.entries {
		if e.active {
			return true
		}
	}
	return false
}

// compact drops inactive entries, keeping relative order.
func (l *handlerList) compact() {
	kept := l.entries[:0:0]
	for _, e := range l.entries {
		if e.active {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	l.dirty = false
}

// RegisterEvent registers h for event and returns a handle that removes
// the registration.
//
// ok is false, and nothing changes, if h is already registered for event,
// if event is not a valid identifier, or if h is nil or not comparable.
// The first registration for an identifier binds it to the event source;
// a refused binding does not prevent registration.
func (b *Bus) RegisterEvent(event string, h Handler) (unregister UnregisterFunc, ok bool) {
	if ValidateEvent(event) != nil || validateHandler(h) != nil {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.insert(event, h)
	if e == nil {
		return nil, false
	}
	return b.handle(func() { b.deactivateEntry(event, e) }), true
}

// UnregisterEvent removes h from event, including a pending one-shot
// registration of h. Unknown pairs are ignored.
func (b *Bus) UnregisterEvent(event string, h Handler) {
	if ValidateEvent(event) != nil || validateHandler(h) != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.deactivate(event, h)
	b.cancelOnce(event, h)
}

// UnregisterAll removes every handler for event, drops pending one-shot
// registrations and releases the source binding.
func (b *Bus) UnregisterAll(event string) {
	if ValidateEvent(event) != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeAll(event)
}

// insert appends an active entry for h and returns it, or nil if h is
// already active for event. Caller must hold b.mu.
func (b *Bus) insert(event string, h Handler) *entry {
	list := b.lists[event]
	if list == nil {
		b.bind(event)
		list = &handlerList{}
		b.lists[event] = list
	} else if list.find(h) != nil {
		return nil
	}

	e := &entry{handler: h, active: true}
	list.entries = append(list.entries, e)
	return e
}

// deactivate marks the active entry for h inactive. Caller must hold b.mu.
func (b *Bus) deactivate(event string, h Handler) bool {
	list := b.lists[event]
	if list == nil {
		return false
	}

	e := list.find(h)
	if e == nil {
		return false
	}
	b.retire(event, list, e)
	return true
}

// deactivateEntry retires e if it is still active. An active entry always
// belongs to the current list for event. Caller must hold b.mu.
func (b *Bus) deactivateEntry(event string, e *entry) {
	if !e.active {
		return
	}
	if list := b.lists[event]; list != nil {
		b.retire(event, list, e)
	}
}

// retire marks e inactive. Caller must hold b.mu.
func (b *Bus) retire(event string, list *handlerList, e *entry) {
	e.active = false
	list.dirty = true
	b.sweepIdle(event, list)
}

// sweepIdle drops a list that has no active entries left when no pass is
// iterating it. Lists with surviving entries are left for the next pass to
// compact. Caller must hold b.mu.
func (b *Bus) sweepIdle(event string, list *handlerList) {
	if list.depth > 0 || list.hasActive() {
		return
	}
	b.compactions.Add(1)
	list.compact()
	b.drop(event, list)
}

// removeAll detaches the whole list for event. A pass still iterating the
// list sees every entry inactive. Caller must hold b.mu.
func (b *Bus) removeAll(event string) {
	delete(b.once, event)

	list := b.lists[event]
	if list == nil {
		return
	}
	for _, e := range list.entries {
		e.active = false
	}
	list.dirty = true
	b.drop(event, list)
}

// drop removes list from the table if it is still the list for event, and
// releases the binding. Caller must hold b.mu.
func (b *Bus) drop(event string, list *handlerList) {
	if b.lists[event] != list {
		return
	}
	delete(b.lists, event)
	b.unbind(event)
}

// handle wraps fn in an idempotent UnregisterFunc.
// fn runs with b.mu held.
func (b *Bus) handle(fn func()) UnregisterFunc {
	done := false
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if done {
			return
		}
		done = true
		fn()
	}
}
