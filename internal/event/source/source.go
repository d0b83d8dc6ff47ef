// Package source defines the contract between the event bus and the native
// event feeds it binds to, plus a few small adapters.
package source

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
)

// ErrUnknownEvent is returned by sources that refuse identifiers they do not produce.
var ErrUnknownEvent = errors.New("event not provided by source")

// Source is a native event feed the bus subscribes to lazily, one
// identifier at a time.
//
// The bus calls Subscribe when the first handler for an identifier is
// registered and Unsubscribe when the last one is removed. Errors are
// logged and otherwise ignored by the bus. Implementations must not call
// back into the bus from either method.
type Source interface {
	Subscribe(event string) error
	Unsubscribe(event string) error
}

// Target receives events delivered by a source.
type Target interface {
	TriggerEvent(ctx context.Context, event string, args ...any) error
}

// Attacher is implemented by sources that deliver events. The bus
// attaches itself when it is constructed with such a source.
type Attacher interface {
	Attach(target Target)
}

// Nop accepts every identifier and never delivers anything.
type Nop struct{}

// Subscribe implements Source.
func (Nop) Subscribe(string) error { return nil }

// Unsubscribe implements Source.
func (Nop) Unsubscribe(string) error { return nil }

// Func adapts a pair of functions to the Source interface.
// Nil functions accept every call.
type Func struct {
	OnSubscribe   func(event string) error
	OnUnsubscribe func(event string) error
}

// Subscribe implements Source.
func (f Func) Subscribe(event string) error {
	if f.OnSubscribe == nil {
		return nil
	}
	return f.OnSubscribe(event)
}

// Unsubscribe implements Source.
func (f Func) Unsubscribe(event string) error {
	if f.OnUnsubscribe == nil {
		return nil
	}
	return f.OnUnsubscribe(event)
}

// Multi fans a binding out to several sources. Subscribe succeeds when at
// least one child accepts the identifier; only accepting children are
// later asked to unsubscribe.
type Multi struct {
	mu       sync.Mutex
	sources  []Source
	accepted map[string][]Source
}

// NewMulti combines sources. Nil entries are skipped.
func NewMulti(sources ...Source) *Multi {
	m := &Multi{accepted: make(map[string][]Source)}
	for _, s := range sources {
		if s != nil {
			m.sources = append(m.sources, s)
		}
	}
	return m
}

// Subscribe implements Source.
func (m *Multi) Subscribe(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs error
	var accepted []Source
	for _, s := range m.sources {
		if err := s.Subscribe(event); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		accepted = append(accepted, s)
	}

	if len(accepted) == 0 {
		if errs == nil {
			return ErrUnknownEvent
		}
		return errs
	}
	m.accepted[event] = accepted
	return nil
}

// Unsubscribe implements Source.
func (m *Multi) Unsubscribe(event string) error {
	m.mu.Lock()
	accepted := m.accepted[event]
	delete(m.accepted, event)
	m.mu.Unlock()

	var errs error
	for _, s := range accepted {
		errs = multierr.Append(errs, s.Unsubscribe(event))
	}
	return errs
}

// Attach forwards the target to every child that delivers events.
func (m *Multi) Attach(target Target) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sources {
		if a, ok := s.(Attacher); ok {
			a.Attach(target)
		}
	}
}
