package event

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/event/dispatch"
	"github.com/dshills/hookbus/internal/event/source"
)

// Bus is an in-process event bus. Handlers are registered against event
// identifiers and invoked synchronously, in registration order, when the
// identifier is triggered.
//
// A Bus is re-entrant: handlers may register, unregister and trigger from
// inside a dispatch pass. Handlers are never invoked with the bus lock held.
// Ordering guarantees assume a single goroutine drives the bus.
type Bus struct {
	name string

	mu    sync.Mutex
	lists map[string]*handlerList
	once  map[string]map[Handler]*onceWrapper
	bound map[string]struct{}

	// strategy runs registered handlers; isolated always runs one-shot
	// originals regardless of the configured strategy.
	strategy dispatch.Strategy
	isolated dispatch.Strategy

	source source.Source
	logger *zap.Logger
	tracer trace.Tracer

	// Stats
	triggers         atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64
	compactions      atomic.Uint64
	bindFailures     atomic.Uint64
}

// New creates a new event bus with the given options.
func New(opts ...Option) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if config.name == "" {
		config.name = "bus-" + uuid.NewString()
	}

	logger := config.logger.With(zap.String("bus", config.name))

	sink := config.sink
	if sink == nil {
		sink = dispatch.NewLogSink(logger)
	}

	executor := dispatch.NewExecutor(dispatch.WithClock(config.clock))
	isolated := dispatch.NewIsolated(executor, sink)

	b := &Bus{
		name:     config.name,
		lists:    make(map[string]*handlerList),
		once:     make(map[string]map[Handler]*onceWrapper),
		bound:    make(map[string]struct{}),
		isolated: isolated,
		source:   config.source,
		logger:   logger,
		tracer:   config.tracer,
	}

	if config.faultIsolated {
		b.strategy = isolated
	} else {
		b.strategy = dispatch.NewDirect(executor)
	}

	if a, ok := b.source.(source.Attacher); ok {
		a.Attach(b)
	}

	logger.Debug("event bus created", zap.String("strategy", b.strategy.Name()))
	return b
}

// Name returns the bus name.
func (b *Bus) Name() string {
	return b.name
}

// FaultIsolated reports whether handler failures are isolated.
func (b *Bus) FaultIsolated() bool {
	return b.strategy == b.isolated
}

// IsRegistered reports whether any handler entry exists for event.
// Entries deactivated during a dispatch pass count until the pass
// compacts the list.
func (b *Bus) IsRegistered(event string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.lists[event]
	return list != nil && len(list.entries) > 0
}

// Holds reports whether h is active for any event, either registered
// directly or as a pending one-shot.
func (b *Bus) Holds(h Handler) bool {
	if validateHandler(h) != nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, list := range b.lists {
		if list.find(h) != nil {
			return true
		}
	}
	for _, wrappers := range b.once {
		if _, ok := wrappers[h]; ok {
			return true
		}
	}
	return false
}

// Events returns the identifiers that currently have a handler list, sorted.
func (b *Bus) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := make([]string, 0, len(b.lists))
	for name := range b.lists {
		events = append(events, name)
	}
	slices.Sort(events)
	return events
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	handlers := 0
	for _, list := range b.lists {
		handlers += len(list.entries)
	}
	bound := len(b.bound)
	b.mu.Unlock()

	return Stats{
		Triggers:         b.triggers.Load(),
		HandlersExecuted: b.handlersExecuted.Load(),
		HandlerErrors:    b.handlerErrors.Load(),
		HandlerPanics:    b.handlerPanics.Load(),
		Compactions:      b.compactions.Load(),
		BindFailures:     b.bindFailures.Load(),
		BoundEvents:      bound,
		Handlers:         handlers,
	}
}

// bind subscribes the source to event. A refusal is logged and leaves the
// identifier unbound; handlers still receive explicit triggers.
// Caller must hold b.mu.
func (b *Bus) bind(event string) {
	if _, ok := b.bound[event]; ok {
		return
	}
	if err := b.source.Subscribe(event); err != nil {
		b.bindFailures.Add(1)
		b.logger.Debug("event source refused subscription",
			zap.String("event", event), zap.Error(err))
		return
	}
	b.bound[event] = struct{}{}
}

// unbind releases the source binding for event, at most once per bind.
// Caller must hold b.mu.
func (b *Bus) unbind(event string) {
	if _, ok := b.bound[event]; !ok {
		return
	}
	delete(b.bound, event)
	if err := b.source.Unsubscribe(event); err != nil {
		b.logger.Debug("event source unsubscribe failed",
			zap.String("event", event), zap.Error(err))
	}
}

// record updates stats from one handler result.
func (b *Bus) record(result dispatch.Result) {
	b.handlersExecuted.Add(1)
	b.recordFailure(result)
}

// recordFailure counts an error or panic without counting an execution.
func (b *Bus) recordFailure(result dispatch.Result) {
	switch {
	case result.Panicked:
		b.handlerPanics.Add(1)
	case result.Error != nil:
		b.handlerErrors.Add(1)
	}
}
