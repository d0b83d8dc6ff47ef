package event

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dshills/hookbus/internal/event/dispatch"
)

// call is one recorded handler invocation.
type call struct {
	name  string
	event string
	args  []any
}

// recorder collects invocations from several handlers in order.
type recorder struct {
	calls []call
}

func (r *recorder) handler(name string, ret error) Handler {
	return HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		r.calls = append(r.calls, call{name: name, event: event, args: args})
		return ret
	})
}

func (r *recorder) names() []string {
	names := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		names = append(names, c.name)
	}
	return names
}

// recordingSource records bind traffic and refuses listed identifiers.
type recordingSource struct {
	subscribed   []string
	unsubscribed []string
	refuse       map[string]bool
}

func (s *recordingSource) Subscribe(event string) error {
	if s.refuse[event] {
		return errors.New("unknown event " + event)
	}
	s.subscribed = append(s.subscribed, event)
	return nil
}

func (s *recordingSource) Unsubscribe(event string) error {
	s.unsubscribed = append(s.unsubscribed, event)
	return nil
}

// sliceHandler has a non-comparable dynamic type.
type sliceHandler []int

func (sliceHandler) HandleEvent(context.Context, string, ...any) error { return nil }

// boxedHandler has a comparable type whose value may not be.
type boxedHandler struct{ v any }

func (boxedHandler) HandleEvent(context.Context, string, ...any) error { return nil }

func TestNew_Defaults(t *testing.T) {
	bus := New()

	assert.True(t, strings.HasPrefix(bus.Name(), "bus-"), "generated name %q", bus.Name())
	assert.True(t, bus.FaultIsolated())
	assert.Empty(t, bus.Events())
}

func TestNew_FaultIsolationFalseIsHonored(t *testing.T) {
	bus := New(WithName("fast"), WithFaultIsolation(false))

	assert.Equal(t, "fast", bus.Name())
	assert.False(t, bus.FaultIsolated())
}

func TestBus_RegisterAndTrigger(t *testing.T) {
	ctx := context.Background()
	bus := New()
	rec := &recorder{}
	f := rec.handler("f", nil)

	_, ok := bus.RegisterEvent("X", f)
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "X", 1))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "X", rec.calls[0].event)
	assert.Equal(t, []any{1}, rec.calls[0].args)

	_, ok = bus.RegisterEvent("X", f)
	assert.False(t, ok, "duplicate registration must be a no-op")
	assert.Equal(t, 1, bus.Stats().Handlers)

	require.NoError(t, bus.TriggerEvent(ctx, "X", 2))
	require.Len(t, rec.calls, 2)
	assert.Equal(t, []any{2}, rec.calls[1].args)
}

func TestBus_TriggerWithoutHandlers(t *testing.T) {
	bus := New()
	assert.NoError(t, bus.TriggerEvent(context.Background(), "NOTHING"))
	assert.Zero(t, bus.Stats().Triggers)
}

func TestBus_RegisterMalformedInput(t *testing.T) {
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}

	tests := []struct {
		name    string
		event   string
		handler Handler
	}{
		{"empty event", "", rec.handler("a", nil)},
		{"whitespace event", "BAD EVENT", rec.handler("a", nil)},
		{"control character", "BAD\x00", rec.handler("a", nil)},
		{"too long", strings.Repeat("E", MaxEventLength+1), rec.handler("a", nil)},
		{"nil handler", "E", nil},
		{"non-comparable handler", "E", sliceHandler{1}},
		{"slice boxed in interface field", "E", boxedHandler{v: []int{1}}},
		{"map boxed in interface field", "E", boxedHandler{v: map[string]int{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unregister, ok := bus.RegisterEvent(tt.event, tt.handler)
			assert.False(t, ok)
			assert.Nil(t, unregister)

			unregister, ok = bus.RegisterEventOnce(tt.event, tt.handler)
			assert.False(t, ok)
			assert.Nil(t, unregister)

			assert.NotPanics(t, func() {
				bus.UnregisterEvent(tt.event, tt.handler)
				bus.UnregisterAll(tt.event)
			})
		})
	}

	assert.Empty(t, src.subscribed)
	assert.False(t, bus.IsRegistered("E"))
}

func TestBus_BoxedHandlerValues(t *testing.T) {
	bus := New()

	assert.NotPanics(t, func() {
		_, ok := bus.RegisterEvent("E", boxedHandler{v: []int{1}})
		assert.False(t, ok)
		_, ok = bus.RegisterEvent("E", boxedHandler{v: []int{2}})
		assert.False(t, ok)
		_, ok = bus.RegisterEventOnce("E", boxedHandler{v: []int{1}})
		assert.False(t, ok)
	})
	assert.False(t, bus.IsRegistered("E"))

	_, ok := bus.RegisterEvent("E", boxedHandler{v: 1})
	assert.True(t, ok, "comparable boxed values are accepted")
	_, ok = bus.RegisterEvent("E", boxedHandler{v: 1})
	assert.False(t, ok, "equal values are duplicates")
	_, ok = bus.RegisterEvent("E", boxedHandler{v: 2})
	assert.True(t, ok)
}

func TestBus_Holds(t *testing.T) {
	bus := New()
	rec := &recorder{}
	h := rec.handler("h", nil)

	assert.False(t, bus.Holds(h))
	assert.False(t, bus.Holds(nil))

	_, ok := bus.RegisterEventOnce("A", h)
	require.True(t, ok)
	assert.True(t, bus.Holds(h), "pending one-shot")

	require.NoError(t, bus.TriggerEvent(context.Background(), "A"))
	assert.False(t, bus.Holds(h))

	unregister, ok := bus.RegisterEvent("B", h)
	require.True(t, ok)
	assert.True(t, bus.Holds(h))
	unregister()
	assert.False(t, bus.Holds(h))
}

func TestBus_UnregisterUnknownIsNoop(t *testing.T) {
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}

	assert.NotPanics(t, func() {
		bus.UnregisterEvent("E", rec.handler("never", nil))
	})

	_, ok := bus.RegisterEvent("E", rec.handler("kept", nil))
	require.True(t, ok)

	bus.UnregisterEvent("E", rec.handler("other", nil))
	assert.True(t, bus.IsRegistered("E"))
	assert.Empty(t, src.unsubscribed)
}

func TestBus_LazyBinding(t *testing.T) {
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}

	a, b := rec.handler("a", nil), rec.handler("b", nil)
	unregisterA, ok := bus.RegisterEvent("E", a)
	require.True(t, ok)
	_, ok = bus.RegisterEvent("E", b)
	require.True(t, ok)

	assert.Equal(t, []string{"E"}, src.subscribed, "only the first registration binds")
	assert.Equal(t, 1, bus.Stats().BoundEvents)

	unregisterA()
	assert.True(t, bus.IsRegistered("E"))
	assert.Empty(t, src.unsubscribed)

	bus.UnregisterEvent("E", b)
	assert.False(t, bus.IsRegistered("E"))
	assert.Equal(t, []string{"E"}, src.unsubscribed)

	unregisterA()
	bus.UnregisterEvent("E", b)
	bus.UnregisterAll("E")
	assert.Equal(t, []string{"E"}, src.unsubscribed, "binding is released exactly once")
	assert.Zero(t, bus.Stats().BoundEvents)
}

func TestBus_SourceRefusalDoesNotBlockRegistration(t *testing.T) {
	src := &recordingSource{refuse: map[string]bool{"CUSTOM": true}}
	bus := New(WithSource(src))
	rec := &recorder{}
	h := rec.handler("h", nil)

	_, ok := bus.RegisterEvent("CUSTOM", h)
	require.True(t, ok)
	assert.True(t, bus.IsRegistered("CUSTOM"))
	assert.Equal(t, uint64(1), bus.Stats().BindFailures)

	require.NoError(t, bus.TriggerEvent(context.Background(), "CUSTOM", "payload"))
	assert.Equal(t, []string{"h"}, rec.names())

	bus.UnregisterEvent("CUSTOM", h)
	assert.False(t, bus.IsRegistered("CUSTOM"))
	assert.Empty(t, src.unsubscribed, "a refused identifier is never unsubscribed")
}

func TestBus_UnregisterHandleIsIdempotent(t *testing.T) {
	bus := New()
	rec := &recorder{}
	h := rec.handler("h", nil)

	unregister, ok := bus.RegisterEvent("E", h)
	require.True(t, ok)
	unregister()
	assert.False(t, bus.IsRegistered("E"))

	_, ok = bus.RegisterEvent("E", h)
	require.True(t, ok)

	unregister()
	assert.True(t, bus.IsRegistered("E"), "a spent handle must not remove a newer registration")

	require.NoError(t, bus.TriggerEvent(context.Background(), "E"))
	assert.Equal(t, []string{"h"}, rec.names())
}

func TestBus_DispatchOrder(t *testing.T) {
	bus := New()
	rec := &recorder{}

	for _, name := range []string{"first", "second", "third"} {
		_, ok := bus.RegisterEvent("E", rec.handler(name, nil))
		require.True(t, ok)
	}

	require.NoError(t, bus.TriggerEvent(context.Background(), "E"))
	assert.Equal(t, []string{"first", "second", "third"}, rec.names())
}

func TestBus_DeactivateUnvisitedSibling(t *testing.T) {
	ctx := context.Background()
	bus := New()
	rec := &recorder{}

	c := rec.handler("c", nil)
	a := HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		rec.calls = append(rec.calls, call{name: "a"})
		bus.UnregisterEvent("E", c)
		return nil
	})
	b := rec.handler("b", nil)

	for _, h := range []Handler{a, b, c} {
		_, ok := bus.RegisterEvent("E", h)
		require.True(t, ok)
	}

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"a", "b"}, rec.names())
	assert.Equal(t, 2, bus.Stats().Handlers, "the pass compacts the deactivated entry")
	assert.Equal(t, uint64(1), bus.Stats().Compactions)

	rec.calls = nil
	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"a", "b"}, rec.names())
}

func TestBus_SelfUnregisterDuringDispatch(t *testing.T) {
	ctx := context.Background()
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}

	var self Handler
	self = HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		rec.calls = append(rec.calls, call{name: "self"})
		bus.UnregisterEvent("E", self)
		assert.True(t, bus.IsRegistered("E"), "entries stay until the pass compacts")
		return nil
	})

	_, ok := bus.RegisterEvent("E", self)
	require.True(t, ok)
	_, ok = bus.RegisterEvent("E", rec.handler("next", nil))
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"self", "next"}, rec.names())

	rec.calls = nil
	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"next"}, rec.names())
	assert.Empty(t, src.unsubscribed)
}

func TestBus_LastHandlerRemovedDuringDispatchUnbindsAfterPass(t *testing.T) {
	src := &recordingSource{}
	bus := New(WithSource(src))

	var self Handler
	self = HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		bus.UnregisterEvent("E", self)
		assert.Empty(t, src.unsubscribed, "no unbind while the pass runs")
		return nil
	})
	_, ok := bus.RegisterEvent("E", self)
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(context.Background(), "E"))
	assert.False(t, bus.IsRegistered("E"))
	assert.Equal(t, []string{"E"}, src.unsubscribed)
}

func TestBus_ReentrantRegistrationNotVisited(t *testing.T) {
	ctx := context.Background()
	bus := New()
	rec := &recorder{}
	late := rec.handler("late", nil)

	_, ok := bus.RegisterEvent("E", HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		rec.calls = append(rec.calls, call{name: "early"})
		bus.RegisterEvent("E", late)
		return nil
	}))
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"early"}, rec.names())

	rec.calls = nil
	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"early", "late"}, rec.names())
}

func TestBus_ReregisterAfterUnregisterInSamePass(t *testing.T) {
	ctx := context.Background()
	bus := New()
	rec := &recorder{}
	target := rec.handler("target", nil)

	_, ok := bus.RegisterEvent("E", HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		bus.UnregisterEvent("E", target)
		_, ok := bus.RegisterEvent("E", target)
		assert.True(t, ok, "an inactive entry does not count as a duplicate")
		return nil
	}))
	require.True(t, ok)
	_, ok = bus.RegisterEvent("E", target)
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Empty(t, rec.names(), "the old entry is skipped and the new one is not visited")
	assert.Equal(t, 2, bus.Stats().Handlers)
}

func TestBus_NestedTriggerDefersCompaction(t *testing.T) {
	ctx := context.Background()
	bus := New()
	rec := &recorder{}

	nested := false
	a := HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		rec.calls = append(rec.calls, call{name: "a"})
		if !nested {
			nested = true
			require.NoError(t, bus.TriggerEvent(ctx, "E"))
		}
		return nil
	})
	c := rec.handler("c", nil)
	b := HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		rec.calls = append(rec.calls, call{name: "b"})
		bus.UnregisterEvent("E", c)
		return nil
	})

	for _, h := range []Handler{a, b, c} {
		_, ok := bus.RegisterEvent("E", h)
		require.True(t, ok)
	}

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"a", "a", "b", "b"}, rec.names())
	assert.Equal(t, 2, bus.Stats().Handlers)
	assert.Equal(t, uint64(1), bus.Stats().Compactions)
}

func TestBus_UnregisterAll(t *testing.T) {
	ctx := context.Background()
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}

	h := rec.handler("h", nil)
	once := rec.handler("once", nil)
	_, ok := bus.RegisterEvent("E", h)
	require.True(t, ok)
	_, ok = bus.RegisterEventOnce("E", once)
	require.True(t, ok)

	bus.UnregisterAll("E")
	assert.False(t, bus.IsRegistered("E"))
	assert.Equal(t, []string{"E"}, src.unsubscribed)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Empty(t, rec.calls)

	_, ok = bus.RegisterEventOnce("E", once)
	assert.True(t, ok, "one-shot mappings are dropped with the list")
	assert.Equal(t, []string{"E", "E"}, src.subscribed)
}

func TestBus_UnregisterAllDuringDispatch(t *testing.T) {
	ctx := context.Background()
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}

	_, ok := bus.RegisterEvent("E", HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		rec.calls = append(rec.calls, call{name: "clear"})
		bus.UnregisterAll("E")
		return nil
	}))
	require.True(t, ok)
	_, ok = bus.RegisterEvent("E", rec.handler("skipped", nil))
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"clear"}, rec.names())
	assert.False(t, bus.IsRegistered("E"))
	assert.Equal(t, []string{"E"}, src.unsubscribed)
}

func TestBus_RegisterAfterUnregisterAllDuringDispatch(t *testing.T) {
	ctx := context.Background()
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}
	fresh := rec.handler("fresh", nil)

	_, ok := bus.RegisterEvent("E", HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		bus.UnregisterAll("E")
		bus.RegisterEvent("E", fresh)
		return nil
	}))
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.True(t, bus.IsRegistered("E"), "the finished pass must not drop the replacement list")
	assert.Equal(t, []string{"E", "E"}, src.subscribed)
	assert.Equal(t, []string{"E"}, src.unsubscribed)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"fresh"}, rec.names())
}

func TestBus_IsolatedStrategyContinuesPastFailures(t *testing.T) {
	var failures []dispatch.Failure
	bus := New(WithErrorSink(dispatch.SinkFunc(func(f dispatch.Failure) {
		failures = append(failures, f)
	})))
	rec := &recorder{}
	boom := errors.New("boom")

	_, _ = bus.RegisterEvent("E", rec.handler("fails", boom))
	_, _ = bus.RegisterEvent("E", HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		rec.calls = append(rec.calls, call{name: "panics"})
		panic("kaboom")
	}))
	_, _ = bus.RegisterEvent("E", rec.handler("runs", nil))

	require.NoError(t, bus.TriggerEvent(context.Background(), "E"))
	assert.Equal(t, []string{"fails", "panics", "runs"}, rec.names())

	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0].Err, boom)
	assert.False(t, failures[0].Panicked)
	assert.True(t, failures[1].Panicked)
	assert.ErrorIs(t, failures[1].Err, ErrHandlerPanic)
	assert.NotEmpty(t, failures[1].Stack)

	stats := bus.Stats()
	assert.Equal(t, uint64(3), stats.HandlersExecuted)
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(1), stats.HandlerPanics)
}

func TestBus_DirectStrategyAbortsPass(t *testing.T) {
	ctx := context.Background()
	bus := New(WithName("direct"), WithFaultIsolation(false))
	rec := &recorder{}
	boom := errors.New("boom")

	fails := rec.handler("fails", boom)
	_, _ = bus.RegisterEvent("E", rec.handler("before", nil))
	_, _ = bus.RegisterEvent("E", fails)
	_, _ = bus.RegisterEvent("E", rec.handler("after", nil))

	err := bus.TriggerEvent(ctx, "E", 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "direct", herr.Bus)
	assert.Equal(t, "E", herr.Event)
	assert.Equal(t, []string{"before", "fails"}, rec.names())

	bus.UnregisterEvent("E", fails)
	rec.calls = nil
	require.NoError(t, bus.TriggerEvent(ctx, "E", 8))
	assert.Equal(t, []string{"before", "after"}, rec.names())
}

func TestBus_DirectStrategyPanicPropagates(t *testing.T) {
	src := &recordingSource{}
	bus := New(WithFaultIsolation(false), WithSource(src))

	var h Handler
	h = HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		bus.UnregisterEvent("E", h)
		panic("kaboom")
	})
	_, ok := bus.RegisterEvent("E", h)
	require.True(t, ok)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = bus.TriggerEvent(context.Background(), "E")
	})
	assert.False(t, bus.IsRegistered("E"), "bookkeeping still runs while the panic unwinds")
	assert.Equal(t, []string{"E"}, src.unsubscribed)
}

func TestBus_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	bus := New(WithName("traced"), WithFaultIsolation(false), WithTracer(tp.Tracer("test")))

	_, _ = bus.RegisterEvent("OK", HandlerFunc(func(context.Context, string, ...any) error { return nil }))
	_, _ = bus.RegisterEvent("FAIL", HandlerFunc(func(context.Context, string, ...any) error {
		return errors.New("nope")
	}))

	require.NoError(t, bus.TriggerEvent(context.Background(), "OK"))
	require.Error(t, bus.TriggerEvent(context.Background(), "FAIL"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "event.dispatch", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("event.name", "OK"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("event.bus", "traced"))
	assert.Len(t, spans[1].Events(), 1, "the handler error is recorded on the span")
}

func TestBus_Events(t *testing.T) {
	bus := New()
	rec := &recorder{}

	_, _ = bus.RegisterEvent("B", rec.handler("b", nil))
	_, _ = bus.RegisterEvent("A", rec.handler("a", nil))

	assert.Equal(t, []string{"A", "B"}, bus.Events())
}

func TestDefault(t *testing.T) {
	bus := Default()

	assert.Same(t, bus, Default())
	assert.Equal(t, DefaultName, bus.Name())
	assert.True(t, bus.FaultIsolated())
}

func TestCollector(t *testing.T) {
	a := New(WithName("a"))
	b := New(WithName("b"))
	_, _ = a.RegisterEvent("E", HandlerFunc(func(context.Context, string, ...any) error { return nil }))
	require.NoError(t, a.TriggerEvent(context.Background(), "E"))

	c := NewCollector("hookbus", a)
	assert.Equal(t, 8, testutil.CollectAndCount(c))

	c.Add(b)
	assert.Equal(t, 16, testutil.CollectAndCount(c))
	assert.Equal(t, 2, testutil.CollectAndCount(c, "hookbus_event_triggers_total"))
}

func TestBus_StaleHandleAfterExternalUnregister(t *testing.T) {
	bus := New()
	rec := &recorder{}
	h := rec.handler("h", nil)

	stale, ok := bus.RegisterEvent("E", h)
	require.True(t, ok)
	bus.UnregisterEvent("E", h)

	_, ok = bus.RegisterEvent("E", h)
	require.True(t, ok)

	stale()
	assert.True(t, bus.IsRegistered("E"))
}
