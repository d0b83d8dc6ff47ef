package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hookbus/internal/event/dispatch"
)

func TestRegisterEventOnce_RunsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	src := &recordingSource{}
	bus := New(WithSource(src))
	rec := &recorder{}

	_, ok := bus.RegisterEventOnce("LOGIN", rec.handler("once", nil))
	require.True(t, ok)
	assert.True(t, bus.IsRegistered("LOGIN"))

	require.NoError(t, bus.TriggerEvent(ctx, "LOGIN", "a"))
	require.NoError(t, bus.TriggerEvent(ctx, "LOGIN", "b"))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []any{"a"}, rec.calls[0].args)
	assert.False(t, bus.IsRegistered("LOGIN"))
	assert.Equal(t, []string{"LOGIN"}, src.unsubscribed)
}

func TestRegisterEventOnce_Duplicate(t *testing.T) {
	bus := New()
	rec := &recorder{}
	h := rec.handler("once", nil)

	_, ok := bus.RegisterEventOnce("E", h)
	require.True(t, ok)
	_, ok = bus.RegisterEventOnce("E", h)
	assert.False(t, ok)
	assert.Equal(t, 1, bus.Stats().Handlers)

	require.NoError(t, bus.TriggerEvent(context.Background(), "E"))
	assert.Len(t, rec.calls, 1)
}

func TestRegisterEventOnce_CoexistsWithPlainRegistration(t *testing.T) {
	ctx := context.Background()
	bus := New()
	rec := &recorder{}
	h := rec.handler("h", nil)

	_, ok := bus.RegisterEvent("E", h)
	require.True(t, ok)
	_, ok = bus.RegisterEventOnce("E", h)
	require.True(t, ok, "the wrapper is a distinct handler")

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"h", "h"}, rec.names())

	rec.calls = nil
	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, []string{"h"}, rec.names())
}

func TestRegisterEventOnce_CancelBeforeTrigger(t *testing.T) {
	ctx := context.Background()

	t.Run("handle", func(t *testing.T) {
		bus := New()
		rec := &recorder{}

		cancel, ok := bus.RegisterEventOnce("E", rec.handler("once", nil))
		require.True(t, ok)
		cancel()
		cancel()

		assert.False(t, bus.IsRegistered("E"))
		require.NoError(t, bus.TriggerEvent(ctx, "E"))
		assert.Empty(t, rec.calls)
	})

	t.Run("original reference", func(t *testing.T) {
		bus := New()
		rec := &recorder{}
		h := rec.handler("once", nil)

		_, ok := bus.RegisterEventOnce("E", h)
		require.True(t, ok)
		bus.UnregisterEvent("E", h)

		assert.False(t, bus.IsRegistered("E"))
		require.NoError(t, bus.TriggerEvent(ctx, "E"))
		assert.Empty(t, rec.calls)

		_, ok = bus.RegisterEventOnce("E", h)
		assert.True(t, ok, "the mapping is gone after cancellation")
	})
}

func TestRegisterEventOnce_CancelAfterFiringIsNoop(t *testing.T) {
	ctx := context.Background()
	bus := New()
	rec := &recorder{}
	h := rec.handler("h", nil)

	cancel, ok := bus.RegisterEventOnce("E", h)
	require.True(t, ok)
	require.NoError(t, bus.TriggerEvent(ctx, "E"))

	_, ok = bus.RegisterEventOnce("E", h)
	require.True(t, ok)

	cancel()
	assert.True(t, bus.IsRegistered("E"), "a spent handle must not cancel a newer one-shot")
}

func TestRegisterEventOnce_FailingOriginalIsIsolated(t *testing.T) {
	ctx := context.Background()
	var failures []dispatch.Failure
	bus := New(
		WithFaultIsolation(false),
		WithErrorSink(dispatch.SinkFunc(func(f dispatch.Failure) {
			failures = append(failures, f)
		})),
	)
	rec := &recorder{}

	_, ok := bus.RegisterEventOnce("E", HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		panic("once failed")
	}))
	require.True(t, ok)
	_, ok = bus.RegisterEventOnce("E", rec.handler("errs", errors.New("bad")))
	require.True(t, ok)
	_, ok = bus.RegisterEvent("E", rec.handler("after", nil))
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "E"), "one-shot failures never reach the caller")
	assert.Equal(t, []string{"errs", "after"}, rec.names())
	require.Len(t, failures, 2)
	assert.True(t, failures[0].Panicked)

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(3), stats.HandlersExecuted)
	assert.Equal(t, 1, stats.Handlers)
}

func TestRegisterEventOnce_ReentrantTriggerRunsOnce(t *testing.T) {
	ctx := context.Background()
	bus := New()
	count := 0

	_, ok := bus.RegisterEventOnce("E", HandlerFunc(func(ctx context.Context, event string, args ...any) error {
		count++
		return bus.TriggerEvent(ctx, "E")
	}))
	require.True(t, ok)

	require.NoError(t, bus.TriggerEvent(ctx, "E"))
	assert.Equal(t, 1, count, "cleanup happens before the original runs")
	assert.False(t, bus.IsRegistered("E"))
}

func TestRegisterEventOnce_UnregisterAllDropsPending(t *testing.T) {
	bus := New()
	rec := &recorder{}
	h := rec.handler("once", nil)

	_, ok := bus.RegisterEventOnce("E", h)
	require.True(t, ok)
	bus.UnregisterAll("E")

	require.NoError(t, bus.TriggerEvent(context.Background(), "E"))
	assert.Empty(t, rec.calls)
}
