package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type fakeSource struct {
	provides map[string]bool
	subs     []string
	unsubs   []string
	target   Target
}

func newFakeSource(events ...string) *fakeSource {
	s := &fakeSource{provides: make(map[string]bool)}
	for _, e := range events {
		s.provides[e] = true
	}
	return s
}

func (s *fakeSource) Subscribe(event string) error {
	if !s.provides[event] {
		return ErrUnknownEvent
	}
	s.subs = append(s.subs, event)
	return nil
}

func (s *fakeSource) Unsubscribe(event string) error {
	s.unsubs = append(s.unsubs, event)
	return nil
}

func (s *fakeSource) Attach(target Target) {
	s.target = target
}

type targetFunc func(ctx context.Context, event string, args ...any) error

func (f targetFunc) TriggerEvent(ctx context.Context, event string, args ...any) error {
	return f(ctx, event, args...)
}

func TestNop(t *testing.T) {
	var s Source = Nop{}
	assert.NoError(t, s.Subscribe("ANY"))
	assert.NoError(t, s.Unsubscribe("ANY"))
}

func TestFunc(t *testing.T) {
	assert.NoError(t, Func{}.Subscribe("E"))
	assert.NoError(t, Func{}.Unsubscribe("E"))

	var got []string
	f := Func{
		OnSubscribe: func(event string) error {
			got = append(got, "+"+event)
			return nil
		},
		OnUnsubscribe: func(event string) error {
			got = append(got, "-"+event)
			return errors.New("gone")
		},
	}

	assert.NoError(t, f.Subscribe("E"))
	assert.EqualError(t, f.Unsubscribe("E"), "gone")
	assert.Equal(t, []string{"+E", "-E"}, got)
}

func TestMulti_Subscribe(t *testing.T) {
	keys := newFakeSource("KEY")
	mouse := newFakeSource("MOUSE", "KEY")
	m := NewMulti(keys, nil, mouse)

	require.NoError(t, m.Subscribe("KEY"))
	require.NoError(t, m.Subscribe("MOUSE"))

	assert.Equal(t, []string{"KEY"}, keys.subs)
	assert.Equal(t, []string{"KEY", "MOUSE"}, mouse.subs)

	require.NoError(t, m.Unsubscribe("MOUSE"))
	assert.Empty(t, keys.unsubs, "only accepting children are unsubscribed")
	assert.Equal(t, []string{"MOUSE"}, mouse.unsubs)

	require.NoError(t, m.Unsubscribe("MOUSE"))
	assert.Equal(t, []string{"MOUSE"}, mouse.unsubs)
}

func TestMulti_SubscribeRefusedByAll(t *testing.T) {
	m := NewMulti(newFakeSource("KEY"), newFakeSource("MOUSE"))

	err := m.Subscribe("CUSTOM")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Len(t, multierr.Errors(err), 2)

	assert.ErrorIs(t, NewMulti().Subscribe("CUSTOM"), ErrUnknownEvent)
}

func TestMulti_Attach(t *testing.T) {
	a := newFakeSource()
	b := newFakeSource()
	m := NewMulti(a, Nop{}, b)

	var fired []string
	m.Attach(targetFunc(func(ctx context.Context, event string, args ...any) error {
		fired = append(fired, event)
		return nil
	}))

	require.NotNil(t, a.target)
	require.NotNil(t, b.target)
	require.NoError(t, a.target.TriggerEvent(context.Background(), "FROM_A"))
	require.NoError(t, b.target.TriggerEvent(context.Background(), "FROM_B"))
	assert.Equal(t, []string{"FROM_A", "FROM_B"}, fired)
}
