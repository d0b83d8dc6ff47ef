// Package terminal exposes terminal input as an event source.
//
// Events are read from a tcell screen and delivered to the attached bus
// under the identifiers KEY, MOUSE, RESIZE, PASTE and FOCUS. Only
// identifiers the bus has subscribed are delivered.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/event/source"
)

// Event identifiers produced by the terminal source.
const (
	EventKey    = "KEY"
	EventMouse  = "MOUSE"
	EventResize = "RESIZE"
	EventPaste  = "PASTE"
	EventFocus  = "FOCUS"
)

// ErrNotAttached is returned by Pump when no bus is attached.
var ErrNotAttached = errors.New("terminal source not attached")

// Poller is the part of tcell.Screen the source reads from.
// PollEvent returns nil once the screen has been finalized.
type Poller interface {
	PollEvent() tcell.Event
}

// Source delivers terminal input to a bus.
type Source struct {
	poller  Poller
	logger  *zap.Logger
	quit    tcell.Key
	hasQuit bool

	mu         sync.Mutex
	target     source.Target
	subscribed map[string]bool
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQuitKey makes Pump return when key is read. The key is not delivered.
func WithQuitKey(key tcell.Key) Option {
	return func(s *Source) {
		s.quit = key
		s.hasQuit = true
	}
}

// New creates a source reading from poller.
func New(poller Poller, opts ...Option) *Source {
	s := &Source{
		poller:     poller,
		logger:     zap.NewNop(),
		subscribed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenScreen creates and initializes a tcell screen with mouse, paste and
// focus reporting enabled. The caller must call Fini.
func OpenScreen() (tcell.Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init screen: %w", err)
	}

	screen.EnableMouse()
	screen.EnablePaste()
	screen.EnableFocus()
	return screen, nil
}

// Provides reports whether event is produced by the terminal source.
func Provides(event string) bool {
	switch event {
	case EventKey, EventMouse, EventResize, EventPaste, EventFocus:
		return true
	}
	return false
}

// Subscribe implements source.Source.
func (s *Source) Subscribe(event string) error {
	if !Provides(event) {
		return fmt.Errorf("%w: %s", source.ErrUnknownEvent, event)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[event] = true
	return nil
}

// Unsubscribe implements source.Source.
func (s *Source) Unsubscribe(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, event)
	return nil
}

// Attach implements source.Attacher.
func (s *Source) Attach(target source.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
}

// Subscribed reports whether event is currently subscribed.
func (s *Source) Subscribed(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed[event]
}

// Pump reads events until the poller is exhausted, the quit key is read
// or ctx is done.
// PollEvent blocks, so cancelling ctx takes effect after the next event;
// finalize the screen to stop a blocked Pump.
func (s *Source) Pump(ctx context.Context) error {
	s.mu.Lock()
	attached := s.target != nil
	s.mu.Unlock()
	if !attached {
		return ErrNotAttached
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev := s.poller.PollEvent()
		if ev == nil {
			return nil
		}
		if k, ok := ev.(*tcell.EventKey); ok && s.hasQuit && k.Key() == s.quit {
			s.logger.Debug("terminal quit key read")
			return nil
		}
		if err := s.Deliver(ctx, ev); err != nil {
			s.logger.Debug("terminal event handler failed", zap.Error(err))
		}
	}
}

// Deliver triggers the bus for ev if its identifier is subscribed.
// Unrecognized tcell events are ignored.
func (s *Source) Deliver(ctx context.Context, ev tcell.Event) error {
	name, args, ok := Convert(ev)
	if !ok {
		return nil
	}

	s.mu.Lock()
	target := s.target
	subscribed := s.subscribed[name]
	s.mu.Unlock()

	if target == nil || !subscribed {
		return nil
	}
	return target.TriggerEvent(ctx, name, args...)
}

// Convert maps a tcell event to an identifier and its arguments:
//
//	KEY     name string, rune string, modifiers int
//	MOUSE   x int, y int, buttons int, modifiers int
//	RESIZE  width int, height int
//	PASTE   start bool
//	FOCUS   focused bool
func Convert(ev tcell.Event) (string, []any, bool) {
	switch e := ev.(type) {
	case *tcell.EventKey:
		r := ""
		if e.Key() == tcell.KeyRune {
			r = string(e.Rune())
		}
		return EventKey, []any{e.Name(), r, int(e.Modifiers())}, true

	case *tcell.EventMouse:
		x, y := e.Position()
		return EventMouse, []any{x, y, int(e.Buttons()), int(e.Modifiers())}, true

	case *tcell.EventResize:
		w, h := e.Size()
		return EventResize, []any{w, h}, true

	case *tcell.EventPaste:
		return EventPaste, []any{e.Start()}, true

	case *tcell.EventFocus:
		return EventFocus, []any{e.Focused}, true
	}
	return "", nil, false
}
