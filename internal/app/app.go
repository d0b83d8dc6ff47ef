// Package app wires the configured bus, Lua script host and event sources
// together and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/config"
	"github.com/dshills/hookbus/internal/event"
	"github.com/dshills/hookbus/internal/event/source/terminal"
	"github.com/dshills/hookbus/internal/plugin"
	"github.com/dshills/hookbus/internal/plugin/api"
)

// Options configures the application.
type Options struct {
	// ConfigPath is an optional TOML or YAML configuration file.
	ConfigPath string

	// Config, when set, is used as is; ConfigPath and the environment
	// are not read.
	Config *config.Config

	// Scripts run after the configured host scripts.
	Scripts []string

	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer

	// Poller, when set, enables the terminal source reading from it
	// instead of opening a screen.
	Poller terminal.Poller

	// Registerer, when set, receives the bus metrics collector.
	Registerer prometheus.Registerer
}

// App is a running hookbus process: one bus bound to the script host and,
// optionally, the terminal.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Bus       *event.Bus
	Host      *plugin.Host
	Events    *api.EventModule
	Terminal  *terminal.Source
	Collector *event.Collector

	fx *fx.App
}

// New builds the application graph. Nothing runs until Start.
func New(opts Options) (*App, error) {
	a := &App{}
	a.fx = fx.New(
		Module(opts),
		fx.Populate(&a.Config, &a.Logger, &a.Bus, &a.Host, &a.Events, &a.Terminal, &a.Collector),
		fx.WithLogger(newFxLogger),
	)
	if err := a.fx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	return a, nil
}

// Start runs the host scripts. Scripts run on the calling goroutine, which
// then owns the Lua state: Trigger, Fire and Pump must be called from it.
func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

// Stop closes the host and releases the terminal and metrics.
func (a *App) Stop(ctx context.Context) error {
	return a.fx.Stop(ctx)
}

// Trigger dispatches an event on the bus explicitly.
func (a *App) Trigger(ctx context.Context, name string, args ...any) error {
	return a.Bus.TriggerEvent(ctx, name, args...)
}

// Fire raises a native host event: frames first, then the bus if bound.
func (a *App) Fire(ctx context.Context, name string, args ...any) error {
	return a.Host.Fire(ctx, name, args...)
}

// Pump delivers terminal input until the quit key, the end of input or
// ctx is done.
func (a *App) Pump(ctx context.Context) error {
	if a.Terminal == nil {
		return ErrNoTerminal
	}
	return a.Terminal.Pump(ctx)
}

// Stats returns the bus statistics.
func (a *App) Stats() event.Stats {
	return a.Bus.Stats()
}
