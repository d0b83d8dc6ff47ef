package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/gdamore/tcell/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/hookbus/internal/config"
	"github.com/dshills/hookbus/internal/event"
	"github.com/dshills/hookbus/internal/event/source"
	"github.com/dshills/hookbus/internal/event/source/terminal"
	"github.com/dshills/hookbus/internal/logging"
	"github.com/dshills/hookbus/internal/plugin"
	"github.com/dshills/hookbus/internal/plugin/api"
)

const tracerName = "github.com/dshills/hookbus/internal/event"

// Module returns the fx module providing every application component.
func Module(opts Options) fx.Option {
	return fx.Module("hookbus",
		fx.Supply(opts),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideHost,
			provideTerminal,
			provideBus,
			provideEventModule,
			provideCollector,
		),
		fx.Invoke(installEventModule, registerLifecycle),
	)
}

func provideConfig(opts Options) (*config.Config, error) {
	if opts.Config != nil {
		if err := opts.Config.Validate(); err != nil {
			return nil, err
		}
		return opts.Config, nil
	}

	var loadOpts []config.Option
	if opts.ConfigPath != "" {
		loadOpts = append(loadOpts, config.WithFile(opts.ConfigPath))
	}
	return config.Load(loadOpts...)
}

func provideLogger(opts Options, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: opts.LogOutput,
	})
}

func provideHost(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*plugin.Host, error) {
	host, err := plugin.NewHost(
		plugin.WithLogger(logging.Component(logger, "host")),
		plugin.WithEvents(cfg.Host.Events...),
		plugin.WithStrict(cfg.Host.Strict),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return host.Close()
		},
	})
	return host, nil
}

// provideTerminal returns nil when the terminal source is disabled.
func provideTerminal(lc fx.Lifecycle, opts Options, cfg *config.Config, logger *zap.Logger) (*terminal.Source, error) {
	poller := opts.Poller
	if poller == nil {
		if !cfg.Terminal.Enabled {
			return nil, nil
		}
		screen, err := terminal.OpenScreen()
		if err != nil {
			return nil, fmt.Errorf("open terminal: %w", err)
		}
		lc.Append(fx.StopHook(screen.Fini))
		poller = screen
	}

	return terminal.New(poller,
		terminal.WithLogger(logging.Component(logger, "terminal")),
		terminal.WithQuitKey(tcell.KeyCtrlC),
	), nil
}

func provideBus(cfg *config.Config, logger *zap.Logger, host *plugin.Host, term *terminal.Source) *event.Bus {
	var src source.Source = host
	if term != nil {
		src = source.NewMulti(host, term)
	}

	return event.New(
		event.WithName(cfg.Bus.Name),
		event.WithFaultIsolation(cfg.Bus.FaultIsolated),
		event.WithSource(src),
		event.WithLogger(logging.Component(logger, "event")),
		event.WithTracer(otel.Tracer(tracerName)),
	)
}

func provideEventModule(bus *event.Bus, logger *zap.Logger) *api.EventModule {
	return api.NewEventModule(bus, api.WithEventLogger(logging.Component(logger, "events")))
}

func provideCollector(lc fx.Lifecycle, opts Options, cfg *config.Config, bus *event.Bus) (*event.Collector, error) {
	c := event.NewCollector(cfg.Metrics.Namespace, bus)
	if opts.Registerer == nil {
		return c, nil
	}
	if err := opts.Registerer.Register(c); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	lc.Append(fx.StopHook(func() {
		opts.Registerer.Unregister(c)
	}))
	return c, nil
}

// installEventModule exposes the bus to Lua. The module needs the bus and
// the bus needs the host as its source, so it is installed after both exist.
func installEventModule(host *plugin.Host, mod *api.EventModule) error {
	return host.Install(mod)
}

type lifecycleParams struct {
	fx.In

	LC     fx.Lifecycle
	Opts   Options
	Config *config.Config
	Logger *zap.Logger
	Host   *plugin.Host
	Bus    *event.Bus
}

func registerLifecycle(p lifecycleParams) {
	scripts := append(slices.Clone(p.Config.Host.Scripts), p.Opts.Scripts...)

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for _, path := range scripts {
				if err := p.Host.RunFile(path); err != nil {
					return fmt.Errorf("run script %s: %w", path, err)
				}
				p.Logger.Debug("script loaded", zap.String("path", path))
			}
			p.Logger.Info("hookbus started",
				zap.String("bus", p.Bus.Name()),
				zap.Bool("fault_isolated", p.Bus.FaultIsolated()),
				zap.Strings("config", p.Config.Sources),
				zap.Int("scripts", len(scripts)))
			return nil
		},
		OnStop: func(context.Context) error {
			stats := p.Bus.Stats()
			p.Logger.Info("hookbus stopped",
				zap.Uint64("triggers", stats.Triggers),
				zap.Uint64("handlers_executed", stats.HandlersExecuted))
			_ = p.Logger.Sync()
			return nil
		},
	})
}

func newFxLogger(logger *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: logging.Component(logger, "fx")}
	l.UseLogLevel(zapcore.DebugLevel)
	return l
}
