// Package main is the entry point for hookbus: it loads Lua scripts into
// the script host, applies triggers and optionally pumps terminal input.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/hookbus/internal/app"
	"github.com/dshills/hookbus/internal/config"
	"github.com/dshills/hookbus/internal/event"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// action is one -trigger or -fire flag.
type action struct {
	fire bool
	name string
	args []any
}

type cliOptions struct {
	configPath  string
	logLevel    string
	scripts     []string
	actions     []action
	tty         bool
	stats       bool
	showVersion bool
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "hookbus %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	application, err := app.New(app.Options{
		Config:    cfg,
		Scripts:   opts.scripts,
		LogOutput: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: failed to start: %v\n", err)
		return 1
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
		}
	}()

	code := 0
	for _, a := range opts.actions {
		var err error
		if a.fire {
			err = application.Fire(ctx, a.name, a.args...)
		} else {
			err = application.Trigger(ctx, a.name, a.args...)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", a.name, err)
			code = 1
		}
	}

	if opts.tty {
		if err := application.Pump(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "Error: terminal: %v\n", err)
			code = 1
		}
	}

	if opts.stats {
		out, err := statsJSON(application.Bus.Name(), application.Stats())
		if err != nil {
			fmt.Fprintf(stderr, "Error: stats: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
	}

	return code
}

func parseFlags(args []string, output io.Writer) (*cliOptions, error) {
	opts := &cliOptions{}
	fs := flag.NewFlagSet("hookbus", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file (TOML or YAML)")
	fs.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	fs.Func("script", "Lua script to run after configured scripts (repeatable)", func(s string) error {
		opts.scripts = append(opts.scripts, s)
		return nil
	})
	fs.Func("trigger", "Trigger NAME[:json-array] on the bus (repeatable)", func(s string) error {
		a, err := parseAction(s)
		if err != nil {
			return err
		}
		opts.actions = append(opts.actions, a)
		return nil
	})
	fs.Func("fire", "Fire native host event NAME[:json-array] (repeatable)", func(s string) error {
		a, err := parseAction(s)
		if err != nil {
			return err
		}
		a.fire = true
		opts.actions = append(opts.actions, a)
		return nil
	})
	fs.BoolVar(&opts.tty, "tty", false, "Deliver terminal input until Ctrl-C")
	fs.BoolVar(&opts.stats, "stats", false, "Print bus statistics as JSON on exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.showVersion, "v", false, "Show version information (shorthand)")

	fs.Usage = func() {
		fmt.Fprintf(output, "hookbus - Lua event bus host\n\n")
		fmt.Fprintf(output, "Usage: hookbus [options] [scripts...]\n\n")
		fmt.Fprintf(output, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(output, "\nExamples:\n")
		fmt.Fprintf(output, "  hookbus -trigger 'PLAYER_LOGIN:[\"arthas\"]' init.lua\n")
		fmt.Fprintf(output, "  hookbus -c hookbus.toml -tty\n")
		fmt.Fprintf(output, "  hookbus -script ui.lua -fire READY -stats\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Remaining arguments are scripts.
	opts.scripts = append(opts.scripts, fs.Args()...)
	return opts, nil
}

// parseAction parses NAME or NAME:[json, args]. The arguments start at the
// first ":[", so NAME may itself contain colons.
func parseAction(arg string) (action, error) {
	name, raw, hasArgs := arg, "", false
	if i := strings.Index(arg, ":["); i >= 0 {
		name, raw, hasArgs = arg[:i], arg[i+1:], true
	}
	if err := event.ValidateEvent(name); err != nil {
		return action{}, err
	}
	a := action{name: name}
	if !hasArgs {
		return a, nil
	}

	if !gjson.Valid(raw) {
		return action{}, fmt.Errorf("%s: arguments are not valid JSON", name)
	}
	for _, v := range gjson.Parse(raw).Array() {
		a.args = append(a.args, v.Value())
	}
	return a, nil
}

func loadConfig(opts *cliOptions) (*config.Config, error) {
	var loadOpts []config.Option
	if opts.configPath != "" {
		loadOpts = append(loadOpts, config.WithFile(opts.configPath))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.tty {
		cfg.Terminal.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// statsJSON renders bus statistics as a JSON object.
func statsJSON(bus string, s event.Stats) (string, error) {
	fields := []struct {
		path  string
		value any
	}{
		{"bus", bus},
		{"triggers", s.Triggers},
		{"handlers.executed", s.HandlersExecuted},
		{"handlers.errors", s.HandlerErrors},
		{"handlers.panics", s.HandlerPanics},
		{"handlers.stored", s.Handlers},
		{"compactions", s.Compactions},
		{"binding.bound", s.BoundEvents},
		{"binding.failures", s.BindFailures},
	}

	out := "{}"
	for _, f := range fields {
		var err error
		if out, err = sjson.Set(out, f.path, f.value); err != nil {
			return "", fmt.Errorf("set %s: %w", f.path, err)
		}
	}
	return out, nil
}
