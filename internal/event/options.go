package event

import (
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/dshills/hookbus/internal/event/dispatch"
	"github.com/dshills/hookbus/internal/event/source"
)

// tracerName is the instrumentation scope used for dispatch spans.
const tracerName = "github.com/dshills/hookbus/internal/event"

// Option configures a Bus.
type Option func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	name          string
	faultIsolated bool
	source        source.Source
	sink          dispatch.ErrorSink
	logger        *zap.Logger
	tracer        trace.Tracer
	clock         clock.Clock
}

// defaultBusConfig returns sensible default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		faultIsolated: true,
		source:        source.Nop{},
		logger:        zap.NewNop(),
		tracer:        noop.NewTracerProvider().Tracer(tracerName),
		clock:         clock.New(),
	}
}

// WithName sets the bus name. An empty name keeps the generated one.
func WithName(name string) Option {
	return func(c *busConfig) {
		c.name = name
	}
}

// WithFaultIsolation selects the invocation strategy. true (the default)
// isolates handler failures; false lets them reach the TriggerEvent caller.
func WithFaultIsolation(enabled bool) Option {
	return func(c *busConfig) {
		c.faultIsolated = enabled
	}
}

// WithSource sets the native event source the bus binds identifiers to.
func WithSource(s source.Source) Option {
	return func(c *busConfig) {
		if s != nil {
			c.source = s
		}
	}
}

// WithErrorSink sets where isolated handler failures are reported.
// The default writes them to the bus logger.
func WithErrorSink(sink dispatch.ErrorSink) Option {
	return func(c *busConfig) {
		c.sink = sink
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *busConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *busConfig) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithClock sets the clock used to time handlers.
func WithClock(c clock.Clock) Option {
	return func(cfg *busConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}
