package dispatch

import (
	"time"

	"go.uber.org/zap"
)

// Failure describes a handler that returned an error or panicked
// under the isolated strategy.
type Failure struct {
	Event    string
	Err      error
	Panicked bool
	Stack    []byte
	Duration time.Duration
}

// ErrorSink receives handler failures captured by the isolated strategy.
type ErrorSink interface {
	ReportFailure(f Failure)
}

// SinkFunc adapts a function to the ErrorSink interface.
type SinkFunc func(f Failure)

// ReportFailure implements ErrorSink.
func (fn SinkFunc) ReportFailure(f Failure) {
	fn(f)
}

// DiscardSink drops every failure.
type DiscardSink struct{}

// ReportFailure implements ErrorSink.
func (DiscardSink) ReportFailure(Failure) {}

// LogSink writes failures to a zap logger at error level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// ReportFailure implements ErrorSink.
func (s *LogSink) ReportFailure(f Failure) {
	fields := []zap.Field{
		zap.String("event", f.Event),
		zap.Error(f.Err),
		zap.Duration("duration", f.Duration),
	}
	if f.Panicked {
		fields = append(fields,
			zap.Bool("panic", true),
			zap.ByteString("stack", f.Stack),
		)
	}
	s.logger.Error("event handler failed", fields...)
}
