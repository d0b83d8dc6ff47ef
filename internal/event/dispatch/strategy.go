package dispatch

import "context"

// Isolated runs each handler behind panic recovery and reports every
// failure to an ErrorSink. It never aborts a dispatch pass.
type Isolated struct {
	executor *Executor
	sink     ErrorSink
}

// NewIsolated creates a fault-isolated strategy.
// A nil sink discards failures.
func NewIsolated(executor *Executor, sink ErrorSink) *Isolated {
	if executor == nil {
		executor = NewExecutor()
	}
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Isolated{executor: executor, sink: sink}
}

// Invoke implements Strategy.
func (s *Isolated) Invoke(ctx context.Context, handler Handler, event string, args []any) (Result, error) {
	result := s.executor.Execute(ctx, handler, event, args)
	if !result.IsSuccess() {
		s.report(Failure{
			Event:    event,
			Err:      result.Error,
			Panicked: result.Panicked,
			Stack:    result.PanicStack,
			Duration: result.Duration,
		})
	}
	return result, nil
}

// Name implements Strategy.
func (s *Isolated) Name() string {
	return "isolated"
}

// report forwards to the sink, shielding the pass from a faulty sink.
func (s *Isolated) report(f Failure) {
	defer func() {
		_ = recover()
	}()
	s.sink.ReportFailure(f)
}

// Direct runs handlers with no recovery. A returned error is handed back
// to the dispatcher and a panic unwinds through the trigger call.
type Direct struct {
	executor *Executor
}

// NewDirect creates a direct strategy.
func NewDirect(executor *Executor) *Direct {
	if executor == nil {
		executor = NewExecutor()
	}
	return &Direct{executor: executor}
}

// Invoke implements Strategy.
func (s *Direct) Invoke(ctx context.Context, handler Handler, event string, args []any) (Result, error) {
	result := s.executor.ExecuteUnguarded(ctx, handler, event, args)
	return result, result.Error
}

// Name implements Strategy.
func (s *Direct) Name() string {
	return "direct"
}
