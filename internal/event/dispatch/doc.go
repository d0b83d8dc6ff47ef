// Package dispatch provides the invocation strategies used by the event bus.
//
// A Strategy runs one handler for one event:
//
//   - Isolated recovers panics, reports errors and panics to an ErrorSink,
//     and never stops the dispatch pass.
//   - Direct runs the handler as-is; a returned error aborts the rest of the
//     pass and a panic unwinds through the trigger call.
//
// Both strategies share an Executor, which times handler execution against
// an injectable clock.
package dispatch
