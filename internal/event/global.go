package event

import "sync"

// DefaultName is the name of the process-wide bus.
const DefaultName = "Global"

var (
	defaultBus  *Bus
	defaultOnce sync.Once
)

// Default returns the process-wide bus, creating it on first use.
// It is always fault-isolated and bound to no event source.
func Default() *Bus {
	defaultOnce.Do(func() {
		defaultBus = New(WithName(DefaultName), WithFaultIsolation(true))
	})
	return defaultBus
}
