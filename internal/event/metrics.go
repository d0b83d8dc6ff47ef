package event

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports bus statistics to Prometheus. Values are read from
// Bus.Stats at scrape time, so registering a collector costs nothing on
// the dispatch path.
type Collector struct {
	mu    sync.Mutex
	buses []*Bus

	triggers    *prometheus.Desc
	executed    *prometheus.Desc
	errors      *prometheus.Desc
	panics      *prometheus.Desc
	compactions *prometheus.Desc
	bindFails   *prometheus.Desc
	bound       *prometheus.Desc
	handlers    *prometheus.Desc
}

// NewCollector creates a collector for the given buses under namespace.
func NewCollector(namespace string, buses ...*Bus) *Collector {
	labels := []string{"bus"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "event", name), help, labels, nil)
	}

	c := &Collector{
		triggers:    desc("triggers_total", "Number of triggers that found a handler list."),
		executed:    desc("handlers_executed_total", "Number of handler invocations."),
		errors:      desc("handler_errors_total", "Number of handlers that returned an error."),
		panics:      desc("handler_panics_total", "Number of handlers that panicked."),
		compactions: desc("compactions_total", "Number of handler lists rebuilt after deactivation."),
		bindFails:   desc("bind_failures_total", "Number of identifiers the event source refused."),
		bound:       desc("bound_events", "Identifiers currently bound to the event source."),
		handlers:    desc("handlers", "Stored handler entries."),
	}
	for _, b := range buses {
		c.Add(b)
	}
	return c
}

// Add starts exporting b.
func (c *Collector) Add(b *Bus) {
	if b == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buses = append(c.buses, b)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.triggers
	ch <- c.executed
	ch <- c.errors
	ch <- c.panics
	ch <- c.compactions
	ch <- c.bindFails
	ch <- c.bound
	ch <- c.handlers
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	buses := append([]*Bus(nil), c.buses...)
	c.mu.Unlock()

	for _, b := range buses {
		s := b.Stats()
		name := b.Name()
		ch <- prometheus.MustNewConstMetric(c.triggers, prometheus.CounterValue, float64(s.Triggers), name)
		ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue, float64(s.HandlersExecuted), name)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.HandlerErrors), name)
		ch <- prometheus.MustNewConstMetric(c.panics, prometheus.CounterValue, float64(s.HandlerPanics), name)
		ch <- prometheus.MustNewConstMetric(c.compactions, prometheus.CounterValue, float64(s.Compactions), name)
		ch <- prometheus.MustNewConstMetric(c.bindFails, prometheus.CounterValue, float64(s.BindFailures), name)
		ch <- prometheus.MustNewConstMetric(c.bound, prometheus.GaugeValue, float64(s.BoundEvents), name)
		ch <- prometheus.MustNewConstMetric(c.handlers, prometheus.GaugeValue, float64(s.Handlers), name)
	}
}
