package aggregates

import (
	"strings"
	"time"
)

// Hooks receives one signal per store operation an aggregate runs.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
	// IncStale counts callbacks for a transfer or batch already past that step.
	IncStale(name string)
}

// MetricsSink is the part of observability.Metrics the hooks feed.
type MetricsSink interface {
	ObserveAggregateOperation(operation, status string, dur time.Duration)
	IncAggregateConflict(operation string)
	IncAggregateRetry(operation string)
	IncStaleCallback(operation string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) IncStale(string)                                {}

// MetricsHooks returns hooks reporting to sink, or no-op hooks when sink is nil.
func MetricsHooks(sink MetricsSink) Hooks {
	if sink == nil {
		return noopHooks{}
	}
	return metricsHooks{sink: sink}
}

type metricsHooks struct{ sink MetricsSink }

func (h metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.sink.ObserveAggregateOperation(strings.TrimSpace(name), strings.TrimSpace(status), dur)
}

func (h metricsHooks) IncConflict(name string) { h.sink.IncAggregateConflict(strings.TrimSpace(name)) }
func (h metricsHooks) IncRetry(name string)    { h.sink.IncAggregateRetry(strings.TrimSpace(name)) }
func (h metricsHooks) IncStale(name string)    { h.sink.IncStaleCallback(strings.TrimSpace(name)) }
