// Package metrics defines the minimal instrumentation seam the pipeline
// emits into. Backends live in subpackages; the core depends only on
// Backend so no vendor-specific code leaks into the ETL logic.
package metrics

// Labels are free-form metric dimensions (step, status, kind, ...).
type Labels map[string]string

// Backend receives counters and histogram samples from the pipeline.
//
// Implementations must be safe for concurrent use. Flush/Close semantics
// are backend-specific; Noop ignores everything.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits any buffered metrics.
	Flush() error

	// Close stops background work and performs one final Flush.
	Close() error
}

// Metric names emitted by the pipeline.
const (
	MetricStepTotal           = "etl_step_total"
	MetricRecordsTotal        = "etl_records_total"
	MetricBatchesTotal        = "etl_batches_total"
	MetricStepDurationSeconds = "etl_step_duration_seconds"
)

// Noop discards all metrics. The zero value is ready to use.
type Noop struct{}

func (Noop) IncCounter(string, float64, Labels)       {}
func (Noop) ObserveHistogram(string, float64, Labels) {}
func (Noop) Flush() error                             { return nil }
func (Noop) Close() error                             { return nil }

// OrNoop returns b, or a Noop backend when b is nil, so callers never have
// to nil-check before emitting.
func OrNoop(b Backend) Backend {
	if b == nil {
		return Noop{}
	}
	return b
}
