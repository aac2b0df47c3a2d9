// Package telemetry exposes counters for job outcomes and pipeline
// durations via prometheus/client_golang, plus OpenTelemetry tracing
// helpers for spans across pipeline stages. Both are best-effort — a
// metrics emission failure never propagates to the caller.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Metrics bundles the counters and histograms the pipeline and control
// plane emit. A single instance is shared per process.
type Metrics struct {
	JobsTotal          *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	UploadBytes        prometheus.Histogram
	LockoutTriggers    prometheus.Counter
	ModelIntegrityFail prometheus.Counter
}

// NewMetrics constructs and registers all series against reg. Pass
// prometheus.NewRegistry() in tests to avoid the global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clarity_jobs_total",
			Help: "Count of processing jobs by terminal status.",
		}, []string{"status"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clarity_pipeline_duration_seconds",
			Help:    "Wall-clock duration of a full pipeline invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		UploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clarity_upload_bytes",
			Help:    "Size in bytes of accepted uploads.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		LockoutTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clarity_lockout_triggers_total",
			Help: "Count of auth lockout triggers reported by the collaborator.",
		}),
		ModelIntegrityFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clarity_model_integrity_failures_total",
			Help: "Count of pretrained-weight integrity verification failures.",
		}),
	}
	reg.MustRegister(m.JobsTotal, m.PipelineDuration, m.UploadBytes, m.LockoutTriggers, m.ModelIntegrityFail)
	return m
}

// TracerName is the process-wide tracer name used for pipeline spans.
const TracerName = "github.com/clarity-digital-twin/clarity-backend"

// StartSpan is a small convenience wrapper so call sites don't repeat
// otel.Tracer(TracerName) everywhere.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name)
}
