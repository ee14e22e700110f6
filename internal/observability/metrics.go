package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "radiance_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for one batch run.
// The batch exits after a single pass, so metrics live in their own registry and
// are exported once through WriteTextfile.
type Metrics struct {
	Registry *prometheus.Registry

	SamplesProcessed prometheus.Counter
	SamplesLabeled   prometheus.Counter
	SamplesSkipped   prometheus.Counter
	LayersProcessed  prometheus.Counter
	LayersSanitized  prometheus.Counter
	NonFiniteValues  prometheus.Counter
	ZeroVariance     prometheus.Counter
	TransformErrors  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	SampleProcessingDuration prometheus.Histogram
	RunDuration              prometheus.Gauge
	LastSuccess              prometheus.Gauge
	LastRunFailed            prometheus.Gauge
	OutputSamples            *prometheus.GaugeVec // labels: array={features,labels}
}

// NewMetrics creates all run metrics and registers them with a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_processed_total",
			Help:      "Sample directories turned into feature tensors.",
		}),
		SamplesLabeled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_labeled_total",
			Help:      "Samples with a complete set of label files.",
		}),
		SamplesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_skipped_total",
			Help:      "Unlabeled samples dropped from the output stacks.",
		}),
		LayersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layers_processed_total",
			Help:      "Radiance layers normalized.",
		}),
		LayersSanitized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layers_sanitized_total",
			Help:      "Radiance layers that contained NaN or Inf values.",
		}),
		NonFiniteValues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonfinite_values_total",
			Help:      "NaN or Inf values seen in radiance layers.",
		}),
		ZeroVariance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zero_variance_layers_total",
			Help:      "Constant radiance layers filled with zeros.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Samples that failed to read or transform.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the batch is running, 0 otherwise.",
		}),
		SampleProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_processing_duration_seconds",
			Help:      "Duration of reading and transforming one sample directory.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		LastRunFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed",
			Help:      "1 when the last run aborted with an error.",
		}),
		OutputSamples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_samples",
			Help:      "Leading dimension of each saved array.",
		}, []string{"array"}),
	}

	m.Registry.MustRegister(
		m.SamplesProcessed,
		m.SamplesLabeled,
		m.SamplesSkipped,
		m.LayersProcessed,
		m.LayersSanitized,
		m.NonFiniteValues,
		m.ZeroVariance,
		m.TransformErrors,
		m.PipelineRunning,
		m.SampleProcessingDuration,
		m.RunDuration,
		m.LastSuccess,
		m.LastRunFailed,
		m.OutputSamples,
	)

	return m
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
