// Package metrics provides custom Prometheus metrics for the capture and classification pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains the metrics for slice ingestion, window dispatch and classification.
// All methods are safe to call on a nil receiver so components can run without metrics.
type PipelineMetrics struct {
	SlicesIngested     prometheus.Counter
	WindowsDispatched  prometheus.Counter
	WindowsClassified  *prometheus.CounterVec // status
	WindowsDropped     *prometheus.CounterVec // policy
	ClassifyDuration   prometheus.Histogram
	SnapshotDuration   prometheus.Histogram
	QueueDepth         prometheus.Gauge
	WindowState        prometheus.Gauge
	CaptureOverruns    prometheus.Counter
	OverrunBytes       prometheus.Counter
	AudioLevel         prometheus.Gauge
	ClippedSlices      prometheus.Counter
	ThresholdCrossings *prometheus.CounterVec // label
	registry           *prometheus.Registry
}

// NewPipelineMetrics creates and registers the pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.SlicesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "slices_ingested_total",
		Help:      "Total number of capture slices appended to the sliding window",
	})

	m.WindowsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "windows_dispatched_total",
		Help:      "Total number of windows selected for classification",
	})

	m.WindowsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "windows_classified_total",
		Help:      "Total number of classifier invocations by outcome",
	}, []string{"status"})

	m.WindowsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "windows_dropped_total",
		Help:      "Total number of windows discarded because the dispatch queue was full",
	}, []string{"policy"})

	m.ClassifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "classify_duration_seconds",
		Help:      "Time spent in the classifier per window",
		Buckets:   prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})

	m.SnapshotDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "window_snapshot_duration_seconds",
		Help:      "Time spent copying the window for asynchronous classification",
		Buckets:   prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount10),
	})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Number of windows waiting for a classification worker",
	})

	m.WindowState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "window_state",
		Help:      "Sliding window state (0 warming, 1 ready, 2 classifying)",
	})

	m.CaptureOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "capture_overruns_total",
		Help:      "Total number of device callbacks dropped because the capture buffer was full",
	})

	m.OverrunBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "capture_overrun_bytes_total",
		Help:      "Total number of captured bytes dropped on overrun",
	})

	m.AudioLevel = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "audio_level_dbfs",
		Help:      "RMS level of the most recent slice in dBFS",
	})

	m.ClippedSlices = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "audio_clipped_slices_total",
		Help:      "Total number of slices containing full-scale samples",
	})

	m.ThresholdCrossings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "threshold_crossings_total",
		Help:      "Total number of results at or above the alert threshold by label",
	}, []string{"label"})
}

// RecordIngest counts one appended slice
func (m *PipelineMetrics) RecordIngest() {
	if m == nil {
		return
	}
	m.SlicesIngested.Inc()
}

// RecordDispatch counts one window selected by the cadence
func (m *PipelineMetrics) RecordDispatch() {
	if m == nil {
		return
	}
	m.WindowsDispatched.Inc()
}

// RecordClassification records the outcome and duration of one classifier call
func (m *PipelineMetrics) RecordClassification(seconds float64, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.WindowsClassified.WithLabelValues(status).Inc()
	m.ClassifyDuration.Observe(seconds)
}

// RecordDrop counts a window discarded under the given policy
func (m *PipelineMetrics) RecordDrop(policy string) {
	if m == nil {
		return
	}
	m.WindowsDropped.WithLabelValues(policy).Inc()
}

// RecordSnapshot records the time taken to copy a window
func (m *PipelineMetrics) RecordSnapshot(seconds float64) {
	if m == nil {
		return
	}
	m.SnapshotDuration.Observe(seconds)
}

// SetQueueDepth sets the number of queued windows
func (m *PipelineMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// SetWindowState sets the numeric window state
func (m *PipelineMetrics) SetWindowState(state int) {
	if m == nil {
		return
	}
	m.WindowState.Set(float64(state))
}

// RecordOverrun counts one dropped device callback
func (m *PipelineMetrics) RecordOverrun(bytes int) {
	if m == nil {
		return
	}
	m.CaptureOverruns.Inc()
	m.OverrunBytes.Add(float64(bytes))
}

// RecordLevel records the level of one slice
func (m *PipelineMetrics) RecordLevel(dbfs float64, clipped bool) {
	if m == nil {
		return
	}
	m.AudioLevel.Set(dbfs)
	if clipped {
		m.ClippedSlices.Inc()
	}
}

// RecordThresholdCrossing counts one result at or above threshold
func (m *PipelineMetrics) RecordThresholdCrossing(label string) {
	if m == nil {
		return
	}
	m.ThresholdCrossings.WithLabelValues(label).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.SlicesIngested.Describe(ch)
	m.WindowsDispatched.Describe(ch)
	m.WindowsClassified.Describe(ch)
	m.WindowsDropped.Describe(ch)
	m.ClassifyDuration.Describe(ch)
	m.SnapshotDuration.Describe(ch)
	m.QueueDepth.Describe(ch)
	m.WindowState.Describe(ch)
	m.CaptureOverruns.Describe(ch)
	m.OverrunBytes.Describe(ch)
	m.AudioLevel.Describe(ch)
	m.ClippedSlices.Describe(ch)
	m.ThresholdCrossings.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.SlicesIngested.Collect(ch)
	m.WindowsDispatched.Collect(ch)
	m.WindowsClassified.Collect(ch)
	m.WindowsDropped.Collect(ch)
	m.ClassifyDuration.Collect(ch)
	m.SnapshotDuration.Collect(ch)
	m.QueueDepth.Collect(ch)
	m.WindowState.Collect(ch)
	m.CaptureOverruns.Collect(ch)
	m.OverrunBytes.Collect(ch)
	m.AudioLevel.Collect(ch)
	m.ClippedSlices.Collect(ch)
	m.ThresholdCrossings.Collect(ch)
}
