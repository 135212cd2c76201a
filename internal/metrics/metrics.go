package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "s3audit"

// Metrics collects counters for one run. A nil *Metrics is valid and records
// nothing, so callers never need to guard.
type Metrics struct {
	Registry *prometheus.Registry

	apiCalls          *prometheus.CounterVec
	buckets           *prometheus.CounterVec
	objectsDownloaded prometheus.Counter
	objectsSkipped    prometheus.Counter
	bytesDownloaded   prometheus.Counter
	downloadFailures  prometheus.Counter
	cleanupFailures   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "api_calls_total",
			Help:      "Storage API calls partitioned by operation, identity and outcome",
		}, []string{"op", "identity", "outcome"}),
		buckets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "buckets_total",
			Help:      "Buckets processed partitioned by report status",
		}, []string{"status"}),
		objectsDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dump",
			Name:      "objects_downloaded_total",
			Help:      "Objects written to disk",
		}),
		objectsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dump",
			Name:      "objects_skipped_total",
			Help:      "Objects skipped because an identical-size local copy exists",
		}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dump",
			Name:      "bytes_downloaded_total",
			Help:      "Bytes written to disk",
		}),
		downloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dump",
			Name:      "download_failures_total",
			Help:      "Objects that could not be downloaded",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "write_probe_cleanup_failures_total",
			Help:      "Write-probe objects that could not be deleted afterwards",
		}),
	}
	m.Registry.MustRegister(m.apiCalls, m.buckets, m.objectsDownloaded, m.objectsSkipped,
		m.bytesDownloaded, m.downloadFailures, m.cleanupFailures)
	return m
}

func (m *Metrics) ObserveCall(op, identity, outcome string) {
	if m == nil {
		return
	}
	m.apiCalls.WithLabelValues(op, identity, outcome).Inc()
}

func (m *Metrics) ObserveBucket(status string) {
	if m == nil {
		return
	}
	m.buckets.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveDownload(bytes int64) {
	if m == nil {
		return
	}
	m.objectsDownloaded.Inc()
	m.bytesDownloaded.Add(float64(bytes))
}

func (m *Metrics) ObserveSkip() {
	if m == nil {
		return
	}
	m.objectsSkipped.Inc()
}

func (m *Metrics) ObserveDownloadFailure() {
	if m == nil {
		return
	}
	m.downloadFailures.Inc()
}

func (m *Metrics) ObserveCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}

// WriteTextfile writes the registry in text exposition format, suitable for
// the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
