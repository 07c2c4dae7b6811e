package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for a crawl run.
type Metrics struct {
	Registry *prometheus.Registry

	NightsCrawled   prometheus.Counter
	ArchivesFound   prometheus.Counter
	ReportsParsed   prometheus.Counter
	ReportsSkipped  *prometheus.CounterVec // labels: reason={extract,mismatch,engineering}
	RecordsWritten  prometheus.Counter
	ArchiveDuration prometheus.Histogram

	// Catalog metrics.
	CatalogRequests    *prometheus.CounterVec // labels: outcome={success,error,not_found}
	CatalogCache       *prometheus.CounterVec // labels: result={hit,miss}
	CatalogAPIDuration prometheus.Histogram

	// Plot metrics.
	LogsRead    prometheus.Counter
	LogsSkipped prometheus.Counter
}

// NewMetrics creates all metrics and registers them with a private registry.
// The registry is written out as a node-exporter textfile at the end of a
// run rather than scraped, so the process-global default registry is not used.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		NightsCrawled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "nights_crawled_total",
			Help:      "Total instrument nights crawled.",
		}),
		ArchivesFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "archives_found_total",
			Help:      "Total pipeline tarballs matched on the archive mount.",
		}),
		ReportsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "reports_parsed_total",
			Help:      "Total summary reports parsed into observation records.",
		}),
		ReportsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "reports_skipped_total",
			Help:      "Archives skipped without producing a record, by reason.",
		}, []string{"reason"}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "records_written_total",
			Help:      "Total records written to per-night logs.",
		}),
		ArchiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nres_sn",
			Name:      "archive_processing_duration_seconds",
			Help:      "Duration of extracting, parsing and resolving one tarball.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CatalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "catalog_requests_total",
			Help:      "SIMBAD requests by outcome.",
		}, []string{"outcome"}),
		CatalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "catalog_cache_total",
			Help:      "Catalog cache lookups by result.",
		}, []string{"result"}),
		CatalogAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nres_sn",
			Name:      "catalog_api_duration_seconds",
			Help:      "SIMBAD TAP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LogsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "logs_read_total",
			Help:      "Per-night logs read for plotting.",
		}),
		LogsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nres_sn",
			Name:      "logs_skipped_total",
			Help:      "Per-night logs skipped because they were missing or empty.",
		}),
	}

	m.Registry.MustRegister(
		m.NightsCrawled,
		m.ArchivesFound,
		m.ReportsParsed,
		m.ReportsSkipped,
		m.RecordsWritten,
		m.ArchiveDuration,
		m.CatalogRequests,
		m.CatalogCache,
		m.CatalogAPIDuration,
		m.LogsRead,
		m.LogsSkipped,
	)

	return m
}

// WriteTextfile writes the current metric values in the Prometheus text
// format for the node-exporter textfile collector. A blank path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
