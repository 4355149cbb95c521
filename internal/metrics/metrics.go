// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edusphere"

var (
	// ReportsGenerated counts successful class reports by type and filter.
	ReportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_generated_total",
		Help:      "Class reports built, by record type and status filter.",
	}, []string{"type", "filter"})

	// Exports counts rendered export artifacts by format and outcome.
	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exports_total",
		Help:      "Export renders, by format and outcome.",
	}, []string{"format", "outcome"})

	// RecordSaves counts per-student attendance and grade writes.
	RecordSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_saves_total",
		Help:      "Per-student record upserts, by kind and outcome.",
	}, []string{"kind", "outcome"})

	ImageFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_fetch_failures_total",
		Help:      "Logo or signature fetches that were dropped from an export.",
	})

	// Assignments is refreshed by the worker's deadline sweep.
	Assignments = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "assignments",
		Help:      "Assignments per priority class at the last sweep.",
	}, []string{"priority"})

	ExportJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "export_jobs_total",
		Help:      "Background export jobs, by final status.",
	}, []string{"status"})
)

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
