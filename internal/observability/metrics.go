package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the process-wide collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	rentCalculations *prometheus.CounterVec
	indexImports     *prometheus.CounterVec
	invoices         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvj_job_runs_total",
			Help: "Background job runs by job name and status.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mvj_job_duration_seconds",
			Help:    "Background job duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"job"}),
		rentCalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvj_rent_calculations_total",
			Help: "Rent amount calculations by rent type and dry run flag.",
		}, []string{"rent_type", "dry_run"}),
		indexImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvj_index_import_rows_total",
			Help: "Imported index rows by source and result.",
		}, []string{"source", "result"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvj_invoices_created_total",
			Help: "Created invoices by type and origin.",
		}, []string{"type", "origin"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobRuns,
		m.jobDuration,
		m.rentCalculations,
		m.indexImports,
		m.invoices,
	)
	return m
}

func (m *Metrics) ObserveJob(job, status string, seconds float64) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(seconds)
}

func (m *Metrics) CountRentCalculation(rentType string, dryRun bool) {
	if m == nil {
		return
	}
	flag := "false"
	if dryRun {
		flag = "true"
	}
	m.rentCalculations.WithLabelValues(rentType, flag).Inc()
}

func (m *Metrics) CountIndexRows(source, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.indexImports.WithLabelValues(source, result).Add(float64(n))
}

func (m *Metrics) CountInvoice(invoiceType, origin string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(invoiceType, origin).Inc()
}
