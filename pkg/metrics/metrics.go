package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tools_api"

// Metrics contains all Prometheus metrics for tools-api.
type Metrics struct {
	// HTTP.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Vendor APIs.
	VendorAPIRequestsTotal *prometheus.CounterVec
	VendorAPIErrorsTotal   *prometheus.CounterVec

	// Exit nodes.
	ExitNodesCreated *prometheus.CounterVec
	ExitNodesDeleted *prometheus.CounterVec

	// Buckets.
	BucketsCreated prometheus.Counter
	BucketsDeleted prometheus.Counter

	// Credentials.
	CredentialsMinted prometheus.Counter

	// Workflows.
	WorkflowDispatchesTotal *prometheus.CounterVec
	WorkflowRunsFinished    *prometheus.CounterVec

	// Build info.
	BuildInfo *prometheus.GaugeVec
}

// New creates a new Metrics instance and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// HTTP.
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"method", "path"},
		),

		// Vendor APIs.
		VendorAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vendor_api_requests_total",
				Help:      "Total number of calls made to vendor APIs",
			},
			[]string{"vendor", "operation"},
		),
		VendorAPIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vendor_api_errors_total",
				Help:      "Total number of failed vendor API calls",
			},
			[]string{"vendor", "operation"},
		),

		// Exit nodes.
		ExitNodesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exit_nodes_created_total",
				Help:      "Total number of chisel exit nodes created",
			},
			[]string{"provider"},
		),
		ExitNodesDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exit_nodes_deleted_total",
				Help:      "Total number of chisel exit nodes deleted",
			},
			[]string{"provider"},
		),

		// Buckets.
		BucketsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buckets_created_total",
				Help:      "Total number of object storage buckets created",
			},
		),
		BucketsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buckets_deleted_total",
				Help:      "Total number of object storage buckets deleted",
			},
		),

		// Credentials.
		CredentialsMinted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aws_credentials_minted_total",
				Help:      "Total number of sub-account access keys minted",
			},
		),

		// Workflows.
		WorkflowDispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_dispatches_total",
				Help:      "Total number of workflow dispatches by response status code",
			},
			[]string{"workflow", "status_code"},
		),
		WorkflowRunsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_finished_total",
				Help:      "Total number of tracked workflow runs that reached a final state",
			},
			[]string{"workflow", "status"},
		),

		// Build info.
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "commit", "date"},
		),
	}

	return m
}

// SetBuildInfo sets the build info metric.
func (m *Metrics) SetBuildInfo(version, commit, date string) {
	m.BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordVendorCall records a vendor API call and, when err is non-nil, its failure.
func (m *Metrics) RecordVendorCall(vendor, operation string, err error) {
	m.VendorAPIRequestsTotal.WithLabelValues(vendor, operation).Inc()

	if err != nil {
		m.VendorAPIErrorsTotal.WithLabelValues(vendor, operation).Inc()
	}
}

// RecordExitNodesCreated adds n created exit nodes.
func (m *Metrics) RecordExitNodesCreated(provider string, n int) {
	m.ExitNodesCreated.WithLabelValues(provider).Add(float64(n))
}

// RecordExitNodesDeleted adds n deleted exit nodes.
func (m *Metrics) RecordExitNodesDeleted(provider string, n int) {
	m.ExitNodesDeleted.WithLabelValues(provider).Add(float64(n))
}

// RecordBucketsCreated adds n created buckets.
func (m *Metrics) RecordBucketsCreated(n int) {
	m.BucketsCreated.Add(float64(n))
}

// RecordBucketsDeleted adds n deleted buckets.
func (m *Metrics) RecordBucketsDeleted(n int) {
	m.BucketsDeleted.Add(float64(n))
}

// RecordCredentialsMinted increments the minted credentials counter.
func (m *Metrics) RecordCredentialsMinted() {
	m.CredentialsMinted.Inc()
}

// RecordWorkflowDispatch records a dispatch and the status code GitHub answered with.
func (m *Metrics) RecordWorkflowDispatch(workflow, statusCode string) {
	m.WorkflowDispatchesTotal.WithLabelValues(workflow, statusCode).Inc()
}

// RecordWorkflowRunFinished records a tracked run reaching a final state.
func (m *Metrics) RecordWorkflowRunFinished(workflow, status string) {
	m.WorkflowRunsFinished.WithLabelValues(workflow, status).Inc()
}
