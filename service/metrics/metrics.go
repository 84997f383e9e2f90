package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal     *prometheus.CounterVec
	solanaRPCCallDuration   *prometheus.HistogramVec
	solanaRPCRetries        *prometheus.CounterVec
	solanaRPCEndpointSwitch *prometheus.CounterVec
	solanaRPCSignatures     *prometheus.HistogramVec

	// Transaction Processing Metrics
	transactionsParsedTotal  *prometheus.CounterVec
	transactionsSkippedTotal *prometheus.CounterVec
	tokenNameLookups         *prometheus.CounterVec

	// Task Engine Metrics
	engineTasksTotal    *prometheus.CounterVec
	engineTaskDuration  *prometheus.HistogramVec
	engineQueueDepth    prometheus.Gauge
	engineSessionSetups *prometheus.CounterVec
	evasionActionsTotal *prometheus.CounterVec

	// Scraping Metrics
	scrapePagesTotal *prometheus.CounterVec
	scrapeRowsTotal  *prometheus.CounterVec

	// Report Metrics
	reportsWrittenTotal   *prometheus.CounterVec
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCEndpointSwitch: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_endpoint_switches_total",
				Help: "Total number of RPC endpoint failovers",
			},
			[]string{"to"},
		),
		solanaRPCSignatures: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per GetSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		// Transaction Processing Metrics
		transactionsParsedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_parsed_total",
				Help: "Total number of transactions normalized by source",
			},
			[]string{"source", "status"},
		),
		transactionsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_skipped_total",
				Help: "Total number of transactions or rows skipped",
			},
			[]string{"source", "reason"},
		),
		tokenNameLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_name_lookups_total",
				Help: "Total number of token metadata lookups by result",
			},
			[]string{"result"},
		),

		// Task Engine Metrics
		engineTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_tasks_total",
				Help: "Total number of engine tasks by outcome",
			},
			[]string{"status"},
		),
		engineTaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_task_duration_seconds",
				Help:    "Duration of engine tasks in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"status"},
		),
		engineQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_queue_depth",
				Help: "Number of tasks waiting for the engine worker",
			},
		),
		engineSessionSetups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_session_setups_total",
				Help: "Total number of browser session setup attempts by strategy",
			},
			[]string{"strategy", "status"},
		),
		evasionActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evasion_actions_total",
				Help: "Total number of synthetic activity actions",
			},
			[]string{"action", "status"},
		),

		// Scraping Metrics
		scrapePagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_pages_total",
				Help: "Total number of explorer pages read",
			},
			[]string{"table"},
		),
		scrapeRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_rows_total",
				Help: "Total number of explorer rows by outcome",
			},
			[]string{"table", "outcome"},
		),

		// Report Metrics
		reportsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reports_written_total",
				Help: "Total number of report files written",
			},
			[]string{"kind", "status"},
		),
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordEndpointSwitch records a failover to another endpoint.
func (m *Metrics) RecordEndpointSwitch(to string) {
	m.solanaRPCEndpointSwitch.WithLabelValues(to).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignatures.WithLabelValues(endpoint).Observe(count)
}

// Transaction processing metric helpers

// RecordTransactionParsed records a normalization attempt.
func (m *Metrics) RecordTransactionParsed(source, status string) {
	m.transactionsParsedTotal.WithLabelValues(source, status).Inc()
}

// RecordTransactionsSkipped records transactions or rows skipped.
func (m *Metrics) RecordTransactionsSkipped(source, reason string, count int) {
	m.transactionsSkippedTotal.WithLabelValues(source, reason).Add(float64(count))
}

// RecordTokenNameLookup records a metadata lookup ("resolved", "unknown", "cached").
func (m *Metrics) RecordTokenNameLookup(result string) {
	m.tokenNameLookups.WithLabelValues(result).Inc()
}

// Task engine metric helpers

// RecordTask records a completed engine task.
func (m *Metrics) RecordTask(status string, duration float64) {
	m.engineTasksTotal.WithLabelValues(status).Inc()
	m.engineTaskDuration.WithLabelValues(status).Observe(duration)
}

// SetQueueDepth records the number of queued tasks.
func (m *Metrics) SetQueueDepth(depth int) {
	m.engineQueueDepth.Set(float64(depth))
}

// RecordSessionSetup records a session strategy attempt.
func (m *Metrics) RecordSessionSetup(strategy, status string) {
	m.engineSessionSetups.WithLabelValues(strategy, status).Inc()
}

// RecordEvasionAction records a synthetic activity action.
func (m *Metrics) RecordEvasionAction(action, status string) {
	m.evasionActionsTotal.WithLabelValues(action, status).Inc()
}

// Scraping metric helpers

// RecordScrapePage records one explorer page read.
func (m *Metrics) RecordScrapePage(table string) {
	m.scrapePagesTotal.WithLabelValues(table).Inc()
}

// RecordScrapeRow records a row outcome ("ok" or "skip").
func (m *Metrics) RecordScrapeRow(table, outcome string) {
	m.scrapeRowsTotal.WithLabelValues(table, outcome).Inc()
}

// Report metric helpers

// RecordReportWritten records a report file write.
func (m *Metrics) RecordReportWritten(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.reportsWrittenTotal.WithLabelValues(kind, status).Inc()
}

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}
