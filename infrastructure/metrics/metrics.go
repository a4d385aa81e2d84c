// Package metrics provides Prometheus metrics collection for the oracle
// observatory's sync engine, RPC pool, protocol clients, and anomaly
// detector.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for one process.
type Metrics struct {
	// Sync engine
	SyncRangesTotal    *prometheus.CounterVec
	SyncRangeDuration  *prometheus.HistogramVec
	SyncLogsIngested   *prometheus.CounterVec
	SyncWindowSize     *prometheus.GaugeVec
	SyncLastBlock      *prometheus.GaugeVec
	SyncConsecutiveErr *prometheus.GaugeVec

	// RPC pool / endpoint rotator
	RPCCallsTotal     *prometheus.CounterVec
	RPCCallDuration   *prometheus.HistogramVec
	RPCEndpointHealth *prometheus.GaugeVec
	RPCRotationsTotal *prometheus.CounterVec

	// Protocol clients
	PriceFetchTotal    *prometheus.CounterVec
	PriceFetchDuration *prometheus.HistogramVec

	// Anomaly detector
	AnomalyDetectionsTotal *prometheus.CounterVec

	// Scheduler / service health
	SchedulerRunning prometheus.Gauge
	ErrorsTotal      *prometheus.CounterVec
	ServiceUptime    prometheus.Gauge
	ServiceInfo      *prometheus.GaugeVec
}

// New creates a new Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncRangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_sync_ranges_total",
				Help: "Total number of block ranges scanned by the sync engine",
			},
			[]string{"instance", "status"},
		),
		SyncRangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_sync_range_duration_seconds",
				Help:    "Duration of one sync-engine range scan",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"instance"},
		),
		SyncLogsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_sync_logs_ingested_total",
				Help: "Total number of decoded event logs upserted",
			},
			[]string{"instance", "event"},
		),
		SyncWindowSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_sync_window_size_blocks",
				Help: "Current adaptive block-range window size",
			},
			[]string{"instance"},
		),
		SyncLastBlock: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_sync_last_processed_block",
				Help: "Last successfully processed block for an instance",
			},
			[]string{"instance"},
		),
		SyncConsecutiveErr: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_sync_consecutive_failures",
				Help: "Consecutive sync failures for an instance",
			},
			[]string{"instance"},
		),
		RPCCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_rpc_calls_total",
				Help: "Total RPC calls issued, by method and outcome",
			},
			[]string{"method", "status"},
		),
		RPCCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_rpc_call_duration_seconds",
				Help:    "RPC call latency",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),
		RPCEndpointHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_rpc_endpoint_healthy",
				Help: "1 if the endpoint is currently considered healthy, else 0",
			},
			[]string{"chain"},
		),
		RPCRotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_rpc_rotations_total",
				Help: "Total number of endpoint rotations performed",
			},
			[]string{"chain"},
		),
		PriceFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_price_fetch_total",
				Help: "Total price fetches attempted, by protocol and outcome",
			},
			[]string{"protocol", "chain", "status"},
		),
		PriceFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_price_fetch_duration_seconds",
				Help:    "Duration of a single-symbol price fetch",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"protocol", "chain"},
		),
		AnomalyDetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_anomaly_detections_total",
				Help: "Total anomaly detections emitted, by severity",
			},
			[]string{"metric", "severity"},
		),
		SchedulerRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oracle_scheduler_running",
				Help: "1 while the sync scheduler loop is running, 0 once circuit-broken",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_errors_total",
				Help: "Total errors by taxonomy code",
			},
			[]string{"code"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oracle_service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_service_info",
				Help: "Service build information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.SyncRangesTotal,
			m.SyncRangeDuration,
			m.SyncLogsIngested,
			m.SyncWindowSize,
			m.SyncLastBlock,
			m.SyncConsecutiveErr,
			m.RPCCallsTotal,
			m.RPCCallDuration,
			m.RPCEndpointHealth,
			m.RPCRotationsTotal,
			m.PriceFetchTotal,
			m.PriceFetchDuration,
			m.AnomalyDetectionsTotal,
			m.SchedulerRunning,
			m.ErrorsTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordSyncRange records the outcome of one sync-engine range scan.
func (m *Metrics) RecordSyncRange(instance, status string, duration time.Duration) {
	m.SyncRangesTotal.WithLabelValues(instance, status).Inc()
	m.SyncRangeDuration.WithLabelValues(instance).Observe(duration.Seconds())
}

// RecordRPCCall records one RPC call's latency and outcome.
func (m *Metrics) RecordRPCCall(method, status string, duration time.Duration) {
	m.RPCCallsTotal.WithLabelValues(method, status).Inc()
	m.RPCCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordPriceFetch records one protocol-client single-symbol fetch.
func (m *Metrics) RecordPriceFetch(protocol, chain, status string, duration time.Duration) {
	m.PriceFetchTotal.WithLabelValues(protocol, chain, status).Inc()
	m.PriceFetchDuration.WithLabelValues(protocol, chain).Observe(duration.Seconds())
}

// RecordError increments the error counter for a taxonomy code.
func (m *Metrics) RecordError(code string) {
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func getEnvironment() string {
	if env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT"))); env != "" {
		return env
	}
	return "development"
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return getEnvironment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
