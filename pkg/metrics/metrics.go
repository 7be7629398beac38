package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dripx"

// Snapshot is a point-in-time copy of the headline counters, served on /health
type Snapshot struct {
	TotalRequests        int64   `json:"total_requests"`
	FailedRequests       int64   `json:"failed_requests"`
	ActiveRequests       int64   `json:"active_requests"`
	Disbursements        int64   `json:"disbursements"`
	FailedDisbursements  int64   `json:"failed_disbursements"`
	EndpointProbes       int64   `json:"endpoint_probes"`
	FailedEndpointProbes int64   `json:"failed_endpoint_probes"`
	MutexWaits           int64   `json:"mutex_waits"`
	UptimeSeconds        float64 `json:"uptime_seconds"`
}

// MetricsCollector owns the Prometheus registry of the faucet.
// A nil *MetricsCollector is valid and records nothing.
type MetricsCollector struct {
	registry *prometheus.Registry

	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
	httpActive           prometheus.Gauge
	disbursements        *prometheus.CounterVec
	disbursementDuration prometheus.Histogram
	endpointProbes       *prometheus.CounterVec
	balanceRefreshes     *prometheus.CounterVec
	mutexWaits           prometheus.Counter
	sessions             prometheus.Gauge

	totalRequests       atomic.Int64
	failedRequests      atomic.Int64
	activeRequests      atomic.Int64
	totalDisbursements  atomic.Int64
	failedDisbursements atomic.Int64
	totalProbes         atomic.Int64
	failedProbes        atomic.Int64
	totalMutexWaits     atomic.Int64

	startTime time.Time
}

// NewMetricsCollector creates a collector with its own registry
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "HTTP requests currently being served.",
		}),
		disbursements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "faucet",
			Name:      "disbursements_total",
			Help:      "Finished disbursements by outcome category.",
		}, []string{"outcome"}),
		disbursementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "faucet",
			Name:      "disbursement_duration_seconds",
			Help:      "Time from submission to final outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		endpointProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "endpoint_probes_total",
			Help:      "Liveness probes by endpoint and result.",
		}, []string{"endpoint", "result"}),
		balanceRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "balance_refreshes_total",
			Help:      "Balance refreshes by result.",
		}, []string{"result"}),
		mutexWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "refresh_lock_waits_total",
			Help:      "Balance refreshes that waited on another refresh of the same wallet.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "faucet",
			Name:      "sessions",
			Help:      "Live faucet sessions.",
		}),
		startTime: time.Now(),
	}

	mc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mc.httpRequests,
		mc.httpDuration,
		mc.httpActive,
		mc.disbursements,
		mc.disbursementDuration,
		mc.endpointProbes,
		mc.balanceRefreshes,
		mc.mutexWaits,
		mc.sessions,
	)

	return mc
}

// Registry exposes the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// Handler serves the registry in the Prometheus exposition format
func (mc *MetricsCollector) Handler() http.Handler {
	if mc == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{
		Registry:      mc.registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// RecordRequestStart marks an HTTP request as in flight
func (mc *MetricsCollector) RecordRequestStart() {
	if mc == nil {
		return
	}
	mc.totalRequests.Add(1)
	mc.activeRequests.Add(1)
	mc.httpActive.Inc()
}

// RecordRequestComplete records a finished HTTP request started with RecordRequestStart
func (mc *MetricsCollector) RecordRequestComplete(method, path string, status int, duration time.Duration) {
	if mc == nil {
		return
	}
	if path == "" {
		path = "unmatched"
	}

	mc.activeRequests.Add(-1)
	mc.httpActive.Dec()
	if status >= http.StatusBadRequest {
		mc.failedRequests.Add(1)
	}

	mc.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	mc.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDisbursement records a finished disbursement. outcome is "success" or a failure category.
func (mc *MetricsCollector) RecordDisbursement(outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.totalDisbursements.Add(1)
	if outcome != "success" {
		mc.failedDisbursements.Add(1)
	}
	mc.disbursements.WithLabelValues(outcome).Inc()
	mc.disbursementDuration.Observe(duration.Seconds())
}

// RecordProbe records one endpoint liveness probe
func (mc *MetricsCollector) RecordProbe(endpoint string, ok bool) {
	if mc == nil {
		return
	}
	mc.totalProbes.Add(1)
	result := "up"
	if !ok {
		mc.failedProbes.Add(1)
		result = "down"
	}
	mc.endpointProbes.WithLabelValues(endpoint, result).Inc()
}

// RecordBalanceRefresh records one balance refresh
func (mc *MetricsCollector) RecordBalanceRefresh(ok bool) {
	if mc == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	mc.balanceRefreshes.WithLabelValues(result).Inc()
}

// RecordMutexWait records a refresh that had to wait for the wallet lock
func (mc *MetricsCollector) RecordMutexWait() {
	if mc == nil {
		return
	}
	mc.totalMutexWaits.Add(1)
	mc.mutexWaits.Inc()
}

// SetSessions sets the live session gauge
func (mc *MetricsCollector) SetSessions(n int) {
	if mc == nil {
		return
	}
	mc.sessions.Set(float64(n))
}

// GetUptime returns the uptime since metrics collection started
func (mc *MetricsCollector) GetUptime() time.Duration {
	if mc == nil {
		return 0
	}
	return time.Since(mc.startTime)
}

// Snapshot returns a copy of the headline counters
func (mc *MetricsCollector) Snapshot() Snapshot {
	if mc == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalRequests:        mc.totalRequests.Load(),
		FailedRequests:       mc.failedRequests.Load(),
		ActiveRequests:       mc.activeRequests.Load(),
		Disbursements:        mc.totalDisbursements.Load(),
		FailedDisbursements:  mc.failedDisbursements.Load(),
		EndpointProbes:       mc.totalProbes.Load(),
		FailedEndpointProbes: mc.failedProbes.Load(),
		MutexWaits:           mc.totalMutexWaits.Load(),
		UptimeSeconds:        mc.GetUptime().Seconds(),
	}
}

// SuccessRate returns the share of HTTP requests below 400 as a percentage
func (mc *MetricsCollector) SuccessRate() float64 {
	if mc == nil {
		return 0
	}
	total := mc.totalRequests.Load() - mc.activeRequests.Load()
	if total <= 0 {
		return 0
	}
	return float64(total-mc.failedRequests.Load()) / float64(total) * 100.0
}
