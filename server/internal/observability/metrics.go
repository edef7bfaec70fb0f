package observability

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultNamespace prefixes every exported metric.
	DefaultNamespace = "weather_mcp"

	avgSmoothing       = 0.1
	endpointSampleSize = 100
	recentErrorWindow  = time.Hour
	recentErrorLimit   = 10
	healthWindow       = 5 * time.Minute
)

// RequestRecord describes one completed tool operation.
type RequestRecord struct {
	Endpoint     string
	StatusCode   int
	ResponseTime time.Duration
	Timestamp    time.Time
	Error        string
}

// Metrics collects and aggregates metrics for the weather service.
// Counters are mirrored into a private Prometheus registry.
type Metrics struct {
	mu sync.Mutex

	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	cacheHitsTotal    prometheus.Counter
	cacheMissesTotal  prometheus.Counter
	rateLimitHits     prometheus.Counter
	upstreamResponses *prometheus.CounterVec

	history    []RequestRecord
	maxHistory int

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	avgResponseTime    float64 // seconds, exponentially smoothed
	cacheHits          int64
	cacheMisses        int64
	rateLimitHitCount  int64
	endpointTimes      map[string][]time.Duration

	startTime time.Time
	now       func() time.Time
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithMetricsClock replaces time.Now, mainly for tests.
func WithMetricsClock(now func() time.Time) MetricsOption {
	return func(m *Metrics) {
		m.now = now
	}
}

// NewMetrics creates a new metrics collector keeping up to maxHistory request records.
func NewMetrics(namespace string, maxHistory int, opts ...MetricsOption) *Metrics {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of tool requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Tool request duration by endpoint",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}),
		cacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}),
		rateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of calls rejected by the local rate limiter",
		}),
		upstreamResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_responses_total",
			Help:      "Upstream responses by HTTP status, or \"error\" when no response arrived",
		}, []string{"status"}),
		history:       make([]RequestRecord, 0, maxHistory),
		maxHistory:    maxHistory,
		endpointTimes: make(map[string][]time.Duration),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.startTime = m.now()
	return m
}

// RecordRequest records a completed request and updates the aggregates.
func (m *Metrics) RecordRequest(rec RequestRecord) {
	if m == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now()
	}
	success := rec.StatusCode >= 200 && rec.StatusCode < 400

	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.requestsTotal.WithLabelValues(rec.Endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(rec.Endpoint).Observe(rec.ResponseTime.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) >= m.maxHistory {
		m.history = m.history[1:]
	}
	m.history = append(m.history, rec)

	m.totalRequests++
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}

	seconds := rec.ResponseTime.Seconds()
	if m.totalRequests == 1 {
		m.avgResponseTime = seconds
	} else {
		m.avgResponseTime = avgSmoothing*seconds + (1-avgSmoothing)*m.avgResponseTime
	}

	times := append(m.endpointTimes[rec.Endpoint], rec.ResponseTime)
	if len(times) > endpointSampleSize {
		times = times[len(times)-endpointSampleSize:]
	}
	m.endpointTimes[rec.Endpoint] = times
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

// RecordRateLimitHit records a local rate-limit rejection.
func (m *Metrics) RecordRateLimitHit() {
	if m == nil {
		return
	}
	m.rateLimitHits.Inc()
	m.mu.Lock()
	m.rateLimitHitCount++
	m.mu.Unlock()
}

// RecordUpstreamStatus records one upstream attempt. Status 0 means no response.
func (m *Metrics) RecordUpstreamStatus(status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.upstreamResponses.WithLabelValues(label).Inc()
}

// Handler serves the Prometheus exposition of this collector.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ServiceSummary holds the aggregated service counters.
type ServiceSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseTime    float64 `json:"avg_response_time"`
	CacheHits          int64   `json:"cache_hits"`
	CacheMisses        int64   `json:"cache_misses"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	RateLimitHits      int64   `json:"rate_limit_hits"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

// EndpointStats holds latency statistics for one endpoint, in seconds.
type EndpointStats struct {
	Count           int     `json:"count"`
	AvgResponseTime float64 `json:"avg_response_time"`
	MinResponseTime float64 `json:"min_response_time"`
	MaxResponseTime float64 `json:"max_response_time"`
}

// ErrorRecord is a recent failed request.
type ErrorRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Endpoint   string    `json:"endpoint"`
	Error      string    `json:"error"`
	StatusCode int       `json:"status_code"`
}

// Summary is a point-in-time view of the collector.
type Summary struct {
	Service      ServiceSummary           `json:"service_metrics"`
	Endpoints    map[string]EndpointStats `json:"endpoint_metrics"`
	RecentErrors []ErrorRecord            `json:"recent_errors"`
}

// Summary returns the current metrics summary.
func (m *Metrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	summary := Summary{
		Service: ServiceSummary{
			TotalRequests:      m.totalRequests,
			SuccessfulRequests: m.successfulRequests,
			FailedRequests:     m.failedRequests,
			SuccessRate:        round(m.successRate(), 2),
			AvgResponseTime:    round(m.avgResponseTime, 3),
			CacheHits:          m.cacheHits,
			CacheMisses:        m.cacheMisses,
			CacheHitRate:       round(m.cacheHitRate(), 2),
			RateLimitHits:      m.rateLimitHitCount,
			UptimeSeconds:      round(now.Sub(m.startTime).Seconds(), 1),
		},
		Endpoints:    make(map[string]EndpointStats, len(m.endpointTimes)),
		RecentErrors: []ErrorRecord{},
	}

	for endpoint, times := range m.endpointTimes {
		if len(times) == 0 {
			continue
		}
		minT, maxT, sum := times[0], times[0], time.Duration(0)
		for _, d := range times {
			sum += d
			minT = min(minT, d)
			maxT = max(maxT, d)
		}
		summary.Endpoints[endpoint] = EndpointStats{
			Count:           len(times),
			AvgResponseTime: sum.Seconds() / float64(len(times)),
			MinResponseTime: minT.Seconds(),
			MaxResponseTime: maxT.Seconds(),
		}
	}

	cutoff := now.Add(-recentErrorWindow)
	for i := len(m.history) - 1; i >= 0 && len(summary.RecentErrors) < recentErrorLimit; i-- {
		rec := m.history[i]
		if rec.Timestamp.Before(cutoff) {
			break
		}
		if rec.Error != "" {
			summary.RecentErrors = append(summary.RecentErrors, ErrorRecord{
				Timestamp:  rec.Timestamp,
				Endpoint:   rec.Endpoint,
				Error:      rec.Error,
				StatusCode: rec.StatusCode,
			})
		}
	}

	return summary
}

// HealthStatus is derived from recent traffic and the overall success rate.
type HealthStatus struct {
	Status  string  `json:"status"`
	Details string  `json:"details"`
	Uptime  float64 `json:"uptime"`
}

// Health classifies the service as idle, healthy, degraded or unhealthy.
func (m *Metrics) Health() HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := false
	for i := len(m.history) - 1; i >= 0; i-- {
		if now.Sub(m.history[i].Timestamp) < healthWindow {
			recent = true
			break
		}
	}

	rate := m.successRate()
	health := HealthStatus{Uptime: now.Sub(m.startTime).Seconds()}
	switch {
	case !recent:
		health.Status, health.Details = "idle", "No recent requests"
	case rate >= 95:
		health.Status = "healthy"
	case rate >= 80:
		health.Status = "degraded"
	default:
		health.Status = "unhealthy"
	}
	if recent {
		health.Details = "Success rate: " + strconv.FormatFloat(rate, 'f', 1, 64) + "%"
	}
	return health
}

// LogSummary writes a one-line summary of the collector.
func (m *Metrics) LogSummary(logger *slog.Logger) {
	s := m.Summary().Service
	logger.Info("metrics summary",
		slog.Int64("requests", s.TotalRequests),
		slog.Float64("success_rate", s.SuccessRate),
		slog.Float64("avg_response_seconds", s.AvgResponseTime),
		slog.Float64("cache_hit_rate", s.CacheHitRate),
		slog.Int64("rate_limit_hits", s.RateLimitHits))
}

// successRate must be called with lock held.
func (m *Metrics) successRate() float64 {
	if m.totalRequests == 0 {
		return 0
	}
	return float64(m.successfulRequests) / float64(m.totalRequests) * 100
}

// cacheHitRate must be called with lock held.
func (m *Metrics) cacheHitRate() float64 {
	total := m.cacheHits + m.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(m.cacheHits) / float64(total) * 100
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
