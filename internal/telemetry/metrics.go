package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics records client and server activity in a Prometheus registry.
// Its On* methods match the client observer hooks, so a *Metrics can be
// passed wherever the client expects an observer.
type Metrics struct {
	registry *prometheus.Registry

	clientRequests        *prometheus.CounterVec
	clientRequestDuration *prometheus.HistogramVec
	inflight              prometheus.Gauge
	retries               *prometheus.CounterVec
	cacheHits             prometheus.Counter
	cacheMisses           prometheus.Counter
	sessionActive         prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	recordsStored       *prometheus.GaugeVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics(prefix string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	name := func(n string) string {
		if prefix == "" {
			return n
		}
		return prefix + "_" + n
	}

	return &Metrics{
		registry: reg,

		clientRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: name("client_requests_total"),
			Help: "Total number of requests issued by the client",
		}, []string{"method", "status"}),
		clientRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name("client_request_duration_seconds"),
			Help:    "Duration of client requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: name("client_requests_in_flight"),
			Help: "Number of client requests awaiting a response",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: name("query_retries_total"),
			Help: "Total number of retried query attempts",
		}, []string{"cached"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: name("query_cache_hits_total"),
			Help: "Total number of query cache hits",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: name("query_cache_misses_total"),
			Help: "Total number of query cache misses",
		}),
		sessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: name("session_active"),
			Help: "Whether a session is currently persisted (1) or not (0)",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: name("http_requests_total"),
			Help: "Total number of HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name("http_request_duration_seconds"),
			Help:    "Duration of served HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		recordsStored: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: name("records_stored"),
			Help: "Number of records held per resource",
		}, []string{"resource"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnRequestStart counts a request as in flight.
func (m *Metrics) OnRequestStart(method, path string) {
	m.inflight.Inc()
}

// OnRequestEnd records the outcome of a client request. status is 0 when
// no response was received.
func (m *Metrics) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	m.inflight.Dec()
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	m.clientRequests.WithLabelValues(method, label).Inc()
	m.clientRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// OnRetryAttempt counts a retried query.
func (m *Metrics) OnRetryAttempt(key string, attempt int, delay time.Duration, err error) {
	m.retries.WithLabelValues(strconv.FormatBool(key != "")).Inc()
}

// OnCacheHit counts a fresh cache read.
func (m *Metrics) OnCacheHit(key string) {
	m.cacheHits.Inc()
}

// OnCacheMiss counts a cache read that fell through to the server.
func (m *Metrics) OnCacheMiss(key string) {
	m.cacheMisses.Inc()
}

// OnSessionChange tracks whether a session is persisted.
func (m *Metrics) OnSessionChange(active bool) {
	if active {
		m.sessionActive.Set(1)
	} else {
		m.sessionActive.Set(0)
	}
}

// RecordHTTPRequest records a request served by the mock backend.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetRecordCount updates the number of records held for a resource.
func (m *Metrics) SetRecordCount(resource string, n int) {
	m.recordsStored.WithLabelValues(resource).Set(float64(n))
}

// NewMeterProvider builds the OTLP metrics pipeline. With metrics disabled
// or in file mode it returns a no-op provider.
func NewMeterProvider(ctx context.Context, cfg *Config) (metric.MeterProvider, func(context.Context) error, error) {
	if !cfg.EnableMetrics || cfg.ExportToFile {
		return noop.NewMeterProvider(), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(cfg.MetricsInterval)*time.Second),
			),
		),
	)
	return provider, provider.Shutdown, nil
}
