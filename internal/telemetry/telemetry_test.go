package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.ServiceName = "pubflow-test"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithField("key", "value").Debug("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "pubflow-test", entry["service.name"])
	assert.Contains(t, entry, "@timestamp")
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "chatty"

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, "info", logger.GetLevel().String())
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.json")
	cfg := DefaultConfig()
	cfg.ExportToFile = true
	cfg.LogsFilePath = path

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	logger.SetOutput(&bytes.Buffer{})

	logger.WithError(errors.New("boom")).Error("first")
	logger.Info("second")
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var messages []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		messages = append(messages, entry["message"].(string))
		if entry["message"] == "first" {
			assert.Equal(t, "boom", entry["error"])
		}
	}
	assert.Equal(t, []string{"first", "second"}, messages)
}

func TestWithContext(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var buf bytes.Buffer
	logger := NewNopLogger()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx, span := StartSpan(context.Background(), Tracer(tp), "op")
	WithContext(ctx, logger).Info("inside")
	span.End()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace.id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span.id"])

	buf.Reset()
	WithContext(context.Background(), logger).Info("outside")
	assert.NotContains(t, buf.String(), "trace.id")
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	ctx, span := StartSpan(context.Background(), Tracer(tp), "failing")
	AddEvent(ctx, "retry")
	RecordError(ctx, errors.New("nope"))
	span.End()

	ctx, span = StartSpan(context.Background(), Tracer(tp), "ok")
	SetOKStatus(ctx)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "nope", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 2)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
}

func TestFileTracerExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.json")
	exporter, err := NewFileTracerExporter(path)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	ctx, parent := StartSpan(context.Background(), Tracer(tp), "parent")
	_, child := StartSpan(ctx, Tracer(tp), "child")
	child.End()
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first FileSpan
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "child", first.Name)
	assert.Equal(t, parent.SpanContext().SpanID().String(), first.ParentID)
}

func TestDisabledProviders(t *testing.T) {
	cfg := DefaultConfig()

	tp, stop, err := NewTracerProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp)
	assert.NoError(t, stop(context.Background()))

	mp, stop, err := NewMeterProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, mp)
	assert.NoError(t, stop(context.Background()))
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics("test")

	m.OnRequestStart("GET", "/bridge/posts")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
	m.OnRequestEnd("GET", "/bridge/posts", 200, 20*time.Millisecond, nil)
	m.OnRequestStart("POST", "/auth/login")
	m.OnRequestEnd("POST", "/auth/login", 0, time.Millisecond, errors.New("offline"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clientRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clientRequests.WithLabelValues("POST", "error")))

	m.OnCacheHit("k")
	m.OnCacheHit("k")
	m.OnCacheMiss("k")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))

	m.OnRetryAttempt("k", 1, time.Second, errors.New("x"))
	m.OnRetryAttempt("", 1, time.Second, errors.New("x"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("false")))

	m.OnSessionChange(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionActive))
	m.OnSessionChange(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionActive))

	m.SetRecordCount("posts", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsStored.WithLabelValues("posts")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "test_query_cache_hits_total 2")
}

func TestMetricsAreIsolated(t *testing.T) {
	a := NewMetrics("iso")
	b := NewMetrics("iso")
	a.OnCacheHit("k")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cacheHits))
}
