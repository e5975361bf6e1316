package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/pubflow/pubflow-go/sdk/platform"
)

// instrumentationName is the tracer name requests are reported under.
const instrumentationName = "github.com/pubflow/pubflow-go"

// Header names set by the client.
const (
	HeaderRequestID           = "X-Request-ID"
	HeaderScheduledTaskSecret = "X-Scheduled-Task-Secret"
)

// Params are query parameters. Keys are encoded in sorted order. Slice and
// array values repeat the key with a "[]" suffix once per element; nil
// values are omitted.
type Params map[string]any

// Encode returns the query string without the leading "?".
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	values := url.Values{}
	for key, v := range p {
		rv := reflect.ValueOf(v)
		for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
			if rv.IsNil() {
				rv = reflect.Value{}
				break
			}
			rv = rv.Elem()
		}
		if !rv.IsValid() {
			continue
		}

		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			if rv.Kind() == reflect.Slice && rv.IsNil() {
				continue
			}
			for i := 0; i < rv.Len(); i++ {
				if s, ok := formatParam(rv.Index(i)); ok {
					values.Add(key+"[]", s)
				}
			}
			continue
		}
		if s, ok := formatParam(rv); ok {
			values.Add(key, s)
		}
	}
	return values.Encode()
}

func formatParam(rv reflect.Value) (string, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false
		}
		rv = rv.Elem()
	}
	switch v := rv.Interface().(type) {
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return v.String(), true
	case []byte:
		return string(v), true
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return fmt.Sprint(rv.Interface()), true
}

// RequestOptions shape one request.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Headers override the default headers.
	Headers map[string]string
	// Body is encoded as JSON when non-nil.
	Body any
	// Params are appended as a query string.
	Params Params
	// Timeout bounds this request. Zero falls back to the client timeout.
	Timeout time.Duration
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithDefaultHeaders sets headers sent with every request.
func WithDefaultHeaders(h map[string]string) HTTPOption {
	return func(c *HTTPClient) {
		for k, v := range h {
			c.defaultHeaders[k] = v
		}
	}
}

// WithTaskSecret forwards secret as X-Scheduled-Task-Secret.
func WithTaskSecret(secret string) HTTPOption {
	return func(c *HTTPClient) { c.taskSecret = secret }
}

// WithRequestTimeout sets the timeout used when a call sets none.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithRateLimiter throttles outgoing requests.
func WithRateLimiter(l *rate.Limiter) HTTPOption {
	return func(c *HTTPClient) { c.limiter = l }
}

// WithHTTPLogger sets the request logger.
func WithHTTPLogger(l logrus.FieldLogger) HTTPOption {
	return func(c *HTTPClient) { c.logger = l }
}

// WithHTTPTracer sets the tracer for request spans.
func WithHTTPTracer(t trace.Tracer) HTTPOption {
	return func(c *HTTPClient) { c.tracer = t }
}

// WithHTTPObserver sets the request observer.
func WithHTTPObserver(o Observer) HTTPOption {
	return func(c *HTTPClient) { c.observer = o }
}

// WithRequestHistory records every request into h.
func WithRequestHistory(h *RequestHistory) HTTPOption {
	return func(c *HTTPClient) { c.history = h }
}

// HTTPClient issues JSON requests against the PubFlow backend through the
// runtime adapter. It is safe for concurrent use.
type HTTPClient struct {
	baseURL        string
	adapter        platform.Adapter
	defaultHeaders map[string]string
	taskSecret     string
	timeout        time.Duration
	limiter        *rate.Limiter
	logger         logrus.FieldLogger
	tracer         trace.Tracer
	observer       Observer
	history        *RequestHistory
	onUnauthorized func(ctx context.Context)
	closed         atomic.Bool
}

// NewHTTPClient creates a client that sends requests to baseURL through
// adapter.
func NewHTTPClient(baseURL string, adapter platform.Adapter, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:        baseURL,
		adapter:        adapter,
		defaultHeaders: make(map[string]string),
		observer:       &NoopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.logger = l
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	return c
}

// OnUnauthorized registers fn to run whenever the server answers 401.
func (c *HTTPClient) OnUnauthorized(fn func(ctx context.Context)) {
	c.onUnauthorized = fn
}

// Close makes every later request fail with ErrClientClosed.
func (c *HTTPClient) Close() {
	c.closed.Store(true)
}

// BaseURL returns the configured base URL.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Request issues a request and decodes the JSON body into T.
//
// Example:
//
//	resp, err := sdk.Request[sdk.Response[[]Post]](ctx, client.HTTP(), "/bridge/posts", nil)
func Request[T any](ctx context.Context, c *HTTPClient, endpoint string, opts *RequestOptions) (T, error) {
	var out T
	err := c.Do(ctx, endpoint, opts, &out)
	return out, err
}

// Get issues a GET request.
func (c *HTTPClient) Get(ctx context.Context, endpoint string, params Params, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodGet, Params: params}, out)
}

// Post issues a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, endpoint string, body any, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodPost, Body: body}, out)
}

// Put issues a PUT request with a JSON body.
func (c *HTTPClient) Put(ctx context.Context, endpoint string, body any, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodPut, Body: body}, out)
}

// Delete issues a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, endpoint, &RequestOptions{Method: http.MethodDelete}, out)
}

// Do performs one request. The response body is always parsed as JSON. A
// non-2xx status returns an *Error with code REQUEST_ERROR; on success the
// body is decoded into out when out is non-nil.
func (c *HTTPClient) Do(ctx context.Context, endpoint string, opts *RequestOptions, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.baseURL + endpoint
	if q := opts.Params.Encode(); q != "" {
		target += "?" + q
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, "pubflow "+method, trace.WithAttributes(
		semconv.HTTPMethodKey.String(method),
		semconv.HTTPURLKey.String(target),
	))
	defer span.End()

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return NewErrorWithCode(ErrorTypeRequest, CodeRequestError, "invalid request", err)
	}
	c.setHeaders(req, opts.Headers)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	requestID := req.Header.Get(HeaderRequestID)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.contextError(ctx, err, method, target, requestID, 0)
		}
	}

	start := time.Now()
	c.observer.OnRequestStart(method, endpoint)
	status, err := c.exchange(ctx, req, out)
	duration := time.Since(start)
	c.observer.OnRequestEnd(method, endpoint, status, duration, err)
	c.track(requestID, method, target, status, duration, err)

	var sdkErr *Error
	if errors.As(err, &sdkErr) {
		sdkErr.RequestID = requestID
		if sdkErr.Context == nil {
			sdkErr.WithContext(&ErrorContext{URL: target, Method: method, Duration: duration})
		}
	}

	entry := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"url":        target,
		"status":     status,
		"duration":   duration.Milliseconds(),
		"request_id": requestID,
	})
	if sc := span.SpanContext(); sc.IsValid() {
		entry = entry.WithFields(logrus.Fields{
			"trace.id": sc.TraceID().String(),
			"span.id":  sc.SpanID().String(),
		})
	}
	if status != 0 {
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Debug("Request failed")
	} else {
		span.SetStatus(codes.Ok, "")
		entry.Debug("Request completed")
	}

	if status == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized(context.WithoutCancel(ctx))
	}
	return err
}

func (c *HTTPClient) setHeaders(req *http.Request, perCall map[string]string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.taskSecret != "" {
		req.Header.Set(HeaderScheduledTaskSecret, c.taskSecret)
	}
	for k, v := range c.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range perCall {
		req.Header.Set(k, v)
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}
}

// exchange sends req and interprets the response. It returns the HTTP
// status, or 0 when no response was received.
func (c *HTTPClient) exchange(ctx context.Context, req *http.Request, out any) (int, error) {
	resp, err := c.adapter.Fetch(req)
	if err != nil {
		return 0, c.transportError(ctx, err, req)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, c.transportError(ctx, err, req)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error   string `json:"error"`
			Details any    `json:"details"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return resp.StatusCode, newRequestError(resp.StatusCode, envelope.Error, envelope.Details)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) transportError(ctx context.Context, err error, req *http.Request) error {
	var capErr *platform.CapabilityError
	if errors.As(err, &capErr) {
		return NewErrorWithCode(ErrorTypeCapability, CodeCapabilityError, capErr.Error(), err)
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return c.contextError(ctx, err, req.Method, req.URL.String(), req.Header.Get(HeaderRequestID), 0)
	}
	return NewErrorWithCode(ErrorTypeNetwork, CodeNetworkError, "Network request failed",
		&NetworkError{Op: req.Method + " " + req.URL.Path, Err: err})
}

// contextError maps an expired deadline to a request timeout. A caller
// cancellation is returned as is.
func (c *HTTPClient) contextError(ctx context.Context, err error, method, target, requestID string, status int) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	e := NewErrorWithCode(ErrorTypeTimeout, CodeRequestError, "Request timeout", err)
	e.Status = status
	e.RequestID = requestID
	return e.WithContext(&ErrorContext{URL: target, Method: method})
}

func (c *HTTPClient) track(id, method, target string, status int, duration time.Duration, err error) {
	if c.history == nil {
		return
	}
	r := RequestRecord{
		ID:        id,
		Method:    method,
		URL:       target,
		Status:    status,
		Duration:  duration,
		Timestamp: time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	c.history.Track(r)
}
