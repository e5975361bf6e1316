package sdk

import (
	"sync"
	"time"
)

// Observer provides hooks for monitoring SDK operations.
// Implement this interface to track performance metrics, debug issues,
// or integrate with your observability stack.
//
// Observer methods are called synchronously on the request path and
// should be fast and non-blocking.
//
// Example implementation:
//
//	type LogObserver struct {
//	    logger *log.Logger
//	}
//
//	func (o *LogObserver) OnRequestEnd(method, path string, status int, d time.Duration, err error) {
//	    o.logger.Printf("%s %s -> %d (%v) %v", method, path, status, d, err)
//	}
//
//	config := sdk.DefaultConfig().
//	    WithObserver(&LogObserver{logger: log.Default()})
type Observer interface {
	// OnRequestStart is called before a request is sent.
	OnRequestStart(method, path string)

	// OnRequestEnd is called when a request completes. status is 0 when
	// no response was received.
	OnRequestEnd(method, path string, status int, duration time.Duration, err error)

	// OnRetryAttempt is called before a query is attempted again.
	//
	// Parameters:
	//   - key: cache key of the query, empty when uncached
	//   - attempt: number of the attempt about to run (2, 3, ...)
	//   - delay: backoff waited before it
	//   - err: the error that triggered the retry
	OnRetryAttempt(key string, attempt int, delay time.Duration, err error)

	// OnCacheHit is called when a fresh cache entry is served.
	OnCacheHit(key string)

	// OnCacheMiss is called when a keyed query falls through to its
	// function.
	OnCacheMiss(key string)

	// OnSessionChange is called when a session is persisted (true) or
	// cleared (false).
	OnSessionChange(active bool)
}

// NoopObserver is an observer that does nothing.
type NoopObserver struct{}

func (n *NoopObserver) OnRequestStart(method, path string) {}

func (n *NoopObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
}

func (n *NoopObserver) OnRetryAttempt(key string, attempt int, delay time.Duration, err error) {}

func (n *NoopObserver) OnCacheHit(key string) {}

func (n *NoopObserver) OnCacheMiss(key string) {}

func (n *NoopObserver) OnSessionChange(active bool) {}

// CompositeObserver fans every hook out to several observers in order.
//
// Example:
//
//	observer := sdk.NewCompositeObserver(metrics, &LogObserver{})
//	config := sdk.DefaultConfig().WithObserver(observer)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates a composite observer. Nil entries are
// skipped.
func NewCompositeObserver(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return &CompositeObserver{observers: list}
}

func (c *CompositeObserver) OnRequestStart(method, path string) {
	for _, o := range c.observers {
		o.OnRequestStart(method, path)
	}
}

func (c *CompositeObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	for _, o := range c.observers {
		o.OnRequestEnd(method, path, status, duration, err)
	}
}

func (c *CompositeObserver) OnRetryAttempt(key string, attempt int, delay time.Duration, err error) {
	for _, o := range c.observers {
		o.OnRetryAttempt(key, attempt, delay, err)
	}
}

func (c *CompositeObserver) OnCacheHit(key string) {
	for _, o := range c.observers {
		o.OnCacheHit(key)
	}
}

func (c *CompositeObserver) OnCacheMiss(key string) {
	for _, o := range c.observers {
		o.OnCacheMiss(key)
	}
}

func (c *CompositeObserver) OnSessionChange(active bool) {
	for _, o := range c.observers {
		o.OnSessionChange(active)
	}
}

// DefaultHistorySize is the number of requests kept when history is
// enabled by debug mode.
const DefaultHistorySize = 100

// RequestRecord is one entry of the request history.
type RequestRecord struct {
	ID        string        `json:"id"`
	Method    string        `json:"method"`
	URL       string        `json:"url"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// RequestHistory keeps the most recent requests for inspection during
// development. It is safe for concurrent use.
type RequestHistory struct {
	mu      sync.Mutex
	limit   int
	records []RequestRecord
}

// NewRequestHistory returns a history bounded to limit records. A limit
// below 1 uses DefaultHistorySize.
func NewRequestHistory(limit int) *RequestHistory {
	if limit < 1 {
		limit = DefaultHistorySize
	}
	return &RequestHistory{limit: limit}
}

// Track appends a record, dropping the oldest once the bound is reached.
func (h *RequestHistory) Track(r RequestRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == h.limit {
		copy(h.records, h.records[1:])
		h.records = h.records[:h.limit-1]
	}
	h.records = append(h.records, r)
}

// Requests returns a copy of the recorded requests, oldest first.
func (h *RequestHistory) Requests() []RequestRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RequestRecord(nil), h.records...)
}

// Clear drops every record.
func (h *RequestHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}
