package sdk

import (
	"context"
	"sync"
	"time"
)

// Query defaults.
const (
	DefaultCacheTime = 5 * time.Second
	DefaultRetry     = 3
)

// CacheEntry is one cached query result.
type CacheEntry struct {
	Data      any
	Timestamp time.Time
	TTL       time.Duration
}

// Fresh reports whether the entry may still be served at now.
func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Sub(e.Timestamp) <= e.TTL
}

// QueryCacheOption customizes a QueryCache.
type QueryCacheOption func(*QueryCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) QueryCacheOption {
	return func(q *QueryCache) { q.now = now }
}

// WithSleep replaces the timer used between retries.
func WithSleep(sleep SleepFunc) QueryCacheOption {
	return func(q *QueryCache) { q.sleep = sleep }
}

// WithCacheObserver reports cache hits, misses and retries.
func WithCacheObserver(o Observer) QueryCacheOption {
	return func(q *QueryCache) { q.observer = o }
}

// WithDefaultTTL sets the cache time used when ExecuteOptions has none.
func WithDefaultTTL(d time.Duration) QueryCacheOption {
	return func(q *QueryCache) { q.defaultTTL = d }
}

// QueryCache is a keyed TTL cache with a retrying executor in front of it.
//
// Cache keys are chosen by the caller and never derived from the query:
// two queries with different parameters that share a key share one entry,
// and the second is served the first one's data while it is fresh. Use one
// key per query shape.
//
// Example:
//
//	posts, err := sdk.Execute(ctx, client.Query(), func(ctx context.Context) (*sdk.Response[json.RawMessage], error) {
//	    return client.Bridge().Query(ctx, "posts", &sdk.ListOptions{Page: 1})
//	}, sdk.ExecuteOptions{CacheKey: "posts:page=1"})
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]CacheEntry
	now        func() time.Time
	sleep      SleepFunc
	observer   Observer
	defaultTTL time.Duration
}

// NewQueryCache creates an empty cache.
func NewQueryCache(opts ...QueryCacheOption) *QueryCache {
	q := &QueryCache{
		entries:    make(map[string]CacheEntry),
		now:        time.Now,
		sleep:      Sleep,
		observer:   &NoopObserver{},
		defaultTTL: DefaultCacheTime,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Get returns a fresh entry's data. An expired entry is evicted and
// reported as a miss.
func (q *QueryCache) Get(key string) (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[key]
	if !ok {
		return nil, false
	}
	if !e.Fresh(q.now()) {
		delete(q.entries, key)
		return nil, false
	}
	return e.Data, true
}

// Set stores data under key for ttl.
func (q *QueryCache) Set(key string, data any, ttl time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[key] = CacheEntry{Data: data, Timestamp: q.now(), TTL: ttl}
}

// Delete removes one entry.
func (q *QueryCache) Delete(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, key)
}

// Len returns the number of entries, expired ones included.
func (q *QueryCache) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear drops every entry.
func (q *QueryCache) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]CacheEntry)
}

// ExecuteOptions control one Execute call.
type ExecuteOptions struct {
	// CacheKey enables caching. Empty disables it.
	CacheKey string

	// CacheTime is how long a result stays fresh. Default: 5s.
	CacheTime time.Duration

	// Retry is the total number of attempts. Zero uses 3; negative values
	// run a single attempt.
	Retry int

	// Strategy computes the delay between attempts. Default: linear 1s.
	Strategy RetryStrategy

	// OnSuccess receives the result after a successful attempt. It is not
	// called for cache hits.
	OnSuccess func(data any)

	// OnError receives the final error once every attempt failed.
	OnError func(err error)
}

// Execute serves a fresh cached value for opts.CacheKey, or runs fn with
// retries and caches the result. Attempts are strictly sequential. Only
// the terminal outcome reaches OnSuccess or OnError; the Observer sees each
// retry. A cached value of a type other than T is a miss.
func Execute[T any](ctx context.Context, q *QueryCache, fn func(context.Context) (T, error), opts ExecuteOptions) (T, error) {
	if opts.CacheTime <= 0 {
		opts.CacheTime = q.defaultTTL
	}
	switch {
	case opts.Retry == 0:
		opts.Retry = DefaultRetry
	case opts.Retry < 1:
		opts.Retry = 1
	}
	if opts.Strategy == nil {
		opts.Strategy = DefaultLinearBackoff()
	}

	if opts.CacheKey != "" {
		if v, ok := q.Get(opts.CacheKey); ok {
			if typed, ok := v.(T); ok {
				q.observer.OnCacheHit(opts.CacheKey)
				return typed, nil
			}
		}
		q.observer.OnCacheMiss(opts.CacheKey)
	}

	m := &retryMachine[T]{
		maxAttempts: opts.Retry,
		strategy:    opts.Strategy,
		sleep:       q.sleep,
		onRetry: func(attempt int, delay time.Duration, err error) {
			q.observer.OnRetryAttempt(opts.CacheKey, attempt, delay, err)
		},
	}
	result, err := m.run(ctx, fn)
	if err != nil {
		if opts.OnError != nil {
			opts.OnError(err)
		}
		return result, err
	}

	if opts.CacheKey != "" {
		q.Set(opts.CacheKey, result, opts.CacheTime)
	}
	if opts.OnSuccess != nil {
		opts.OnSuccess(result)
	}
	return result, nil
}
