package sdk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubflow/pubflow-go/internal/telemetry"
	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
	"github.com/pubflow/pubflow-go/sdk/testdata"
)

// newTestClient builds a node client against the suite's mock server with
// in-memory storage.
func newTestClient(t *testing.T, ts *testdata.TestSuite, configure ...func(*Config)) *client {
	t.Helper()
	cfg := DefaultConfig().
		WithBaseURL(ts.BaseURL).
		WithRuntime(platform.Node).
		WithStorage(storage.NewMemoryStorage()).
		WithLogger(telemetry.NewNopLogger())
	for _, fn := range configure {
		fn(cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c.(*client)
}

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	NoopObserver
	mu       sync.Mutex
	ends     []int
	retries  []time.Duration
	hits     int
	misses   int
	sessions []bool
}

func (o *recordingObserver) OnRequestEnd(method, path string, status int, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends = append(o.ends, status)
}

func (o *recordingObserver) OnRetryAttempt(key string, attempt int, delay time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, delay)
}

func (o *recordingObserver) OnCacheHit(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func (o *recordingObserver) OnCacheMiss(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses++
}

func (o *recordingObserver) OnSessionChange(active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions = append(o.sessions, active)
}

// recordingPublisher captures auth events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []AuthEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []AuthEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]AuthEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
