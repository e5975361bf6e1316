package testdata

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSuite provides common test setup and utilities
type TestSuite struct {
	T          *testing.T
	Server     *MockServer
	BaseURL    string
	Context    context.Context
	CancelFunc context.CancelFunc
}

// NewTestSuite creates a new test suite with mock server. Resources are
// released through t.Cleanup.
func NewTestSuite(t *testing.T) *TestSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	server := NewMockServer()

	ts := &TestSuite{
		T:          t,
		Server:     server,
		BaseURL:    server.URL,
		Context:    ctx,
		CancelFunc: cancel,
	}
	t.Cleanup(ts.Cleanup)
	return ts
}

// Cleanup cleans up test resources
func (ts *TestSuite) Cleanup() {
	if ts.CancelFunc != nil {
		ts.CancelFunc()
	}
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// RequireRequest returns the last recorded request and checks its method
// and path.
func (ts *TestSuite) RequireRequest(method, path string) RecordedRequest {
	ts.T.Helper()
	req, ok := ts.Server.LastRequest()
	require.True(ts.T, ok, "no request recorded")
	assert.Equal(ts.T, method, req.Method)
	assert.Equal(ts.T, path, req.Path)
	return req
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts a clock at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SleepRecorder replaces a real sleep and records requested delays.
type SleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

// Sleep records d and returns immediately unless ctx is done.
func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Delays returns the recorded delays.
func (s *SleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// ConcurrentTestHelper helps with concurrent testing
type ConcurrentTestHelper struct {
	t         *testing.T
	wg        sync.WaitGroup
	errors    []error
	errorsMux sync.Mutex
}

// NewConcurrentTestHelper creates a new concurrent test helper
func NewConcurrentTestHelper(t *testing.T) *ConcurrentTestHelper {
	return &ConcurrentTestHelper{
		t:      t,
		errors: make([]error, 0),
	}
}

// Run executes a function concurrently
func (cth *ConcurrentTestHelper) Run(numGoroutines int, fn func(id int) error) {
	cth.wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer cth.wg.Done()

			if err := fn(id); err != nil {
				cth.errorsMux.Lock()
				cth.errors = append(cth.errors, fmt.Errorf("goroutine %d: %w", id, err))
				cth.errorsMux.Unlock()
			}
		}(i)
	}
}

// Wait waits for all goroutines to complete and checks for errors
func (cth *ConcurrentTestHelper) Wait() {
	cth.wg.Wait()

	cth.errorsMux.Lock()
	defer cth.errorsMux.Unlock()

	if len(cth.errors) > 0 {
		for _, err := range cth.errors {
			cth.t.Error(err)
		}
		cth.t.Fatalf("Concurrent test failed with %d errors", len(cth.errors))
	}
}
