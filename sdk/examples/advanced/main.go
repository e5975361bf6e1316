package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pubflow/pubflow-go/internal/telemetry"
	"github.com/pubflow/pubflow-go/sdk"
	"github.com/pubflow/pubflow-go/sdk/events"
	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
)

// Task is a record of the "tasks" bridge resource.
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority int    `json:"priority"`
}

var taskSchema = sdk.NewSchema(sdk.SchemaConfig{
	Name:       "tasks",
	Timestamps: true,
	Unknown:    sdk.UnknownReject,
	Fields: sdk.Fields{
		"title":    sdk.String().Rules("min=3,max=120"),
		"status":   sdk.String().Rules("oneof=todo doing done").Default("todo"),
		"priority": sdk.Integer().Rules("min=1,max=5").Default(3),
		"tags":     sdk.Array(sdk.String()).Optional(),
	},
})

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	metrics := telemetry.NewMetrics("pubflow_example")
	go serveMetrics(metrics)

	// Auth events go to NATS when a server is reachable.
	var publisher sdk.EventPublisher
	if pub, err := events.NewPublisher(events.DefaultConfig(), telemetry.NewNopLogger()); err != nil {
		fmt.Printf("NATS unavailable, auth events disabled: %v\n", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	config := sdk.DefaultConfig().
		WithBaseURL("http://localhost:8080").
		WithRuntime(platform.Node).
		WithStorage(storage.NewMemoryStorage()).
		WithObserver(metrics).
		WithRateLimit(20, 5).
		WithHistory(50).
		WithDebug(os.Getenv("PUBFLOW_DEBUG") == "true").
		WithTimeout(5 * time.Second)
	if publisher != nil {
		config = config.WithEventPublisher(publisher)
	}

	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	client.Bridge().RegisterSchema("tasks", taskSchema)

	fmt.Println("=== PubFlow Advanced Examples ===")

	if _, err := client.Auth().Login(ctx, sdk.Credentials{UserName: "editor", Password: "pubflow"}); err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	fmt.Println("\n1. Schema validation")
	schemaValidation(ctx, client)

	fmt.Println("\n2. Cached queries with retry")
	cachedQueries(ctx, client)

	fmt.Println("\n3. Retry strategies")
	retryStrategies(ctx, client)

	fmt.Println("\n4. Request history")
	requestHistory(client)

	if err := client.Auth().Logout(ctx); err != nil {
		log.Printf("Logout failed: %v", err)
	}
	fmt.Println("\nAll examples completed!")
}

func schemaValidation(ctx context.Context, client sdk.Client) {
	tasks := sdk.NewResource[Task](client.Bridge(), "tasks")

	// Defaults are applied before the payload is sent.
	created, err := tasks.Create(ctx, map[string]any{"title": "Write release notes"})
	if err != nil {
		log.Printf("Create failed: %v", err)
		return
	}
	fmt.Printf("✓ Created %s with status=%s priority=%d\n", created.ID, created.Status, created.Priority)

	// Invalid payloads never reach the server.
	_, err = tasks.Create(ctx, map[string]any{"title": "x", "status": "blocked", "owner": "bob"})
	if fields, ok := sdk.FieldErrors(err); ok {
		for field, msgs := range fields {
			fmt.Printf("✓ Rejected %s: %v\n", field, msgs)
		}
	}

	// Updates are checked against the partial schema, so missing fields are fine.
	updated, err := tasks.Update(ctx, created.ID, map[string]any{"status": "doing"})
	if err != nil {
		log.Printf("Update failed: %v", err)
		return
	}
	fmt.Printf("✓ Moved %s to %s\n", updated.ID, updated.Status)
}

func cachedQueries(ctx context.Context, client sdk.Client) {
	var calls atomic.Int32
	load := func(ctx context.Context) ([]Task, error) {
		calls.Add(1)
		resp, err := client.Bridge().Query(ctx, "tasks", &sdk.ListOptions{Page: 1, Limit: 20})
		if err != nil {
			return nil, err
		}
		out, err := sdk.DecodeResponse[[]Task](resp)
		if err != nil {
			return nil, err
		}
		return out.Data, nil
	}

	opts := sdk.ExecuteOptions{
		CacheKey:  "tasks:all",
		CacheTime: 30 * time.Second,
		Retry:     3,
		OnSuccess: func(data any) { fmt.Printf("✓ Fetched %d tasks\n", len(data.([]Task))) },
		OnError:   func(err error) { fmt.Printf("✗ Giving up: %v\n", err) },
	}
	for i := 0; i < 3; i++ {
		if _, err := sdk.Execute(ctx, client.Query(), load, opts); err != nil {
			return
		}
	}
	fmt.Printf("✓ 3 reads, %d round trips\n", calls.Load())

	client.Query().Delete("tasks:all")
	if _, err := sdk.Execute(ctx, client.Query(), load, opts); err == nil {
		fmt.Printf("✓ After invalidation: %d round trips\n", calls.Load())
	}
}

func retryStrategies(ctx context.Context, client sdk.Client) {
	var attempts int
	flaky := func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("temporary failure")
		}
		return "ok", nil
	}

	strategies := map[string]sdk.RetryStrategy{
		"constant":    &sdk.ConstantBackoffStrategy{Interval: 50 * time.Millisecond},
		"exponential": &sdk.ExponentialBackoffStrategy{InitialInterval: 20 * time.Millisecond, MaxInterval: 200 * time.Millisecond, Multiplier: 2, Jitter: 0.2},
		"custom": sdk.RetryStrategyFunc(func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 10 * time.Millisecond
		}),
	}
	for name, strategy := range strategies {
		attempts = 0
		start := time.Now()
		result, err := sdk.Execute(ctx, client.Query(), flaky, sdk.ExecuteOptions{Retry: 5, Strategy: strategy})
		if err != nil {
			fmt.Printf("✗ %s: %v\n", name, err)
			continue
		}
		fmt.Printf("✓ %s: %s after %d attempts in %s\n", name, result, attempts, time.Since(start).Round(time.Millisecond))
	}

	// Context cancellation stops the retry loop between attempts.
	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err := sdk.Execute(short, client.Query(), func(context.Context) (string, error) {
		return "", errors.New("always failing")
	}, sdk.ExecuteOptions{Retry: 10, Strategy: &sdk.ConstantBackoffStrategy{Interval: 100 * time.Millisecond}})
	fmt.Printf("✓ Cancelled retry: %v\n", errors.Is(err, context.DeadlineExceeded))
}

func requestHistory(client sdk.Client) {
	for _, r := range client.History() {
		fmt.Printf("  %s %s -> %d (%s)\n", r.Method, r.URL, r.Status, r.Duration.Round(time.Millisecond))
	}
}

func serveMetrics(m *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(":9091", mux); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}
