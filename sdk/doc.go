// Package sdk is the Go client for PubFlow backends. It covers the pieces a
// frontend or service needs to talk to a PubFlow API: session based
// authentication, CRUD over /bridge resources, client-side schema
// validation and a cached, retrying query executor.
//
// # Features
//
// The SDK provides:
//   - Runtime adapters for node, bun, cloudflare and browser hosts
//   - Pluggable session storage (memory, Redis, PostgreSQL, S3, OS keyring)
//   - Session lifecycle with login, logout and server validation
//   - Typed, paginated resource views with bulk operations
//   - Declarative schemas validated before anything is sent
//   - A TTL query cache with retries and injectable clock
//   - OpenTelemetry spans, Prometheus metrics and logrus logging
//
// # Basic Usage
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/pubflow/pubflow-go/sdk"
//	)
//
//	func main() {
//	    client, err := sdk.NewClient(sdk.DefaultConfig().
//	        WithBaseURL("https://api.example.com"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//	    session, err := client.Auth().Login(ctx, sdk.Credentials{
//	        Email:    "ada@example.com",
//	        Password: "secret",
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Printf("logged in as %s", session.User.Name)
//	}
//
// # Runtimes and Storage
//
// NewClient detects the runtime unless Config.Runtime or Config.Adapter is
// set. Each adapter brings a default storage; Config.Storage replaces it:
//
//	cfg, err := storage.NewRedisConfigFromEnv()
//	store, err := storage.NewRedisStorage(ctx, cfg)
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://api.example.com").
//	    WithStorage(storage.Prefixed(store, "web:")))
//
// # Resources
//
// BridgeService returns raw envelopes. Resource wraps one resource in a
// typed, paginated view:
//
//	type Post struct {
//	    ID    string `json:"id"`
//	    Title string `json:"title"`
//	}
//
//	posts := sdk.NewResource[Post](client.Bridge(), "posts", sdk.WithPageSize(20))
//	items, err := posts.Query(ctx, 1)
//	if posts.HasMore() {
//	    items, err = posts.LoadMore(ctx)
//	}
//
// # Schemas
//
// Registering a schema makes Create and Update validate locally first:
//
//	posts := sdk.NewSchema(sdk.SchemaConfig{
//	    Name: "posts",
//	    Fields: sdk.Fields{
//	        "title": sdk.String().Rules("min=3"),
//	        "draft": sdk.Boolean().Default(true),
//	    },
//	    Timestamps: true,
//	})
//	client.Bridge().RegisterSchema("posts", posts)
//
// # Error Handling
//
// Errors are *Error values that match the package sentinels with
// errors.Is:
//
//	_, err := client.Auth().Login(ctx, creds)
//	switch {
//	case sdk.IsAuthError(err):
//	    // wrong credentials
//	case errors.Is(err, sdk.ErrTimeout):
//	    // retry later
//	case sdk.IsValidationError(err):
//	    fields := sdk.FieldErrors(err)
//	}
//
// # Queries
//
// Execute serves fresh cached results and retries failures with a linear
// backoff. Cache keys are caller chosen; see QueryCache.
//
//	page, err := sdk.Execute(ctx, client.Query(), func(ctx context.Context) ([]Post, error) {
//	    return posts.Query(ctx, 1)
//	}, sdk.ExecuteOptions{CacheKey: "posts:1", Retry: 3})
package sdk
