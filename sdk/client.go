package sdk

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
)

// Client is the entry point of the SDK. It wires one runtime adapter, one
// storage backend and one session slot into the auth, bridge and query
// services. All methods are safe for concurrent use.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://api.example.com"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ctx := context.Background()
//	if _, err := client.Auth().Login(ctx, sdk.Credentials{
//	    Email:    "ada@example.com",
//	    Password: "secret",
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	posts, err := client.Bridge().Query(ctx, "posts", &sdk.ListOptions{Limit: 20})
type Client interface {
	// Auth returns the session lifecycle service.
	Auth() *AuthService

	// Bridge returns the CRUD service for /bridge resources.
	Bridge() *BridgeService

	// HTTP returns the underlying request client.
	HTTP() *HTTPClient

	// Query returns the shared query cache.
	Query() *QueryCache

	// Storage returns the storage backend holding the session.
	Storage() storage.Storage

	// Runtime returns the adapter's runtime.
	Runtime() platform.Type

	// History returns the most recent requests, oldest first. It is empty
	// unless Debug or History is configured.
	History() []RequestRecord

	// Close releases the client. Requests issued afterwards fail with
	// ErrClientClosed. Close is safe to call multiple times.
	Close() error
}

type client struct {
	config   *Config
	adapter  platform.Adapter
	store    storage.Storage
	http     *HTTPClient
	sessions *SessionStore
	auth     *AuthService
	bridge   *BridgeService
	query    *QueryCache
	history  *RequestHistory

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client from config. A nil config is rejected since
// BaseURL has no default.
//
// The runtime adapter is Config.Adapter when set, otherwise it is built
// for Config.Runtime, otherwise for the detected runtime. Config.Storage
// replaces the adapter's storage.
func NewClient(config *Config) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	adapter, err := resolveAdapter(config)
	if err != nil {
		return nil, err
	}
	store := config.Storage
	if store == nil {
		store = adapter.Storage()
	}

	opts := []HTTPOption{
		WithDefaultHeaders(config.DefaultHeaders),
		WithTaskSecret(config.ScheduledTaskSecret),
		WithRequestTimeout(config.Timeout),
		WithHTTPLogger(config.Logger),
		WithHTTPObserver(config.Observer),
	}
	if l := config.limiter(); l != nil {
		opts = append(opts, WithRateLimiter(l))
	}
	if config.Tracer != nil {
		opts = append(opts, WithHTTPTracer(config.Tracer))
	}
	var history *RequestHistory
	if config.History > 0 {
		history = NewRequestHistory(config.History)
		opts = append(opts, WithRequestHistory(history))
	}

	hc := NewHTTPClient(config.BaseURL, adapter, opts...)
	sessions := NewSessionStore(store, config.SessionKey, config.Logger, config.Observer)
	hc.OnUnauthorized(func(ctx context.Context) {
		if err := sessions.Clear(ctx); err != nil {
			config.Logger.WithError(err).Warn("Failed to clear session after 401")
		}
	})

	c := &client{
		config:   config,
		adapter:  adapter,
		store:    store,
		http:     hc,
		sessions: sessions,
		auth:     NewAuthService(hc, sessions, config.EventPublisher, config.Logger),
		bridge:   NewBridgeService(hc),
		query:    NewQueryCache(WithCacheObserver(config.Observer)),
		history:  history,
	}

	config.Logger.WithFields(logrus.Fields{
		"runtime":  adapter.Type(),
		"base_url": config.BaseURL,
	}).Debug("PubFlow client ready")
	return c, nil
}

func resolveAdapter(config *Config) (platform.Adapter, error) {
	if config.Adapter != nil {
		return config.Adapter, nil
	}
	runtime := config.Runtime
	if runtime == "" {
		runtime = platform.DetectRuntime()
	}
	opts := []platform.Option{platform.WithLogger(config.Logger)}
	if config.Storage != nil {
		opts = append(opts, platform.WithStorage(config.Storage))
	}
	adapter, err := platform.New(runtime, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return adapter, nil
}

func (c *client) Auth() *AuthService       { return c.auth }
func (c *client) Bridge() *BridgeService   { return c.bridge }
func (c *client) HTTP() *HTTPClient        { return c.http }
func (c *client) Query() *QueryCache       { return c.query }
func (c *client) Storage() storage.Storage { return c.store }
func (c *client) Runtime() platform.Type   { return c.adapter.Type() }

func (c *client) History() []RequestRecord {
	if c.history == nil {
		return nil
	}
	return c.history.Requests()
}

// Close closes the client and releases resources.
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.http.Close()
	c.query.Clear()
	return nil
}
