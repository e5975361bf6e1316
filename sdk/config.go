package sdk

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/pubflow/pubflow-go/sdk/platform"
	"github.com/pubflow/pubflow-go/sdk/storage"
)

// DefaultSessionKey is the storage key the session is persisted under.
const DefaultSessionKey = "pubflow_session"

// Config holds the configuration for the PubFlow client.
// Only BaseURL is required.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://api.example.com").
//	    WithTimeout(10 * time.Second).
//	    WithHeader("X-Tenant", "acme").
//	    WithDebug(true)
//
//	client, err := sdk.NewClient(config)
type Config struct {
	// BaseURL is the root every endpoint is appended to.
	BaseURL string

	// Storage replaces the runtime adapter's storage. Use it to persist
	// the session in Redis, PostgreSQL, an object store or the OS keyring.
	Storage storage.Storage

	// Runtime forces a runtime instead of detecting it.
	Runtime platform.Type

	// Adapter injects a ready adapter. It takes precedence over Runtime.
	Adapter platform.Adapter

	// Debug enables debug logging and request history.
	Debug bool

	// DefaultHeaders are sent with every request. Per-call headers
	// override them.
	DefaultHeaders map[string]string

	// ScheduledTaskSecret is forwarded as X-Scheduled-Task-Secret.
	ScheduledTaskSecret string

	// Timeout bounds requests that set no timeout of their own.
	// Zero means no client-side bound.
	Timeout time.Duration

	// Logger receives SDK logs. Default: a logrus logger at warn level,
	// or debug level when Debug is set.
	Logger logrus.FieldLogger

	// Observer for monitoring operations. If nil, NoopObserver is used.
	Observer Observer

	// Tracer creates request spans. Default: the global OpenTelemetry
	// provider's tracer.
	Tracer trace.Tracer

	// RateLimit caps outgoing requests per second. Zero disables it.
	RateLimit float64

	// RateBurst is the limiter burst. Default: 1.
	RateBurst int

	// EventPublisher receives auth lifecycle events.
	EventPublisher EventPublisher

	// SessionKey is the storage key of the session.
	// Default: "pubflow_session"
	SessionKey string

	// History is the number of requests kept for inspection. Zero
	// disables history unless Debug is set.
	History int
}

// DefaultConfig returns a Config with defaults for everything except
// BaseURL.
//
// Example:
//
//	config := sdk.DefaultConfig().WithBaseURL("https://api.example.com")
//	client, err := sdk.NewClient(config)
func DefaultConfig() *Config {
	return &Config{
		DefaultHeaders: make(map[string]string),
		Observer:       &NoopObserver{},
		SessionKey:     DefaultSessionKey,
	}
}

// WithBaseURL sets the base URL of the PubFlow backend.
func (c *Config) WithBaseURL(u string) *Config {
	c.BaseURL = u
	return c
}

// WithStorage overrides where client state is persisted.
//
// Example:
//
//	redisCfg, _ := storage.NewRedisConfigFromEnv()
//	redisStore, _ := storage.NewRedisStorage(ctx, redisCfg)
//	config := sdk.DefaultConfig().
//	    WithBaseURL(url).
//	    WithStorage(redisStore)
func (c *Config) WithStorage(s storage.Storage) *Config {
	c.Storage = s
	return c
}

// WithRuntime forces the runtime adapter type.
func (c *Config) WithRuntime(t platform.Type) *Config {
	c.Runtime = t
	return c
}

// WithAdapter injects a runtime adapter.
func (c *Config) WithAdapter(a platform.Adapter) *Config {
	c.Adapter = a
	return c
}

// WithDebug toggles debug logging and request history.
func (c *Config) WithDebug(debug bool) *Config {
	c.Debug = debug
	return c
}

// WithHeader adds a header sent with every request.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithHeader("X-API-Key", "your-api-key").
//	    WithHeader("X-Tenant-ID", "tenant-123")
func (c *Config) WithHeader(key, value string) *Config {
	if c.DefaultHeaders == nil {
		c.DefaultHeaders = make(map[string]string)
	}
	c.DefaultHeaders[key] = value
	return c
}

// WithScheduledTaskSecret sets the secret forwarded to the backend for
// scheduled jobs.
func (c *Config) WithScheduledTaskSecret(secret string) *Config {
	c.ScheduledTaskSecret = secret
	return c
}

// WithTimeout sets the default request timeout.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithLogger sets the SDK logger.
func (c *Config) WithLogger(l logrus.FieldLogger) *Config {
	c.Logger = l
	return c
}

// WithObserver sets a custom observer for monitoring SDK operations.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithTracer sets the tracer used for request spans.
func (c *Config) WithTracer(t trace.Tracer) *Config {
	c.Tracer = t
	return c
}

// WithRateLimit caps outgoing requests to rps per second with the given
// burst.
func (c *Config) WithRateLimit(rps float64, burst int) *Config {
	c.RateLimit = rps
	c.RateBurst = burst
	return c
}

// WithEventPublisher sets the auth event publisher.
//
// Example:
//
//	config := sdk.DefaultConfig().
//	    WithEventPublisher(sdk.EventFunc(func(ctx context.Context, e sdk.AuthEvent) error {
//	        log.Printf("auth event %s", e.Type)
//	        return nil
//	    }))
func (c *Config) WithEventPublisher(p EventPublisher) *Config {
	c.EventPublisher = p
	return c
}

// WithSessionKey changes the storage key of the session.
func (c *Config) WithSessionKey(key string) *Config {
	c.SessionKey = key
	return c
}

// WithHistory keeps the last n requests.
func (c *Config) WithHistory(n int) *Config {
	c.History = n
	return c
}

// Validate validates the configuration and sets defaults for missing values.
// This is called automatically by NewClient.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: malformed base URL %q", ErrInvalidConfig, c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.Runtime != "" {
		if _, err := platform.ParseType(string(c.Runtime)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.History < 0 {
		c.History = 0
	}
	if c.Debug && c.History == 0 {
		c.History = DefaultHistorySize
	}
	if c.SessionKey == "" {
		c.SessionKey = DefaultSessionKey
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		if c.Debug {
			l.SetLevel(logrus.DebugLevel)
		}
		c.Logger = l.WithField("component", "pubflow")
	}
	return nil
}

func (c *Config) limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), c.RateBurst)
}

// ConfigFromEnv builds a Config from PUBFLOW_* environment variables after
// loading the given dotenv files. With no files it loads ./.env when
// present. Variables already set in the environment win over the files.
//
// Recognized variables: PUBFLOW_BASE_URL, PUBFLOW_DEBUG, PUBFLOW_RUNTIME,
// PUBFLOW_TIMEOUT, PUBFLOW_SCHEDULED_TASK_SECRET, PUBFLOW_SESSION_KEY,
// PUBFLOW_RATE_LIMIT.
func ConfigFromEnv(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	cfg := DefaultConfig()
	cfg.BaseURL = os.Getenv("PUBFLOW_BASE_URL")
	cfg.Debug = getEnvBool("PUBFLOW_DEBUG", false)
	cfg.Runtime = platform.Type(os.Getenv("PUBFLOW_RUNTIME"))
	cfg.Timeout = parseDuration(os.Getenv("PUBFLOW_TIMEOUT"), 0)
	cfg.ScheduledTaskSecret = os.Getenv("PUBFLOW_SCHEDULED_TASK_SECRET")
	cfg.SessionKey = getEnvOrDefault("PUBFLOW_SESSION_KEY", DefaultSessionKey)
	if v := os.Getenv("PUBFLOW_RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: PUBFLOW_RATE_LIMIT: %v", ErrInvalidConfig, err)
		}
		cfg.RateLimit = rps
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// parseDuration accepts Go durations ("5s") and plain milliseconds ("5000").
func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
