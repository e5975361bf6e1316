package mockapi

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pubflow/pubflow-go/sdk/storage"
)

// Record store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds the mock backend configuration
type Config struct {
	// Server configuration
	Host            string
	Port            int
	RequestTimeout  int
	ShutdownTimeout int

	// RateLimit is the number of requests per minute allowed per client
	// IP. Zero disables limiting.
	RateLimit int

	// Auth configuration
	DemoPassword string
	SessionTTL   time.Duration
	// RequireSession rejects bridge requests without a valid session
	// cookie with 401.
	RequireSession bool
	// SweepInterval is how often expired sessions are dropped. Zero
	// disables the sweeper.
	SweepInterval time.Duration
	// TaskSecret, when set, must match X-Scheduled-Task-Secret on every
	// request that carries the header.
	TaskSecret string

	// Record storage
	Store    string
	Postgres *storage.PostgresConfig

	MetricsPath string
}

// DefaultConfig returns an in-memory configuration listening on :8080.
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		RequestTimeout:  30,
		ShutdownTimeout: 30,
		DemoPassword:    "pubflow",
		SessionTTL:      24 * time.Hour,
		SweepInterval:   5 * time.Minute,
		Store:           StoreMemory,
		MetricsPath:     "/metrics",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	cfg.Port = port

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = requestTimeout

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = shutdownTimeout

	rateLimit, err := strconv.Atoi(getEnvOrDefault("RATE_LIMIT", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}
	cfg.RateLimit = rateLimit

	ttl, err := time.ParseDuration(getEnvOrDefault("PUBFLOW_SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_SESSION_TTL: %w", err)
	}
	cfg.SessionTTL = ttl

	sweep, err := time.ParseDuration(getEnvOrDefault("PUBFLOW_SESSION_SWEEP_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_SESSION_SWEEP_INTERVAL: %w", err)
	}
	cfg.SweepInterval = sweep

	requireSession, err := strconv.ParseBool(getEnvOrDefault("PUBFLOW_REQUIRE_SESSION", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_REQUIRE_SESSION: %w", err)
	}
	cfg.RequireSession = requireSession

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.DemoPassword = getEnvOrDefault("PUBFLOW_DEMO_PASSWORD", cfg.DemoPassword)
	cfg.TaskSecret = os.Getenv("PUBFLOW_SCHEDULED_TASK_SECRET")
	cfg.MetricsPath = getEnvOrDefault("METRICS_PATH", cfg.MetricsPath)

	cfg.Store = getEnvOrDefault("PUBFLOW_RECORD_STORE", StoreMemory)
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		pg, err := storage.NewPostgresConfigFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Postgres = pg
	default:
		return nil, fmt.Errorf("invalid PUBFLOW_RECORD_STORE: %q", cfg.Store)
	}

	return cfg, nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
