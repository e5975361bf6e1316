package events

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the NATS settings of the auth event publisher.
type Config struct {
	// NATS connection settings
	URL      string
	Name     string
	User     string
	Password string

	// SubjectPrefix is prepended to every event subject, e.g.
	// "pubflow.auth" yields "pubflow.auth.login".
	SubjectPrefix string

	// JetStream settings. With JetStream disabled events are published
	// on core NATS and are lost when nobody listens.
	JetStream      bool
	StreamName     string
	StreamMaxAge   time.Duration
	StreamReplicas int

	// PublishTimeout bounds one publish when the caller's context has no
	// deadline.
	PublishTimeout time.Duration
}

// DefaultConfig returns a configuration for a local NATS server.
func DefaultConfig() *Config {
	return &Config{
		URL:            "nats://localhost:4222",
		Name:           "pubflow",
		SubjectPrefix:  "pubflow.auth",
		StreamName:     "PUBFLOW_AUTH",
		StreamMaxAge:   24 * time.Hour,
		StreamReplicas: 1,
		PublishTimeout: 5 * time.Second,
	}
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	cfg.URL = getEnvOrDefault("PUBFLOW_NATS_URL", cfg.URL)
	cfg.Name = getEnvOrDefault("PUBFLOW_NATS_NAME", cfg.Name)
	cfg.User = os.Getenv("PUBFLOW_NATS_USER")
	cfg.Password = os.Getenv("PUBFLOW_NATS_PASSWORD")
	cfg.SubjectPrefix = getEnvOrDefault("PUBFLOW_NATS_SUBJECT_PREFIX", cfg.SubjectPrefix)
	cfg.StreamName = getEnvOrDefault("PUBFLOW_NATS_STREAM", cfg.StreamName)

	jetStream, err := strconv.ParseBool(getEnvOrDefault("PUBFLOW_NATS_JETSTREAM", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_NATS_JETSTREAM: %w", err)
	}
	cfg.JetStream = jetStream

	replicas, err := strconv.Atoi(getEnvOrDefault("PUBFLOW_NATS_STREAM_REPLICAS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_NATS_STREAM_REPLICAS: %w", err)
	}
	cfg.StreamReplicas = replicas

	maxAge, err := time.ParseDuration(getEnvOrDefault("PUBFLOW_NATS_STREAM_MAX_AGE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_NATS_STREAM_MAX_AGE: %w", err)
	}
	cfg.StreamMaxAge = maxAge

	timeout, err := time.ParseDuration(getEnvOrDefault("PUBFLOW_NATS_PUBLISH_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_NATS_PUBLISH_TIMEOUT: %w", err)
	}
	cfg.PublishTimeout = timeout

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
