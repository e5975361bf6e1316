package storage

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RedisConfig holds the connection settings for RedisStorage.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Prefix is prepended to every key.
	Prefix string
	// TTL expires keys after the given duration. Zero keeps them forever.
	TTL time.Duration

	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// NewRedisConfigFromEnv reads REDIS_* and PUBFLOW_STORAGE_* variables.
func NewRedisConfigFromEnv() (*RedisConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("REDIS_PORT", "6379"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}

	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	poolSize, err := strconv.Atoi(getEnvOrDefault("REDIS_POOL_SIZE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_POOL_SIZE: %w", err)
	}

	ttl, err := parseDuration(getEnvOrDefault("PUBFLOW_STORAGE_TTL", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBFLOW_STORAGE_TTL: %w", err)
	}

	return &RedisConfig{
		Host:         getEnvOrDefault("REDIS_HOST", "localhost"),
		Port:         port,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		Prefix:       getEnvOrDefault("PUBFLOW_STORAGE_PREFIX", "pubflow:"),
		TTL:          ttl,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
	}, nil
}

// Address returns host:port.
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PostgresConfig holds the connection settings for PostgresStorage.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Table defaults to pubflow_storage.
	Table string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPostgresConfigFromEnv reads POSTGRES_* variables.
func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}

	maxConns, err := strconv.ParseInt(getEnvOrDefault("POSTGRES_MAX_CONNS", "10"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_MAX_CONNS: %w", err)
	}

	return &PostgresConfig{
		Host:            getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("POSTGRES_USER", "pubflow"),
		Password:        getEnvOrDefault("POSTGRES_PASSWORD", "pubflow"),
		Database:        getEnvOrDefault("POSTGRES_DB", "pubflow"),
		Table:           getEnvOrDefault("PUBFLOW_STORAGE_TABLE", "pubflow_storage"),
		MaxConns:        int32(maxConns),
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}, nil
}

// ConnectionString returns a PostgreSQL URL.
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ObjectConfig configures ObjectStorage for any S3 compatible service
// (AWS S3, Cloudflare R2, DigitalOcean Spaces, MinIO).
type ObjectConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Prefix is the object key prefix, e.g. "pubflow/".
	Prefix string
	// PathStyle forces path-style addressing (MinIO).
	PathStyle bool
}

// NewObjectConfigFromEnv reads PUBFLOW_OBJECT_* variables.
func NewObjectConfigFromEnv() *ObjectConfig {
	pathStyle, _ := strconv.ParseBool(getEnvOrDefault("PUBFLOW_OBJECT_PATH_STYLE", "false"))
	return &ObjectConfig{
		Endpoint:  os.Getenv("PUBFLOW_OBJECT_ENDPOINT"),
		Region:    getEnvOrDefault("PUBFLOW_OBJECT_REGION", "auto"),
		Bucket:    os.Getenv("PUBFLOW_OBJECT_BUCKET"),
		AccessKey: os.Getenv("PUBFLOW_OBJECT_ACCESS_KEY"),
		SecretKey: os.Getenv("PUBFLOW_OBJECT_SECRET_KEY"),
		Prefix:    getEnvOrDefault("PUBFLOW_OBJECT_PREFIX", "pubflow/"),
		PathStyle: pathStyle,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration format: %s", s)
}
