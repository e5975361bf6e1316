// Package testutil starts the backing services integration tests run
// against.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pubflow/pubflow-go/sdk/storage"
)

const (
	postgresDB       = "testdb"
	postgresUser     = "testuser"
	postgresPassword = "testpass"
)

// TestContainers holds all test containers
type TestContainers struct {
	PostgresContainer testcontainers.Container
	RedisContainer    testcontainers.Container
	NATSContainer     testcontainers.Container
	PostgresURL       string
	NATSURL           string

	postgresHost string
	postgresPort int
	redisHost    string
	redisPort    int
}

// StartContainers starts all required containers for testing
func StartContainers(ctx context.Context) (*TestContainers, error) {
	tc := &TestContainers{}

	// Start PostgreSQL
	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase(postgresDB),
		postgres.WithUsername(postgresUser),
		postgres.WithPassword(postgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}
	tc.PostgresContainer = pgContainer

	tc.postgresHost, tc.postgresPort, err = endpoint(ctx, pgContainer, "5432/tcp")
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to resolve postgres endpoint: %w", err)
	}
	tc.PostgresURL = tc.PostgresConfig().ConnectionString()

	// Start Redis
	redisContainer, err := redis.Run(ctx, "redis:7-alpine",
		redis.WithLogLevel(redis.LogLevelVerbose),
	)
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}
	tc.RedisContainer = redisContainer

	tc.redisHost, tc.redisPort, err = endpoint(ctx, redisContainer, "6379/tcp")
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to resolve redis endpoint: %w", err)
	}

	// Start NATS with JetStream
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to start nats container: %w", err)
	}
	tc.NATSContainer = natsContainer

	natsHost, natsPort, err := endpoint(ctx, natsContainer, "4222/tcp")
	if err != nil {
		tc.Cleanup(ctx)
		return nil, fmt.Errorf("failed to resolve nats endpoint: %w", err)
	}
	tc.NATSURL = fmt.Sprintf("nats://%s:%d", natsHost, natsPort)

	return tc, nil
}

func endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) (string, int, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", 0, err
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return "", 0, err
	}
	return host, p, nil
}

// PostgresConfig returns a storage configuration for the postgres
// container.
func (tc *TestContainers) PostgresConfig() *storage.PostgresConfig {
	return &storage.PostgresConfig{
		Host:            tc.postgresHost,
		Port:            tc.postgresPort,
		User:            postgresUser,
		Password:        postgresPassword,
		Database:        postgresDB,
		Table:           "pubflow_storage",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// RedisConfig returns a storage configuration for the redis container.
func (tc *TestContainers) RedisConfig() *storage.RedisConfig {
	return &storage.RedisConfig{
		Host:         tc.redisHost,
		Port:         tc.redisPort,
		Prefix:       "pubflow-test:",
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// Cleanup terminates all containers
func (tc *TestContainers) Cleanup(ctx context.Context) error {
	var errs []error

	if tc.PostgresContainer != nil {
		if err := tc.PostgresContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate postgres: %w", err))
		}
	}

	if tc.RedisContainer != nil {
		if err := tc.RedisContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate redis: %w", err))
		}
	}

	if tc.NATSContainer != nil {
		if err := tc.NATSContainer.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate nats: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}

	return nil
}
