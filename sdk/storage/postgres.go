package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// PostgresStorage keeps values in a single key/value table.
type PostgresStorage struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// NewPostgresStorage opens a connection pool and creates the table if needed.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres config cannot be nil")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPostgresStorageFromPool(pool, cfg.Table)
	s.owned = true
	if err := s.EnsureSchema(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStorageFromPool uses an existing pool. The caller keeps
// ownership of the pool and must call EnsureSchema itself.
func NewPostgresStorageFromPool(pool *pgxpool.Pool, table string) *PostgresStorage {
	if table == "" {
		table = "pubflow_storage"
	}
	return &PostgresStorage{pool: pool, table: pq.QuoteIdentifier(table)}
}

// EnsureSchema creates the backing table.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create storage table: %w", err)
	}
	return nil
}

// Get implements Storage.
func (p *PostgresStorage) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.table)

	var value string
	err := p.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, newError("postgres", "get", key, true, err)
	}
	return value, true, nil
}

// Set implements Storage.
func (p *PostgresStorage) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`, p.table)

	if _, err := p.pool.Exec(ctx, query, key, value); err != nil {
		return newError("postgres", "set", key, true, err)
	}
	return nil
}

// Remove implements Storage.
func (p *PostgresStorage) Remove(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, p.table)
	if _, err := p.pool.Exec(ctx, query, key); err != nil {
		return newError("postgres", "remove", key, true, err)
	}
	return nil
}

// Close releases the pool when it was opened by NewPostgresStorage.
func (p *PostgresStorage) Close() {
	if p.owned {
		p.pool.Close()
	}
}
