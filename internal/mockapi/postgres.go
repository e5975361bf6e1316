package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/pubflow/pubflow-go/sdk/storage"
)

const uniqueViolation = "23505"

// PostgresRecordStore keeps records as JSONB documents in one table keyed
// by (resource, id).
type PostgresRecordStore struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// NewPostgresRecordStore creates a new connection pool and the records
// table.
func NewPostgresRecordStore(ctx context.Context, cfg *storage.PostgresConfig) (*PostgresRecordStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Configure pool settings
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

	// Test connection
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPostgresRecordStoreFromPool(pool, "")
	s.owned = true
	if err := s.Migrate(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresRecordStoreFromPool uses an existing pool. table defaults to
// pubflow_records.
func NewPostgresRecordStoreFromPool(pool *pgxpool.Pool, table string) *PostgresRecordStore {
	if table == "" {
		table = "pubflow_records"
	}
	return &PostgresRecordStore{pool: pool, table: pq.QuoteIdentifier(table)}
}

// Migrate creates the records table.
func (s *PostgresRecordStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			resource   TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (resource, id)
		)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}
	return nil
}

// where builds the filter clause of q. Arguments start at $1 with the
// resource.
func (s *PostgresRecordStore) where(resource string, q ListQuery) (string, []any) {
	args := []any{resource}
	clauses := []string{"resource = $1"}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for k, v := range q.Filters {
		clauses = append(clauses, fmt.Sprintf("data->>%s = %s", next(k), next(v)))
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		clause := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_each(data) kv WHERE jsonb_typeof(kv.value) = 'string' AND kv.value #>> '{}' ILIKE %s",
			next(pattern))
		if len(q.Columns) > 0 {
			clause += fmt.Sprintf(" AND kv.key = ANY(%s)", next(q.Columns))
		}
		clauses = append(clauses, clause+")")
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List implements RecordStore.
func (s *PostgresRecordStore) List(ctx context.Context, resource string, q ListQuery) ([]Record, int, error) {
	where, args := s.where(resource, q)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.table, where)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	order := "id " + dir
	if q.OrderBy != "" && q.OrderBy != "id" {
		args = append(args, q.OrderBy)
		order = fmt.Sprintf("data->>$%d %s, id ASC", len(args), dir)
	}
	args = append(args, q.Limit, q.offset())
	query := fmt.Sprintf(`SELECT data FROM %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		s.table, where, order, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, q.Limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, 0, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, total, nil
}

// Get implements RecordStore.
func (s *PostgresRecordStore) Get(ctx context.Context, resource, id string) (Record, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE resource = $1 AND id = $2`, s.table)

	var data []byte
	if err := s.pool.QueryRow(ctx, query, resource, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord(data)
}

// Create implements RecordStore.
func (s *PostgresRecordStore) Create(ctx context.Context, resource string, rec Record) (Record, error) {
	rec = prepareRecord(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (resource, id, data) VALUES ($1, $2, $3)`, s.table)
	if _, err := s.pool.Exec(ctx, query, resource, rec.ID(), data); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	return rec, nil
}

// Update implements RecordStore. The patch is merged into the stored
// document and the id is kept.
func (s *PostgresRecordStore) Update(ctx context.Context, resource, id string, patch Record) (Record, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET data = data || $3::jsonb || jsonb_build_object('id', id),
			updated_at = NOW()
		WHERE resource = $1 AND id = $2
		RETURNING data`, s.table)

	var out []byte
	if err := s.pool.QueryRow(ctx, query, resource, id, data).Scan(&out); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return decodeRecord(out)
}

// Delete implements RecordStore.
func (s *PostgresRecordStore) Delete(ctx context.Context, resource, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE resource = $1 AND id = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, resource, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count implements RecordStore.
func (s *PostgresRecordStore) Count(ctx context.Context, resource string) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE resource = $1`, s.table)
	if err := s.pool.QueryRow(ctx, query, resource).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Health implements RecordStore.
func (s *PostgresRecordStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stats returns pool statistics
func (s *PostgresRecordStore) Stats() *pgxpool.Stat {
	return s.pool.Stat()
}

// Close closes the pool when the store opened it.
func (s *PostgresRecordStore) Close() {
	if s.owned {
		s.pool.Close()
	}
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
