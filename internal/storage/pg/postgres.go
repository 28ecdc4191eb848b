package pg

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dialectPostgres = "postgres"
	tableKV         = "library_kv"
	colKey          = "key"
	colValue        = "value"
	colUpdatedAt    = "updated_at"
)

// PostgresDB stores the library keys in a single upserted table
type PostgresDB struct {
	pool    *pgxpool.Pool
	builder goqu.DialectWrapper
}

// NewPostgresDB opens a pgx pool for dsn and pings it
func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return &PostgresDB{
		pool:    pool,
		builder: goqu.Dialect(dialectPostgres),
	}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *PostgresDB) Initialize(ctx context.Context) error {
	return nil
}

// Get returns the value stored under key
func (db *PostgresDB) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := db.builder.
		From(tableKV).
		Select(colValue).
		Where(goqu.C(colKey).Eq(key)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return "", false, fmt.Errorf("failed to build query: %w", err)
	}

	var value string
	err = db.pool.QueryRow(ctx, query, args...).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key
func (db *PostgresDB) Set(ctx context.Context, key, value string) error {
	return db.upsert(ctx, map[string]string{key: value})
}

// SetMany upserts every key in one statement, so either all rows change or none
func (db *PostgresDB) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return db.upsert(ctx, values)
}

func (db *PostgresDB) upsert(ctx context.Context, values map[string]string) error {
	now := time.Now().UTC()
	rows := make([]interface{}, 0, len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		rows = append(rows, goqu.Record{colKey: key, colValue: values[key], colUpdatedAt: now})
	}

	query, args, err := db.builder.
		Insert(tableKV).
		Rows(rows...).
		OnConflict(goqu.DoUpdate(colKey, goqu.Record{
			colValue:     goqu.L("EXCLUDED." + colValue),
			colUpdatedAt: goqu.L("EXCLUDED." + colUpdatedAt),
		})).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build upsert: %w", err)
	}

	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set %d key(s): %w", len(values), err)
	}
	return nil
}

// Delete removes key
func (db *PostgresDB) Delete(ctx context.Context, key string) error {
	query, args, err := db.builder.
		Delete(tableKV).
		Where(goqu.C(colKey).Eq(key)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	if _, err := db.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close closes the pool
func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}
