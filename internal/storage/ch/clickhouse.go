package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseDB stores the library keys in a ReplacingMergeTree table.
// Every write appends a new version of the key; reads take the latest one.
type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see migrations/clickhouse)
	return nil
}

// Get returns the latest value of key
func (db *ClickHouseDB) Get(ctx context.Context, key string) (string, bool, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT argMax(value, version), argMax(deleted, version)
		FROM library_kv
		WHERE key = ?
		GROUP BY key`, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}

	var (
		value   string
		deleted uint8
	)
	if err := rows.Scan(&value, &deleted); err != nil {
		return "", false, fmt.Errorf("failed to scan key %s: %w", key, err)
	}
	if deleted == 1 {
		return "", false, nil
	}
	return value, true, nil
}

// Set appends a new version of key
func (db *ClickHouseDB) Set(ctx context.Context, key, value string) error {
	return db.write(ctx, key, value, 0)
}

// SetMany appends new versions of all keys as a single insert block,
// which ClickHouse applies atomically
func (db *ClickHouseDB) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO library_kv (key, value, deleted, version)")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	version := uint64(time.Now().UnixNano())
	for key, value := range values {
		if err := batch.Append(key, value, uint8(0), version); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append key %s: %w", key, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to write %d key(s): %w", len(values), err)
	}
	return nil
}

// Delete appends a tombstone version of key
func (db *ClickHouseDB) Delete(ctx context.Context, key string) error {
	return db.write(ctx, key, "", 1)
}

func (db *ClickHouseDB) write(ctx context.Context, key, value string, deleted uint8) error {
	err := db.conn.Exec(ctx, `INSERT INTO library_kv (key, value, deleted, version) VALUES (?, ?, ?, ?)`,
		key, value, deleted, uint64(time.Now().UnixNano()))
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
