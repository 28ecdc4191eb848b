package ch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"schoollibrary/internal/models"
	"schoollibrary/internal/storage"
)

// runMigrations manually runs ClickHouse migrations
func runMigrations(ctx context.Context, db *ClickHouseDB) error {
	_ = db.conn.Exec(ctx, "DROP TABLE IF EXISTS library_kv")

	return db.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS library_kv (
			key String,
			value String,
			deleted UInt8,
			version UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY key
	`)
}

// setupTestDB creates a test ClickHouse instance using testcontainers
func setupTestDB(t *testing.T) (*ClickHouseDB, func()) {
	if testing.Short() {
		t.Skip("skipping ClickHouse container test in short mode")
	}
	ctx := context.Background()

	// Start ClickHouse container
	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	db, err := NewClickHouseDB(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	// Run migrations manually (goose doesn't work well with ClickHouse)
	err = runMigrations(ctx, db)
	require.NoError(t, err, "Failed to run migrations")

	cleanup := func() {
		db.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return db, cleanup
}

// TestClickHouseDB_SetGet tests writing and reading a key
func TestClickHouseDB_SetGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, ok, err := db.Get(ctx, storage.KeyCurrentUser)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Set(ctx, storage.KeyCurrentUser, "Thoa"))

	value, ok, err := db.Get(ctx, storage.KeyCurrentUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Thoa", value)
}

// TestClickHouseDB_Overwrite tests that the latest version wins
func TestClickHouseDB_Overwrite(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	for _, model := range []string{"gemini-2.5-flash", "gemini-3-flash-preview", "gemini-3-pro-preview"} {
		require.NoError(t, db.Set(ctx, storage.KeyAIModel, model))
	}

	value, ok, err := db.Get(ctx, storage.KeyAIModel)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gemini-3-pro-preview", value)
}

// TestClickHouseDB_Delete tests tombstones
func TestClickHouseDB_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, db.Set(ctx, storage.KeyLoggedIn, "true"))
	require.NoError(t, db.Delete(ctx, storage.KeyLoggedIn))

	_, ok, err := db.Get(ctx, storage.KeyLoggedIn)
	require.NoError(t, err)
	assert.False(t, ok)

	// Key can be written again after deletion
	require.NoError(t, db.Set(ctx, storage.KeyLoggedIn, "true"))
	_, ok, err = db.Get(ctx, storage.KeyLoggedIn)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestClickHouseDB_Snapshot tests the catalog snapshot against a real server
func TestClickHouseDB_Snapshot(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	snap := storage.Snapshot{
		Books: []models.Book{
			{ID: "KH0001", Title: "Bài tập Toán nâng cao 10", Author: "Nguyễn Văn A", Category: models.CategoryScience, Total: 10, Available: 7},
		},
	}
	require.NoError(t, storage.Save(ctx, db, snap))

	loaded, err := storage.Load(ctx, db)
	require.NoError(t, err)
	assert.True(t, loaded.HasBooks)
	assert.True(t, loaded.HasLoans)
	assert.Equal(t, snap.Books, loaded.Books)
	assert.Empty(t, loaded.Loans)
}

// TestClickHouseDB_Close tests connection closing
func TestClickHouseDB_Close(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := db.Close()
	assert.NoError(t, err)
}

func TestClickHouseDB_SetMany(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, db.Set(ctx, storage.KeyBooks, "[]"))
	require.NoError(t, db.SetMany(ctx, map[string]string{
		storage.KeyBooks: `[{"id":"VH0001"}]`,
		storage.KeyLoans: `[{"id":"L1"}]`,
	}))

	books, ok, err := db.Get(ctx, storage.KeyBooks)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"VH0001"}]`, books)

	loans, ok, err := db.Get(ctx, storage.KeyLoans)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"L1"}]`, loans)
}
