package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openDatabase(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&count)
	require.NoError(t, err)
	return count > 0
}

func TestApplyMigrations_Fresh(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))

	for _, name := range []string{
		"schema_version", "libraries", "versions", "pages", "documents",
		"documents_fts", "documents_vec", "documents_fts_ai", "documents_fts_ad",
		"idx_documents_vec_version", "idx_versions_status",
	} {
		assert.True(t, tableExists(t, db, name), "missing %s", name)
	}

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestApplyMigrations_OrderedAndLatestLast(t *testing.T) {
	assert.Equal(t, CurrentSchemaVersion, AllMigrations[len(AllMigrations)-1].Version)
}

func TestRollbackMigration(t *testing.T) {
	db := openRawDB(t)
	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, db))

	require.NoError(t, RollbackMigration(ctx, db))
	assert.False(t, tableExists(t, db, "idx_versions_status"))
	assert.True(t, tableExists(t, db, "documents"))

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	// Re-applying brings the schema back to current
	require.NoError(t, ApplyMigrations(ctx, db))
	assert.True(t, tableExists(t, db, "idx_versions_status"))

	require.NoError(t, RollbackMigration(ctx, db))
	require.NoError(t, RollbackMigration(ctx, db))
	assert.False(t, tableExists(t, db, "documents"))
	assert.False(t, tableExists(t, db, "schema_version"))
}

func TestFTSTrigger_IndexesPagePath(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	id, err := s.ResolveVersion(ctx, "lib", "1.0.0")
	require.NoError(t, err)
	addPage(t, s, id, "https://example.com/guide", chunk("plain body", "Configuration", "Environment"))

	var path, url string
	err = s.db.QueryRowContext(ctx, "SELECT path, url FROM documents_fts").Scan(&path, &url)
	require.NoError(t, err)
	assert.Equal(t, "Configuration / Environment", path)
	assert.Equal(t, "https://example.com/guide", url)

	// Matches on heading path even though the body doesn't mention it
	results, err := s.SearchText(ctx, id, `"environment"`, 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
