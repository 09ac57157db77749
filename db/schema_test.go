package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
-- items waiting for work
CREATE TABLE IF NOT EXISTS item (
    id TEXT PRIMARY KEY,
    processed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_item_processed ON item(processed);
`

func schemaSnapshot(t *testing.T, q Querier) []string {
	t.Helper()
	rows, err := q.QueryContext(context.Background(),
		"SELECT type || ':' || name || ':' || COALESCE(sql, '') FROM sqlite_master WHERE name NOT LIKE 'sqlite_%' ORDER BY name")
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestApplySchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	database, err := Open(filepath.Join(t.TempDir(), "schema.db"), nil)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, ApplySchema(ctx, database, testSchema, nil))
	first := schemaSnapshot(t, database)
	require.Len(t, first, 2)

	require.NoError(t, ApplySchema(ctx, database, testSchema, nil))
	assert.Equal(t, first, schemaSnapshot(t, database))
}

func TestApplySchema_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	database, err := Open(filepath.Join(t.TempDir(), "bad.db"), nil)
	require.NoError(t, err)
	defer database.Close()

	err = ApplySchema(ctx, database, "CREATE TABLE ok_table (id TEXT); CREATE TABLEX broken;", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2")
	assert.Empty(t, schemaSnapshot(t, database))
}

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(testSchema + "\n;;  \n")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS item")
	assert.NotContains(t, stmts[0], "items waiting")
	assert.Empty(t, SplitStatements("  -- nothing\n"))
}
