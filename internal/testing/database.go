package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/teranos/metagnosis/db"
)

// CreateTestDB creates a file-backed SQLite test database in t.TempDir()
// with the same pragmas and extensions as production.
// Automatically registers cleanup via t.Cleanup().
//
// A temp file is used rather than ":memory:" because every pooled
// connection to ":memory:" sees its own empty database.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// NewTestLock returns a fresh write lock for a test database.
func NewTestLock() *db.WriteLock {
	return db.NewWriteLock()
}
