package db

import (
	"path/filepath"
	"testing"
)

// setupTestDB creates a migrated database in a temporary directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}
