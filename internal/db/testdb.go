package db

import (
	"database/sql"
	"testing"
)

// NewTestDB creates an in-memory SQLite database with the full schema
// applied, for use by other packages' tests. Closed automatically when the
// test ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Open("file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}
