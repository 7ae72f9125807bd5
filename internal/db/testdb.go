package db

import (
	"testing"

	"github.com/jmoiron/sqlx"
)

// NewTestDB returns an empty in-memory SQLite store with the current schema.
// It is closed when the test ends.
func NewTestDB(t testing.TB) *sqlx.DB {
	t.Helper()

	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := EnsureSchema(database); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}
	return database
}
