package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openMemoryDB(t)

	err := Migrate(db, nil)
	require.NoError(t, err)

	for _, table := range []string{"jobs", "notification_dedup", "reminders", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemoryDB(t)

	require.NoError(t, Migrate(db, nil))
	require.NoError(t, Migrate(db, nil))

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestDedupUniqueKeyEnforced(t *testing.T) {
	db := openMemoryDB(t)
	require.NoError(t, Migrate(db, nil))

	_, err := db.Exec(
		"INSERT INTO notification_dedup (subject_id, source, source_event_id, logged_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		"owner-1", "github", "evt-1")
	require.NoError(t, err)

	_, err = db.Exec(
		"INSERT INTO notification_dedup (subject_id, source, source_event_id, logged_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		"owner-1", "github", "evt-1")
	assert.Error(t, err, "duplicate composite key must violate the primary key")
}
