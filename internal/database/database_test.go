package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"volunteers", "skills", "interests", "opportunities", "opportunity_skills", "opportunity_interests", "rsvps", "hour_logs", "push_subscriptions", "reminders_sent"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	v, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestOpenEnablesForeignKeys(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var on int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)

	_, err = db.Exec(`INSERT INTO rsvps (volunteer_id, opportunity_id, status, rsvp_at) VALUES (1, 999, 'pending', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volunteerd.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	v, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "a.db?"+dsnParams, dsn("a.db"))
	assert.Equal(t, "file:a.db?mode=rwc&"+dsnParams, dsn("file:a.db?mode=rwc"))
}
