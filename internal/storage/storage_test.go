package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourmate-bot/internal/models"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func id(v int64) *int64 { return &v }

func TestRosterReplaceAndLoad(t *testing.T) {
	db := openTemp(t)

	in := []models.Record{
		{UserID: id(1), Name: "Anna", LastName: "Ivanova", Birthday: "5.3", Status: "active", Username: "anna", Interacted: true},
		{Name: "Boris", Birthday: "29.2", Status: "-"},
	}
	require.NoError(t, db.ReplaceRoster(in))

	out, err := db.LoadRoster()
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NoError(t, db.ReplaceRoster(in[1:]))
	out, err = db.LoadRoster()
	require.NoError(t, err)
	assert.Equal(t, in[1:], out)

	n, err := db.RosterSize()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRosterReplaceIsAtomic(t *testing.T) {
	db := openTemp(t)
	good := []models.Record{{UserID: id(1), Name: "Anna", Birthday: "5.3", Status: "active"}}
	require.NoError(t, db.ReplaceRoster(good))

	// the trigger aborts on the second row, after the first one was inserted
	_, err := db.Exec(`CREATE TRIGGER reject_bad BEFORE INSERT ON roster
        WHEN NEW.name = 'bad' BEGIN SELECT RAISE(ABORT, 'bad row'); END`)
	require.NoError(t, err)

	err = db.ReplaceRoster([]models.Record{
		{Name: "Carl", Birthday: "1.1", Status: "active"},
		{Name: "bad", Birthday: "1.1", Status: "active"},
	})
	require.Error(t, err)

	out, err := db.LoadRoster()
	require.NoError(t, err)
	assert.Equal(t, good, out)
}

func TestKV(t *testing.T) {
	db := openTemp(t)

	_, ok, err := db.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	l, written, err := db.Ledger()
	require.NoError(t, err)
	assert.Empty(t, l)
	assert.True(t, written.IsZero())

	day := time.Date(2025, time.March, 6, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.SetLedger("5.3", day.AddDate(0, 0, -1)))
	require.NoError(t, db.SetLedger("6.3", day))
	l, written, err = db.Ledger()
	require.NoError(t, err)
	assert.Equal(t, "6.3", l)
	assert.True(t, day.Equal(written))

	pin, err := db.PinnedMessageID()
	require.NoError(t, err)
	assert.Zero(t, pin)

	require.NoError(t, db.SetPinnedMessageID(777))
	pin, err = db.PinnedMessageID()
	require.NoError(t, err)
	assert.Equal(t, 777, pin)

	require.NoError(t, db.ClearPinnedMessageID())
	pin, err = db.PinnedMessageID()
	require.NoError(t, err)
	assert.Zero(t, pin)
}

func TestOptInSnapshot(t *testing.T) {
	db := openTemp(t)

	snap, err := db.OptInSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)

	want := []models.OptInMember{{ID: 1, Username: "anna"}, {ID: 2}}
	require.NoError(t, db.SetOptInSnapshot(want))
	snap, err = db.OptInSnapshot()
	require.NoError(t, err)
	assert.Equal(t, want, snap)

	require.NoError(t, db.SetOptInSnapshot(nil))
	snap, err = db.OptInSnapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.SetLedger("1.1", time.Now()))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()
	l, _, err := db.Ledger()
	require.NoError(t, err)
	assert.Equal(t, "1.1", l)
}
