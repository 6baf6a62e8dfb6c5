package connector

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
)

func TestOpen_SQLite(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "chinook.db"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE tracks (TrackId INTEGER PRIMARY KEY, Name TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	h, err := Open(context.Background(), database.ConnectionConfig{
		Engine:   database.EngineSQLite,
		Filename: "chinook.db",
		Dir:      dir,
	}, Options{})
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, database.DialectSQLite, h.Dialect())
	names, err := h.UsableTableNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tracks"}, names)
}

func TestOpen_MissingDatabase(t *testing.T) {
	_, err := Open(context.Background(), database.ConnectionConfig{
		Engine:   database.EngineSQLite,
		Filename: "nope.db",
		Dir:      t.TempDir(),
	}, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.Equal(t, NotFoundMessage, errs.UserMessage(err))
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), database.ConnectionConfig{Engine: database.EnginePostgres}, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
}
