package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
)

// seed creates a small Chinook-like database file in dir.
func seed(t *testing.T, dir, name string) {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(dir, name))
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE albums (
			AlbumId INTEGER PRIMARY KEY,
			Title   NVARCHAR(160) NOT NULL UNIQUE
		)`,
		`CREATE TABLE tracks (
			TrackId   INTEGER PRIMARY KEY,
			Name      NVARCHAR(200) NOT NULL,
			AlbumId   INTEGER REFERENCES albums (AlbumId),
			UnitPrice NUMERIC(10,2) NOT NULL DEFAULT 0.99
		)`,
		`INSERT INTO albums (AlbumId, Title) VALUES (1, 'For Those About To Rock'), (2, 'Balls to the Wall')`,
		`INSERT INTO tracks (TrackId, Name, AlbumId) VALUES (1, 'For Those About To Rock', 1), (2, 'Balls to the Wall', 2), (3, 'Fast As a Shark', 2)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
}

func open(t *testing.T) *Driver {
	t.Helper()
	dir := t.TempDir()
	seed(t, dir, "chinook.db")

	d, err := New(context.Background(), database.ConnectionConfig{
		Engine:   database.EngineSQLite,
		Filename: "chinook.db",
		Dir:      dir,
	})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestDriver_ListTables(t *testing.T) {
	d := open(t)

	tables, err := d.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"albums", "tracks"}, tables)
	assert.Equal(t, database.DialectSQLite, d.Dialect())
}

func TestDriver_InspectTable(t *testing.T) {
	d := open(t)

	info, err := d.InspectTable(context.Background(), "tracks")
	require.NoError(t, err)

	assert.Equal(t, []string{"TrackId"}, info.PrimaryKey)
	require.Len(t, info.Columns, 4)
	assert.Equal(t, "Name", info.Columns[1].Name)
	assert.Equal(t, "NVARCHAR(200)", info.Columns[1].DataType)
	assert.False(t, info.Columns[1].Nullable)
	require.NotNil(t, info.Columns[3].Default)
	assert.Equal(t, "0.99", *info.Columns[3].Default)
	require.Len(t, info.ForeignKeys, 1)
	assert.Equal(t, database.ForeignKey{Column: "AlbumId", RefTable: "albums", RefColumn: "AlbumId"}, *info.ForeignKeys[0])

	albums, err := d.InspectTable(context.Background(), "albums")
	require.NoError(t, err)
	assert.True(t, albums.Columns[1].IsUnique)
}

func TestHandle_TracksScenario(t *testing.T) {
	h := database.NewHandle(open(t), 0)

	schema, err := h.TableInfo(context.Background())
	require.NoError(t, err)
	assert.Contains(t, schema, `CREATE TABLE "tracks"`)
	assert.Contains(t, schema, `FOREIGN KEY("AlbumId") REFERENCES "albums" ("AlbumId")`)
	assert.NotContains(t, schema, "Fast As a Shark")

	res, err := h.Run(context.Background(), "SELECT COUNT(*) FROM tracks")
	require.NoError(t, err)
	assert.Equal(t, "[(3,)]", res.String())

	_, err = h.Run(context.Background(), "SELECT Foo FROM tracks")
	assert.True(t, errs.IsExecutionFailed(err))
}

func TestDriver_ReadOnly(t *testing.T) {
	d := open(t)

	rows, err := d.Query(context.Background(), "INSERT INTO albums (AlbumId, Title) VALUES (3, 'x')")
	if err == nil {
		_, err = database.ScanRows(rows)
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readonly")
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(context.Background(), database.ConnectionConfig{
		Engine:   database.EngineSQLite,
		Filename: "missing.db",
		Dir:      t.TempDir(),
	})
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestClassifySQLiteCode(t *testing.T) {
	tests := []struct {
		code int
		want errs.ErrKind
	}{
		{sqlite3.SQLITE_CANTOPEN, errs.ErrKindConnectionFailed},
		{sqlite3.SQLITE_NOTADB, errs.ErrKindConnectionFailed},
		{sqlite3.SQLITE_READONLY, errs.ErrKindPermissionDenied},
		{sqlite3.SQLITE_READONLY | 2<<8, errs.ErrKindPermissionDenied},
		{sqlite3.SQLITE_BUSY, errs.ErrKindTimeout},
		{sqlite3.SQLITE_ERROR, errs.ErrKindQueryFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifySQLiteCode(tt.code), "code %d", tt.code)
	}
}
