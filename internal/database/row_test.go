package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datchat/internal/errs"
)

func passthrough(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func TestResult_String(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{"single cell", &Result{Columns: []string{"count"}, Rows: [][]any{{int64(3503)}}}, "[(3503,)]"},
		{"no rows", &Result{Columns: []string{"x"}, Rows: [][]any{}}, "[]"},
		{"nil result", nil, "[]"},
		{
			"mixed values",
			&Result{
				Columns: []string{"id", "name", "price", "active", "note"},
				Rows: [][]any{
					{int64(1), "AC/DC", 0.99, true, nil},
					{int64(2), "Guns N' Roses", 1.5, false, []byte("x")},
				},
			},
			`[(1, 'AC/DC', 0.99, True, None), (2, 'Guns N\' Roses', 1.5, False, 'x')]`,
		},
		{
			"decimal and valuers",
			&Result{
				Columns: []string{"avg", "composer", "album"},
				Rows: [][]any{
					{Decimal("12.34"), sql.NullString{String: "Angus Young", Valid: true}, sql.NullInt64{}},
				},
			},
			"[(12.34, 'Angus Young', None)]",
		},
		{
			"long text is cut",
			&Result{Columns: []string{"lyrics"}, Rows: [][]any{{strings.Repeat("a", MaxStringLength+10)}}},
			"[('" + strings.Repeat("a", MaxStringLength) + "...',)]",
		},
		{
			"timestamp",
			&Result{Columns: []string{"at"}, Rows: [][]any{{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}}},
			"[('2024-01-02T03:04:05Z',)]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.String())
		})
	}
}

func TestResult_Maps(t *testing.T) {
	r := &Result{Columns: []string{"id", "name"}, Rows: [][]any{{int64(1), "a"}}}
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "a"}}, r.Maps())
	assert.Equal(t, 1, r.Len())
}

func TestScanRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"ArtistId", "Name"}).
			AddRow(int64(1), []byte("AC/DC")).
			AddRow(int64(2), "Accept"),
	)

	rows, err := db.Query("SELECT ArtistId, Name FROM artists")
	require.NoError(t, err)

	result, err := ScanRows(SQLRows(rows, passthrough))
	require.NoError(t, err)
	assert.Equal(t, []string{"ArtistId", "Name"}, result.Columns)
	assert.Equal(t, [][]any{{int64(1), "AC/DC"}, {int64(2), "Accept"}}, result.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRowsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"TrackId"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)),
	)
	rows, err := db.Query("SELECT TrackId FROM tracks")
	require.NoError(t, err)

	result, err := ScanRowsLimit(SQLRows(rows, passthrough), 2)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}, {int64(2)}}, result.Rows)
	assert.True(t, result.Truncated)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"TrackId"}).AddRow(int64(1)).AddRow(int64(2)),
	)
	rows, err = db.Query("SELECT TrackId FROM tracks")
	require.NoError(t, err)

	result, err = ScanRowsLimit(SQLRows(rows, passthrough), 2)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.False(t, result.Truncated, "exactly at the limit")
}

func TestScanRows_IterationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			RowError(0, errors.New("disk I/O error")),
	)

	rows, err := db.Query("SELECT id FROM t")
	require.NoError(t, err)

	_, err = ScanRows(SQLRows(rows, passthrough))
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestScanStrings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("albums").AddRow("tracks"))

	rows, err := db.Query("SELECT name FROM sqlite_master")
	require.NoError(t, err)

	names, err := ScanStrings(SQLRows(rows, passthrough))
	require.NoError(t, err)
	assert.Equal(t, []string{"albums", "tracks"}, names)
}

func TestMapCommonError(t *testing.T) {
	errDriverNoRows := errors.New("driver: no rows")
	mapped := errs.New(errs.ErrKindConnectionFailed, "already mapped")

	tests := []struct {
		name   string
		err    error
		wantOK bool
		kind   errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, true, errs.ErrKindTimeout},
		{"canceled", context.Canceled, true, errs.ErrKindTimeout},
		{"sql no rows", sql.ErrNoRows, true, errs.ErrKindNotFound},
		{"driver no rows", errDriverNoRows, true, errs.ErrKindNotFound},
		{"already mapped", mapped, true, errs.ErrKindConnectionFailed},
		{"driver specific", errors.New("syntax error"), false, errs.ErrKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MapCommonError(tt.err, "query failed", errDriverNoRows)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.kind, errs.KindOf(got))
			} else {
				assert.Nil(t, got)
			}
		})
	}

	got, ok := MapCommonError(nil, "x")
	assert.True(t, ok)
	assert.Nil(t, got)
	got, _ = MapCommonError(mapped, "x")
	assert.Same(t, mapped, got)
}
