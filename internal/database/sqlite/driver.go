// Package sqlite implements database.Conn on top of the pure-Go
// modernc.org/sqlite driver. Database files are always opened read-only.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
)

// Driver is a SQLite implementation of database.Conn backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// New opens the SQLite file named by cfg read-only and pings it.
// A missing file is a connection failure; it is never created.
func New(ctx context.Context, cfg database.ConnectionConfig) (*Driver, error) {
	cfg = cfg.WithDefaults()

	path := cfg.SQLitePath()
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, fmt.Sprintf("database file %s is not accessible", path), err)
	}

	db, err := sql.Open("sqlite", cfg.SQLiteDSN())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := NewFromDB(db)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	// Ping alone does not read the header, so touch the catalog as well.
	if _, err := d.ListTables(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// NewFromDB wraps an already opened *sql.DB.
func NewFromDB(db *sql.DB) *Driver {
	return &Driver{db: db}
}

// --- database.Conn implementation ---

func (d *Driver) Dialect() database.Dialect {
	return database.DialectSQLite
}

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return database.SQLRows(rows, mapError), nil
}

// ListTables returns user tables, skipping SQLite's internal sqlite_* tables.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	q, args, err := database.Select("sqlite_master", database.DialectSQLite).
		Columns("name").
		Where("type", "=", "table").
		Where("name", "NOT LIKE", "sqlite_%").
		OrderBy("name", database.Asc).
		Build()
	if err != nil {
		return nil, err
	}

	rows, err := d.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	return database.ScanStrings(rows)
}

func (d *Driver) InspectTable(ctx context.Context, table string) (*database.TableInfo, error) {
	columns, pks, err := d.fetchColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	uniques, err := d.fetchUniqueColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	fks, err := d.fetchForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	info := &database.TableInfo{
		Name:        table,
		Columns:     columns,
		PrimaryKey:  pks,
		ForeignKeys: fks,
	}
	info.MarkKeys(uniques)
	return info, nil
}

func (d *Driver) fetchColumns(ctx context.Context, table string) ([]*database.ColumnInfo, []string, error) {
	const q = `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	type pkCol struct {
		name string
		pos  int
	}
	var (
		cols  []*database.ColumnInfo
		pkPos []pkCol
	)
	for rows.Next() {
		var (
			c       database.ColumnInfo
			notNull bool
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.DataType, &notNull, &c.Default, &pk); err != nil {
			return nil, nil, mapError(err, "failed to scan column info")
		}
		c.Nullable = !notNull
		if pk > 0 {
			pkPos = append(pkPos, pkCol{c.Name, pk})
		}
		cols = append(cols, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, mapError(err, "error iterating columns")
	}

	// pk holds the 1-based position inside a composite key.
	sort.Slice(pkPos, func(i, j int) bool { return pkPos[i].pos < pkPos[j].pos })
	pks := make([]string, len(pkPos))
	for i, p := range pkPos {
		pks[i] = p.name
	}
	return cols, pks, nil
}

// fetchUniqueColumns returns columns covered by a single-column UNIQUE constraint.
func (d *Driver) fetchUniqueColumns(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT ii.name
		FROM pragma_index_list(?) il
		JOIN pragma_index_info(il.name) ii
		WHERE il."unique" = 1 AND il.origin = 'u'
		GROUP BY il.name
		HAVING count(*) = 1`

	rows, err := d.Query(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch unique columns")
	}
	return database.ScanStrings(rows)
}

func (d *Driver) fetchForeignKeys(ctx context.Context, table string) ([]*database.ForeignKey, error) {
	const q = `
		SELECT "from", "table", "to"
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	var fks []*database.ForeignKey
	for rows.Next() {
		fk := &database.ForeignKey{}
		var to sql.NullString
		if err := rows.Scan(&fk.Column, &fk.RefTable, &to); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fk.RefColumn = to.String
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating foreign keys")
	}
	return fks, nil
}

// --- error mapping ---

// mapError translates modernc sqlite errors into *errs.Error.
func mapError(err error, msg string) error {
	if mapped, ok := database.MapCommonError(err, msg); ok {
		return mapped
	}

	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		return errs.Wrap(classifySQLiteCode(liteErr.Code()), fmt.Sprintf("%s: %s", msg, liteErr.Error()), err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifySQLiteCode maps a (possibly extended) result code to ErrKind.
func classifySQLiteCode(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM:
		return errs.ErrKindConnectionFailed
	case sqlite3.SQLITE_READONLY:
		return errs.ErrKindPermissionDenied
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
