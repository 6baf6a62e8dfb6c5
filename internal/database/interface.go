package database

import "context"

// DB is the database handle the pipeline talks to. It never imports the
// sqlite, postgres or mysql packages directly.
type DB interface {
	// Dialect names the SQL variant spoken by the engine ("sqlite", "postgresql", "mysql").
	Dialect() Dialect

	// UsableTableNames returns the user tables visible to this connection.
	UsableTableNames(ctx context.Context) ([]string, error)

	// TableInfo returns the schema text handed to the SQL generator:
	// CREATE TABLE statements for every usable table, without sample rows.
	TableInfo(ctx context.Context) (string, error)

	// Run executes query and returns every row it produced.
	Run(ctx context.Context, query string) (*Result, error)
}

// Conn is the contract each engine driver implements. Handle builds the
// DB behaviour on top of it.
type Conn interface {
	// Dialect names the SQL variant spoken by the engine.
	Dialect() Dialect

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// ListTables returns all user-defined table names.
	ListTables(ctx context.Context) ([]string, error)

	// InspectTable returns columns, primary key and foreign keys of one table.
	InspectTable(ctx context.Context, table string) (*TableInfo, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}
