package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koustreak/datchat/internal/errs"
)

// Handle adapts a driver Conn to DB. Introspection runs once and the rendered
// schema text is cached for the handle's lifetime.
// It is safe for concurrent use by multiple goroutines.
type Handle struct {
	conn         Conn
	queryTimeout time.Duration
	maxRows      int

	schemaOnce sync.Once
	schemaText string
	schemaErr  error
}

// NewHandle wraps conn. A zero queryTimeout leaves deadlines to the caller.
func NewHandle(conn Conn, queryTimeout time.Duration) *Handle {
	return &Handle{conn: conn, queryTimeout: queryTimeout}
}

// WithMaxRows caps how many rows Run keeps; the Result is marked Truncated
// when more were available. Zero keeps every row.
func (h *Handle) WithMaxRows(n int) *Handle {
	h.maxRows = n
	return h
}

// Dialect implements DB.
func (h *Handle) Dialect() Dialect {
	return h.conn.Dialect()
}

// Ping verifies the database is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	return h.conn.Ping(ctx)
}

// Close releases the underlying connection pool.
func (h *Handle) Close() {
	h.conn.Close()
}

// UsableTableNames implements DB.
func (h *Handle) UsableTableNames(ctx context.Context) ([]string, error) {
	return h.conn.ListTables(ctx)
}

// Inspect introspects every usable table.
// This is expensive; TableInfo caches its rendered form.
func (h *Handle) Inspect(ctx context.Context) (*Schema, error) {
	tables, err := h.conn.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	schema := &Schema{Tables: make(map[string]*TableInfo, len(tables))}
	for _, name := range tables {
		info, err := h.conn.InspectTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspecting table %q: %w", name, err)
		}
		schema.Tables[name] = info
	}
	return schema, nil
}

// TableInfo implements DB.
func (h *Handle) TableInfo(ctx context.Context) (string, error) {
	h.schemaOnce.Do(func() {
		schema, err := h.Inspect(ctx)
		if err != nil {
			h.schemaErr = err
			return
		}
		h.schemaText = schema.Render(h.conn.Dialect())
	})
	return h.schemaText, h.schemaErr
}

// Run implements DB. Every failure is reported as execution_failed with the
// driver error kept as the cause.
func (h *Handle) Run(ctx context.Context, query string) (*Result, error) {
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	rows, err := h.conn.Query(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindExecutionFailed, "query could not be executed", err)
	}
	result, err := ScanRowsLimit(rows, h.maxRows)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindExecutionFailed, "query could not be executed", err)
	}
	return result, nil
}
