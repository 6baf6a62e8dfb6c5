package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/koustreak/datchat/internal/errs"
)

// ErrorMapper translates a native driver error into *errs.Error, using msg as
// the message.
type ErrorMapper func(err error, msg string) error

// SQLRows adapts *sql.Rows to Rows. Iteration errors go through mapErr.
func SQLRows(rows *sql.Rows, mapErr ErrorMapper) Rows {
	return &sqlRows{rows: rows, mapErr: mapErr}
}

type sqlRows struct {
	rows   *sql.Rows
	mapErr ErrorMapper
}

func (r *sqlRows) Next() bool                 { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqlRows) Close()                     { _ = r.rows.Close() }
func (r *sqlRows) Err() error                 { return r.mapErr(r.rows.Err(), "error during row iteration") }

// MapCommonError handles what every driver maps the same way: errors that
// are already *errs.Error, cancellation and deadlines, and no-rows. When ok
// is false the driver classifies err itself.
func MapCommonError(err error, msg string, noRows ...error) (mapped error, ok bool) {
	if err == nil {
		return nil, true
	}

	var already *errs.Error
	if errors.As(err, &already) {
		return err, true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err), true
	}

	for _, target := range append(noRows, sql.ErrNoRows) {
		if errors.Is(err, target) {
			return errs.Wrap(errs.ErrKindNotFound, msg, err), true
		}
	}
	return nil, false
}
