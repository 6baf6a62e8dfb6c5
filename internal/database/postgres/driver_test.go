package postgres

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"undefined column", &pgconn.PgError{Code: "42703", Message: `column "foo" does not exist`}, errs.ErrKindQueryFailed},
		{"connection exception", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed},
		{"bad password", &pgconn.PgError{Code: "28P01"}, errs.ErrKindConnectionFailed},
		{"unknown database", &pgconn.PgError{Code: "3D000"}, errs.ErrKindConnectionFailed},
		{"read only transaction", &pgconn.PgError{Code: "25006"}, errs.ErrKindPermissionDenied},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound},
		{"canceled", context.Canceled, errs.ErrKindTimeout},
		{"network", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errs.KindOf(mapError(tt.err, "query failed")))
		})
	}
}

func TestMapError_KeepsServerMessage(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "42P01", Message: `relation "trackz" does not exist`}, "query failed")
	assert.Equal(t, `query failed: relation "trackz" does not exist`, errs.UserMessage(err))
	assert.Nil(t, mapError(nil, "x"))
}

func TestMapError_PassesThroughErrs(t *testing.T) {
	orig := errs.New(errs.ErrKindInvalidInput, "bad operator")
	assert.Same(t, orig, mapError(orig, "x"))
}

func TestPlainValue(t *testing.T) {
	id := [16]byte{0xde, 0xad, 0xbe, 0xef}
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"numeric", pgtype.Numeric{Int: big.NewInt(1234), Exp: -2, Valid: true}, database.Decimal("12.34")},
		{"numeric integer", pgtype.Numeric{Int: big.NewInt(3503), Valid: true}, database.Decimal("3503")},
		{"numeric null", pgtype.Numeric{}, nil},
		{"numeric nan", pgtype.Numeric{NaN: true, Valid: true}, database.Decimal("NaN")},
		{"uuid", id, "deadbeef-0000-0000-0000-000000000000"},
		{"int", int64(7), int64(7)},
		{"text", "AC/DC", "AC/DC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, plainValue(tt.in))
		})
	}
}

func TestPlainValue_RendersAsTuple(t *testing.T) {
	r := &database.Result{Rows: [][]any{{
		plainValue(pgtype.Numeric{Int: big.NewInt(1234), Exp: -2, Valid: true}),
		plainValue([16]byte{0xde, 0xad, 0xbe, 0xef}),
	}}}
	assert.Equal(t, "[(12.34, 'deadbeef-0000-0000-0000-000000000000')]", r.String())
}
