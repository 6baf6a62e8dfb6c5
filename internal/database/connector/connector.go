// Package connector opens a database.Handle for any supported engine.
// It lives outside package database so the drivers can import database
// without a cycle.
package connector

import (
	"context"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/database/mysql"
	"github.com/koustreak/datchat/internal/database/postgres"
	"github.com/koustreak/datchat/internal/database/sqlite"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/filestore"
	"github.com/koustreak/datchat/internal/logger"
)

// NotFoundMessage is what users see when a database cannot be opened.
const NotFoundMessage = "Database could not be found. Please ensure database details are correct."

// Options carries the optional collaborators of Open.
type Options struct {
	// Store and SQLiteObject, when both set, fetch the SQLite file from the
	// object store into the configured directory before opening it.
	Store        filestore.Store
	SQLiteObject filestore.ObjectRef

	Logger *logger.Logger
}

// Open validates cfg, connects with the engine's driver and returns a Handle.
// Any failure after validation is reported as connection_failed.
func Open(ctx context.Context, cfg database.ConnectionConfig, opts Options) (*database.Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With().Str("engine", string(cfg.Engine)).Str("address", cfg.RedactedAddress()).Logger()

	conn, err := dial(ctx, cfg, opts, log)
	if err != nil {
		log.ErrorWith("database setup failed", err, nil)
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, NotFoundMessage, err)
	}

	log.Info("database connected")
	return database.NewHandle(conn, cfg.QueryTimeout).WithMaxRows(cfg.MaxResultRows), nil
}

func dial(ctx context.Context, cfg database.ConnectionConfig, opts Options, log *logger.Logger) (database.Conn, error) {
	switch cfg.Engine {
	case database.EngineSQLite:
		if opts.Store != nil && !opts.SQLiteObject.IsZero() {
			fetched, err := filestore.Download(ctx, opts.Store, opts.SQLiteObject, cfg.SQLitePath())
			if err != nil {
				return nil, err
			}
			if fetched {
				log.InfoWith("sqlite file downloaded", map[string]interface{}{
					"object": opts.SQLiteObject.String(),
					"path":   cfg.SQLitePath(),
				})
			}
		}
		return sqlite.New(ctx, cfg)
	case database.EnginePostgres:
		return postgres.New(ctx, cfg)
	case database.EngineMySQL:
		return mysql.New(ctx, cfg)
	default:
		return nil, errs.Newf(errs.ErrKindConfiguration, "unsupported database engine %q", cfg.Engine)
	}
}
