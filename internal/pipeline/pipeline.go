// Package pipeline answers natural-language questions with SQL.
//
// A Pipeline is built once from a validated Config and shared. Each user (or
// HTTP request) gets its own Session, which owns the model endpoints and
// their sinks, and runs turns through this state machine:
//
//	GENERATING -> VALIDATING_SAFETY -> NORMALIZING -> TESTING -> SUCCEEDED
//	                    ^                                  |
//	                    +---------- REGENERATING <---------+
//
// Unsafe queries, endpoint failures and an exhausted regeneration budget end
// the turn in FAILED. Schema mode stops after VALIDATING_SAFETY and never
// executes anything.
package pipeline

import (
	"context"
	"net/http"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/guard"
	"github.com/koustreak/datchat/internal/llm"
	"github.com/koustreak/datchat/internal/logger"
	"github.com/koustreak/datchat/internal/stream"
)

// SchemaReadMessage is what users see when the schema of a connected
// database cannot be read.
const SchemaReadMessage = "The database schema could not be read."

// Options carries the collaborators of Setup.
type Options struct {
	Logger     *logger.Logger
	HTTPClient *http.Client

	// OpenDB connects to the live database. It is required in standard mode
	// and never called in schema mode.
	OpenDB func(ctx context.Context) (database.DB, error)
}

// Pipeline holds everything sessions share: the validated config, the
// database handle and its schema text. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	db        database.DB
	tableInfo string
	guard     *guard.Guard
	tester    *Tester
	client    *http.Client
	log       *logger.Logger
}

// Setup validates cfg and connects everything a turn needs. Checks run in
// order: config, prompts, model configs, optional endpoint probes, database.
// The first failure aborts setup and nothing is left open.
func Setup(ctx context.Context, cfg Config, opts Options) (*Pipeline, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Prompts.Validate(); err != nil {
		log.ErrorWith("prompt validation failed", err, nil)
		return nil, err
	}
	for _, m := range []llm.ModelConfig{cfg.SQLModel, cfg.ResponseModel} {
		if err := m.Validate(); err != nil {
			log.ErrorWith("model config rejected", err, map[string]interface{}{"model": m.Model})
			return nil, err
		}
	}

	p := &Pipeline{
		cfg:    cfg,
		guard:  guard.New(log),
		client: client,
		log:    log,
	}

	if cfg.VerifyEndpoints {
		if err := p.probe(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Mode == ModeSchema {
		p.tableInfo = cfg.SchemaText
		log.InfoWith("pipeline ready", map[string]interface{}{"mode": string(cfg.Mode)})
		return p, nil
	}

	if opts.OpenDB == nil {
		return nil, errs.New(errs.ErrKindConfiguration, "a database connection is required in standard mode")
	}
	db, err := opts.OpenDB(ctx)
	if err != nil {
		return nil, err
	}
	tableInfo, err := db.TableInfo(ctx)
	if err != nil {
		closeDB(db)
		log.ErrorWith("schema introspection failed", err, nil)
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, SchemaReadMessage, err)
	}

	p.db = db
	p.tableInfo = tableInfo
	p.tester = NewTester(db, log)
	log.InfoWith("pipeline ready", map[string]interface{}{
		"mode":    string(cfg.Mode),
		"dialect": string(db.Dialect()),
	})
	return p, nil
}

func (p *Pipeline) probe(ctx context.Context) error {
	targets := []struct {
		name string
		cfg  llm.ModelConfig
	}{
		{EndpointSQL, p.cfg.SQLModel},
		{EndpointResponse, p.cfg.ResponseModel},
	}
	for _, t := range targets {
		ep, err := llm.New(t.name, t.cfg, stream.Discard, llm.WithHTTPClient(p.client), llm.WithLogger(p.log))
		if err != nil {
			return err
		}
		if err := ep.Probe(ctx); err != nil {
			p.log.ErrorWith("endpoint probe failed", err, map[string]interface{}{"endpoint": t.name})
			return err
		}
	}
	return nil
}

// Mode returns the configured mode.
func (p *Pipeline) Mode() Mode { return p.cfg.Mode }

// DB returns the live database, or nil in schema mode.
func (p *Pipeline) DB() database.DB { return p.db }

// TableInfo returns the schema text given to the SQL generator.
func (p *Pipeline) TableInfo() string { return p.tableInfo }

// Close releases the database handle, if any.
func (p *Pipeline) Close() {
	if p.db != nil {
		closeDB(p.db)
	}
}

func closeDB(db database.DB) {
	if c, ok := db.(interface{ Close() }); ok {
		c.Close()
	}
}
