package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/datchat/internal/config"
	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/database/connector"
	"github.com/koustreak/datchat/internal/filestore"
	"github.com/koustreak/datchat/internal/filestore/minio"
	"github.com/koustreak/datchat/internal/logger"
	"github.com/koustreak/datchat/internal/pipeline"
)

// app is what every command starts from: validated config, a logger and the
// resources to release on exit.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	closers []func()
}

func newApp(cmd *cobra.Command, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	var out io.Writer = cmd.ErrOrStderr()
	if cfg.Log.Dir != "" {
		f, err := logger.OpenSessionFile(cfg.Log.Dir, time.Now())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = f.Close() })
		out = io.MultiWriter(out, f)
	}
	a.log = logger.New(cfg.LoggerConfig(out))
	a.log.InfoWith("configuration loaded", cfg.Fields())
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// store opens the object store when the configuration reads from it.
func (a *app) store(ctx context.Context) (filestore.Store, error) {
	if !a.cfg.NeedsStore() {
		return nil, nil
	}
	d, err := minio.New(ctx, a.cfg.StoreConfig())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = d.Close() })
	return d, nil
}

// openDB connects to the configured database without any model setup.
func (a *app) openDB(ctx context.Context, store filestore.Store) (*database.Handle, error) {
	dbCfg, err := a.cfg.DatabaseConfig()
	if err != nil {
		return nil, err
	}
	h, err := connector.Open(ctx, dbCfg, connector.Options{
		Store:        store,
		SQLiteObject: a.cfg.SQLiteObject(),
		Logger:       a.log,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, h.Close)
	return h, nil
}

// pipeline builds the shared pipeline from the configuration.
func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	store, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	pc, err := a.cfg.PipelineConfig(ctx, store)
	if err != nil {
		return nil, err
	}
	return pipeline.Setup(ctx, pc, pipeline.Options{
		Logger: a.log,
		OpenDB: func(ctx context.Context) (database.DB, error) {
			h, err := a.openDB(ctx, store)
			if err != nil {
				return nil, err
			}
			return h, nil
		},
	})
}
