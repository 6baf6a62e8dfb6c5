package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/datchat/internal/server"
)

func newServeCommand(load func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve exposes POST /v1/ask (newline-delimited JSON events), GET /v1/tables,
GET /v1/health and GET /metrics. It stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}

			sc := a.cfg.Server
			hs := server.New(p, server.Config{
				Address:           sc.Address,
				ReadTimeout:       sc.ReadTimeout,
				WriteTimeout:      sc.WriteTimeout,
				IdleTimeout:       sc.IdleTimeout,
				AskTimeout:        a.cfg.AskTimeout(),
				RequestsPerSecond: sc.RequestsPerSecond,
				Burst:             sc.Burst,
			}, a.log).HTTPServer()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Infof("listening on %s", hs.Addr)
				if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
				defer cancel()
				a.log.Info("shutting down")
				return hs.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}
