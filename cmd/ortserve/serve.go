package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/onnxgo/ortserve/internal/httpapi"
	"github.com/onnxgo/ortserve/internal/modelsvc"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a model over HTTP",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := activeCfg
			if cfg.ModelPath == "" {
				return errors.New("a model path is required (--model or config file)")
			}

			if err := initRuntime(cfg); err != nil {
				return err
			}

			sess, engine, err := openSession(cfg)
			if err != nil {
				return err
			}

			svc := modelsvc.New(engine, sess, logger)
			defer svc.Close()

			httpapi.SetLogger(logger)
			mux := httpapi.NewMux(svc, cfg.CORSOrigins)
			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().
					Str("addr", cfg.Addr).
					Str("model", cfg.ModelPath).
					Strs("providers", sess.Providers()).
					Msg("listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("graceful shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
}
