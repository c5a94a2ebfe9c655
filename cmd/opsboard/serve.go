package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/digitaldrywood/opsboard/internal/api"
	"github.com/digitaldrywood/opsboard/internal/auth"
	"github.com/digitaldrywood/opsboard/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var (
		store string
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch store {
			case "sheets", "memory":
			default:
				return errors.New(`--store must be "sheets" or "memory"`)
			}
			return a.open(cmd.Context(), store == "memory")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Addr
			}
			return a.serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&store, "store", "sheets", `backing store: "sheets" or "memory"`)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string) error {
	if a.cfg.AdminPass == "" {
		a.logger.Warn("admin pass is not configured, every write will be rejected")
	}

	tc := a.cfg.Tracing
	tp, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     tc.Enabled,
		Exporter:    tc.Exporter,
		Endpoint:    tc.Endpoint,
		SampleRate:  tc.SampleRate,
		ServiceName: tc.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("flush traces", "error", err)
		}
	}()
	if tc.Enabled {
		a.logger.Info("tracing enabled", "exporter", tc.Exporter, "sample_rate", tc.SampleRate)
	}

	srv := api.NewServer(a.routines, a.tasks, a.analytics, auth.NewGuard(a.cfg.AdminPass), api.Options{
		Logger:         a.logger,
		StaticDir:      a.cfg.StaticDir,
		TracerProvider: tp.TracerProvider(),
	})
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", "addr", addr, "timezone", a.cfg.Location.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
