package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/api"
	"github.com/bharathbbg/parcel-hub/internal/grpcserver"
	"github.com/bharathbbg/parcel-hub/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var (
		storeKind string
		migrate   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health endpoint and the locker sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, storeKind, migrate)
		},
	}
	cmd.Flags().StringVar(&storeKind, "store", storePostgres, "backing store: postgres or memory")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func serve(ctx context.Context, storeKind string, migrate bool) error {
	a, err := newApp(ctx, storeKind, true)
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if migrate && a.stores.pg != nil {
		if err := a.stores.pg.Migrate(ctx); err != nil {
			return err
		}
	}

	handler := api.NewHandler(a.services, api.Options{
		KioskKey: a.cfg.Locker.KioskKey,
		Health:   a.stores.ping,
		Metrics:  a.metrics,
	}, log)
	httpServer := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, a.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", a.cfg.GRPCAddr)
	}
	grpcServer := grpcserver.New(log, 15*time.Second, grpcserver.Checker(a.stores.ping))

	sched := scheduler.New(log)
	if err := sched.AddLockerCleanup(a.cfg.Locker.CleanupSpec, a.services.Lockers); err != nil {
		return errors.Wrapf(err, "invalid cleanup schedule %q", a.cfg.Locker.CleanupSpec)
	}
	sched.Start()

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server started", zap.String("address", a.cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http server")
		}
	}()
	go func() {
		if err := grpcServer.Serve(ctx, grpcLis); err != nil {
			errCh <- errors.Wrap(err, "grpc server")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", zap.Error(err))
	}
	cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown incomplete", zap.Error(serr))
	}
	sched.Stop(shutdownCtx)
	return err
}
