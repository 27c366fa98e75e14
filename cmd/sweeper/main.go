// The sweeper daemon reclaims expired booking holds and serves the
// engine's Prometheus metrics. It is the only process this module ships;
// the reservation coordinator itself is consumed as a library by the
// hosting service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"capacity-core/cmd/bootstrap"
	"capacity-core/internal/pkg/config"
	"capacity-core/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

func runSweeper(lc fx.Lifecycle, sweeper *usecase.Sweeper, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("starting expiry sweeper")
			go func() {
				defer close(done)
				sweeper.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			logger.Info("stopping expiry sweeper")
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func runMetricsServer(lc fx.Lifecycle, reg *prometheus.Registry, cfg config.Config, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("starting metrics listener", "address", cfg.Metrics.ListenAddr)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics listener failed", "error", err.Error())
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			return server.Shutdown(stopCtx)
		},
	})
}

func main() {
	app := fx.New(
		bootstrap.Module,
		fx.Invoke(
			runSweeper,
			runMetricsServer,
		),
	)

	if err := app.Start(context.Background()); err != nil {
		slog.Error("failed to start sweeper daemon", "error", err.Error())
		os.Exit(1)
	}

	<-app.Done()

	if err := app.Stop(context.Background()); err != nil {
		slog.Error("failed to stop sweeper daemon", "error", err.Error())
		os.Exit(1)
	}
}
