package bootstrap

import (
	"log/slog"

	"capacity-core/internal/infra/uow"
	"capacity-core/internal/pkg/clock"
	"capacity-core/internal/pkg/config"
	"capacity-core/internal/pkg/metrics"
	"capacity-core/internal/usecase"
	"capacity-core/internal/usecase/shared"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var EngineModule = fx.Module("engine",
	fx.Provide(
		clock.NewRealClock,
		NewRegistry,
		NewMetrics,
		NewUnitOfWork,
		NewCoordinator,
		NewSweeper,
	),
)

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func NewMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func NewUnitOfWork(pool *pgxpool.Pool, m *metrics.Metrics) shared.UnitOfWork {
	return uow.NewPostgresUoW(pool, m)
}

func NewCoordinator(
	u shared.UnitOfWork,
	clk clock.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg config.Config,
) usecase.Coordinator {
	return usecase.NewCoordinator(u, clk, logger, m, cfg.Booking.ReferencePrefix)
}

func NewSweeper(
	u shared.UnitOfWork,
	coordinator usecase.Coordinator,
	clk clock.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg config.Config,
) *usecase.Sweeper {
	return usecase.NewSweeper(u, coordinator, clk, logger, m, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)
}
