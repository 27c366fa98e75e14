package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"capacity-core/internal/pkg/clock"
	"capacity-core/internal/pkg/errs"
	"capacity-core/internal/pkg/metrics"
	"capacity-core/internal/usecase/shared"
)

// Sweeper reclaims expired holds on a fixed interval. Safe to run
// concurrently with itself and with live traffic: every release re-checks
// the booking state under the row lock, and a booking that was confirmed
// or cancelled in the meantime is skipped.
type Sweeper struct {
	uow         shared.UnitOfWork
	coordinator Coordinator
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
	interval    time.Duration
	batchSize   int
}

func NewSweeper(
	uow shared.UnitOfWork,
	coordinator Coordinator,
	clk clock.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	batchSize int,
) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		uow:         uow,
		coordinator: coordinator,
		clock:       clk,
		logger:      logger,
		metrics:     m,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep pass failed",
					"error", err.Error(),
					"stack", errs.ExtractStackLines(err, 5))
			}
		}
	}
}

// SweepOnce releases one batch of lapsed holds and returns how many were
// reclaimed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveSweep(time.Since(start).Seconds())
	}()

	ids, err := s.uow.Reads().ExpiredPendingIDs(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}

		err := s.coordinator.Release(ctx, id)
		switch {
		case err == nil:
			released++
		case errors.Is(err, errs.ErrInvalidTransition), errors.Is(err, errs.ErrBookingNotFound):
			// Confirmed or cancelled under our feet; not our hold anymore.
			continue
		default:
			s.logger.Warn("failed to release expired hold",
				"booking_id", id,
				"error", err.Error())
		}
	}

	if released > 0 {
		s.metrics.HoldsExpired(released)
		s.logger.Info("expired holds reclaimed", "count", released)
	}

	return released, nil
}
