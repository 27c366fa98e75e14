package uow

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"
	"capacity-core/internal/infra/repository"
	"capacity-core/internal/pkg/errs"
	"capacity-core/internal/pkg/metrics"
	"capacity-core/internal/usecase/shared"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgErrCodeSerializationFailure = "40001"
	pgErrCodeDeadlockDetected     = "40P01"
)

var (
	errTransactionBegin  = errs.New("failed to begin transaction")
	errTransactionCommit = errs.New("failed to commit transaction")
)

type PostgresUoW struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

func NewPostgresUoW(pool *pgxpool.Pool, m *metrics.Metrics) shared.UnitOfWork {
	return &PostgresUoW{
		pool:    pool,
		metrics: m,
	}
}

// ReadCommitted plus explicit FOR UPDATE row locks: same-key operations
// serialize on the lock, different keys proceed in parallel.
func (u *PostgresUoW) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	const maxRetries = 3
	base := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var pgxTx pgx.Tx
		pgxTx, err = u.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return errs.Mark(err, errTransactionBegin)
		}

		err = fn(ctx, &pgTx{dbtx: pgxTx})
		if err == nil {
			if err = pgxTx.Commit(ctx); err == nil {
				return nil
			}
			err = errs.Mark(err, errTransactionCommit)
		}

		if rollbackErr := pgxTx.Rollback(ctx); rollbackErr != nil {
			if !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				slog.Warn("rollback failed", "attempt", attempt+1, "error", rollbackErr.Error())
			}
		}

		if !isRetryableError(err) {
			return err
		}
		if attempt == maxRetries {
			slog.Error("transaction failed after max retries",
				"attempts", attempt+1,
				"error", err.Error())
			return errs.Mark(err, errs.ErrBusy)
		}

		u.metrics.TxRetried()
		waitTime := calculateBackoff(attempt, base)

		slog.Warn("retrying transaction due to retryable error",
			"attempt", attempt+1,
			"wait_ms", waitTime.Milliseconds(),
			"error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	return errs.Mark(err, errs.ErrBusy)
}

func (u *PostgresUoW) Reads() shared.Reads {
	return &pgReads{pool: u.pool}
}

func calculateBackoff(attempt int, base time.Duration) time.Duration {
	waitTime := time.Duration(1<<attempt) * base
	jitter := cryptoRandInt63n(int64(waitTime / 5))
	return waitTime + time.Duration(jitter)
}

func cryptoRandInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	uval := binary.BigEndian.Uint64(buf[:]) & 0x7FFFFFFFFFFFFFFF
	return int64(uval) % n
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgErrCodeSerializationFailure, pgErrCodeDeadlockDetected:
		return true
	default:
		return false
	}
}

type pgTx struct {
	dbtx pgx.Tx

	// Lazy-initialized repositories
	ledgerRepo   *repository.LedgerRepository
	bookingRepo  *repository.BookingRepository
	sequenceRepo *repository.SequenceRepository
}

func (t *pgTx) Ledgers() shared.LedgerRepository {
	if t.ledgerRepo == nil {
		t.ledgerRepo = repository.NewLedgerRepository(t.dbtx)
	}
	return t.ledgerRepo
}

func (t *pgTx) Bookings() shared.BookingRepository {
	if t.bookingRepo == nil {
		t.bookingRepo = repository.NewBookingRepository(t.dbtx)
	}
	return t.bookingRepo
}

func (t *pgTx) Sequences() shared.SequenceRepository {
	if t.sequenceRepo == nil {
		t.sequenceRepo = repository.NewSequenceRepository(t.dbtx)
	}
	return t.sequenceRepo
}

type pgReads struct {
	pool *pgxpool.Pool
}

func (r *pgReads) LedgerByKey(ctx context.Context, key ledger.Key) (*ledger.Ledger, error) {
	return repository.NewLedgerRepository(r.pool).Get(ctx, key)
}

func (r *pgReads) BookingByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return repository.NewBookingRepository(r.pool).Get(ctx, id)
}

func (r *pgReads) BookingByReference(ctx context.Context, ref string) (*booking.Booking, error) {
	return repository.NewBookingRepository(r.pool).GetByReference(ctx, ref)
}

func (r *pgReads) ExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return repository.NewBookingRepository(r.pool).ExpiredPendingIDs(ctx, now, limit)
}
