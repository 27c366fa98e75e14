package shared

import (
	"context"
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"

	"github.com/google/uuid"
)

// UnitOfWork runs the coordinator's read-check-write sequences as one
// atomic unit against one of the two stores (Postgres or memory). Within
// retries bounded times on serialization conflicts; exhaustion surfaces
// errs.ErrBusy.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Reads: lock-free access for probes and display snapshots
	Reads() Reads
}

type Tx interface {
	Ledgers() LedgerRepository
	Bookings() BookingRepository
	Sequences() SequenceRepository
}

type LedgerRepository interface {
	// GetForUpdate acquires the row-level write lock for the ledger; two
	// operations on the same key serialize here, different keys do not.
	GetForUpdate(ctx context.Context, key ledger.Key) (*ledger.Ledger, error)
	Create(ctx context.Context, l *ledger.Ledger) error
	Save(ctx context.Context, l *ledger.Ledger) error
}

type BookingRepository interface {
	Create(ctx context.Context, b *booking.Booking) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	Save(ctx context.Context, b *booking.Booking) error
	// ExpiredPendingForKey returns pending bookings of one ledger key whose
	// hold lapsed, locked for update (lazy expiry inside Reserve).
	ExpiredPendingForKey(ctx context.Context, key ledger.Key, now time.Time) ([]*booking.Booking, error)
}

type SequenceRepository interface {
	// NextBookingSeq atomically increments and returns the per-year booking
	// sequence. Never implemented as count-rows-plus-one.
	NextBookingSeq(ctx context.Context, year int) (int64, error)
}

type Reads interface {
	LedgerByKey(ctx context.Context, key ledger.Key) (*ledger.Ledger, error)
	BookingByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	BookingByReference(ctx context.Context, ref string) (*booking.Booking, error)
	// ExpiredPendingIDs feeds the sweeper; plain read, each release then
	// re-checks state under its own lock.
	ExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
