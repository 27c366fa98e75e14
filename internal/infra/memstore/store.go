// Package memstore is an in-memory implementation of the engine's
// UnitOfWork ports. It backs the unit tests and lets embedders run the
// engine without Postgres. A single store mutex stands in for row locks:
// coarser than the Postgres implementation, but it gives every operation
// the same atomic read-check-write guarantee.
package memstore

import (
	"context"
	"sync"
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"
	"capacity-core/internal/infra"
	"capacity-core/internal/usecase/shared"

	"github.com/google/uuid"
)

type Store struct {
	mu        sync.Mutex
	ledgers   map[string]*ledger.Ledger
	bookings  map[uuid.UUID]*booking.Booking
	byRef     map[string]uuid.UUID
	sequences map[int]int64
}

func New() *Store {
	return &Store{
		ledgers:   make(map[string]*ledger.Ledger),
		bookings:  make(map[uuid.UUID]*booking.Booking),
		byRef:     make(map[string]uuid.UUID),
		sequences: make(map[int]int64),
	}
}

// Within holds the store mutex for the whole read-check-write sequence.
// Writes are staged on the transaction and applied only when fn returns
// nil, so a failed operation leaves the store untouched.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx shared.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:          s,
		stagedLedgers:  make(map[string]*ledger.Ledger),
		stagedBookings: make(map[uuid.UUID]*booking.Booking),
		stagedSeqs:     make(map[int]int64),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

func (s *Store) Reads() shared.Reads {
	return &memReads{store: s}
}

type memTx struct {
	store          *Store
	stagedLedgers  map[string]*ledger.Ledger
	stagedBookings map[uuid.UUID]*booking.Booking
	stagedSeqs     map[int]int64
}

func (t *memTx) commit() {
	for key, l := range t.stagedLedgers {
		t.store.ledgers[key] = cloneLedger(l)
	}
	for id, b := range t.stagedBookings {
		t.store.bookings[id] = cloneBooking(b)
		t.store.byRef[b.Reference()] = id
	}
	for year, value := range t.stagedSeqs {
		t.store.sequences[year] = value
	}
}

func (t *memTx) Ledgers() shared.LedgerRepository   { return &memLedgers{tx: t} }
func (t *memTx) Bookings() shared.BookingRepository { return &memBookings{tx: t} }
func (t *memTx) Sequences() shared.SequenceRepository {
	return &memSequences{tx: t}
}

type memLedgers struct {
	tx *memTx
}

func (r *memLedgers) GetForUpdate(_ context.Context, key ledger.Key) (*ledger.Ledger, error) {
	k := key.String()
	if staged, ok := r.tx.stagedLedgers[k]; ok {
		return staged, nil
	}

	stored, ok := r.tx.store.ledgers[k]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "capacity ledger not found", nil)
	}

	working := cloneLedger(stored)
	return working, nil
}

func (r *memLedgers) Create(_ context.Context, l *ledger.Ledger) error {
	k := l.Key().String()
	if _, ok := r.tx.store.ledgers[k]; ok {
		return infra.WrapRepoErr(infra.KindDuplicateKey, "capacity ledger already exists", nil)
	}
	if _, ok := r.tx.stagedLedgers[k]; ok {
		return infra.WrapRepoErr(infra.KindDuplicateKey, "capacity ledger already exists", nil)
	}

	r.tx.stagedLedgers[k] = l
	return nil
}

func (r *memLedgers) Save(_ context.Context, l *ledger.Ledger) error {
	k := l.Key().String()
	if _, inStore := r.tx.store.ledgers[k]; !inStore {
		if _, staged := r.tx.stagedLedgers[k]; !staged {
			return infra.WrapRepoErr(infra.KindNotFound, "capacity ledger not found", nil)
		}
	}

	r.tx.stagedLedgers[k] = l
	return nil
}

type memBookings struct {
	tx *memTx
}

func (r *memBookings) Create(_ context.Context, b *booking.Booking) error {
	if _, ok := r.tx.store.byRef[b.Reference()]; ok {
		return infra.WrapRepoErr(infra.KindDuplicateKey, "booking reference already exists", nil)
	}

	r.tx.stagedBookings[b.ID()] = b
	return nil
}

func (r *memBookings) GetForUpdate(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	if staged, ok := r.tx.stagedBookings[id]; ok {
		return staged, nil
	}

	stored, ok := r.tx.store.bookings[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "booking not found", nil)
	}

	return cloneBooking(stored), nil
}

func (r *memBookings) Save(_ context.Context, b *booking.Booking) error {
	if _, inStore := r.tx.store.bookings[b.ID()]; !inStore {
		if _, staged := r.tx.stagedBookings[b.ID()]; !staged {
			return infra.WrapRepoErr(infra.KindNotFound, "booking not found", nil)
		}
	}

	r.tx.stagedBookings[b.ID()] = b
	return nil
}

func (r *memBookings) ExpiredPendingForKey(_ context.Context, key ledger.Key, now time.Time) ([]*booking.Booking, error) {
	var result []*booking.Booking
	for _, stored := range r.tx.store.bookings {
		if _, staged := r.tx.stagedBookings[stored.ID()]; staged {
			continue
		}
		if stored.LedgerKey().String() != key.String() {
			continue
		}
		if !stored.HoldExpired(now) {
			continue
		}
		result = append(result, cloneBooking(stored))
	}
	return result, nil
}

type memSequences struct {
	tx *memTx
}

func (r *memSequences) NextBookingSeq(_ context.Context, year int) (int64, error) {
	current, staged := r.tx.stagedSeqs[year]
	if !staged {
		current = r.tx.store.sequences[year]
	}
	next := current + 1
	r.tx.stagedSeqs[year] = next
	return next, nil
}

type memReads struct {
	store *Store
}

func (r *memReads) LedgerByKey(_ context.Context, key ledger.Key) (*ledger.Ledger, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.ledgers[key.String()]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "capacity ledger not found", nil)
	}
	return cloneLedger(stored), nil
}

func (r *memReads) BookingByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.bookings[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "booking not found", nil)
	}
	return cloneBooking(stored), nil
}

func (r *memReads) BookingByReference(_ context.Context, ref string) (*booking.Booking, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	id, ok := r.store.byRef[ref]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "booking not found", nil)
	}
	stored, ok := r.store.bookings[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "booking not found", nil)
	}
	return cloneBooking(stored), nil
}

func (r *memReads) ExpiredPendingIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var ids []uuid.UUID
	for id, b := range r.store.bookings {
		if len(ids) >= limit {
			break
		}
		if b.HoldExpired(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func cloneLedger(l *ledger.Ledger) *ledger.Ledger {
	spec := ledger.Spec{
		Key:             l.Key(),
		SlotStart:       l.SlotStart(),
		TotalCapacity:   l.TotalCapacity(),
		BasePrice:       l.BasePrice(),
		Multiplier:      l.Multiplier(),
		UnitsPerBooking: l.UnitsPerBooking(),
		Cutoff:          l.Cutoff(),
		Active:          l.IsActive(),
	}
	return ledger.Reconstruct(spec, l.BookedCapacity(), l.ReservedCapacity(), l.Version(), l.UpdatedAt())
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	var txID *string
	if v := b.PaymentTxID(); v != nil {
		tmp := *v
		txID = &tmp
	}
	var holdExpires *time.Time
	if v := b.HoldExpiresAt(); v != nil {
		tmp := *v
		holdExpires = &tmp
	}
	var cancelledBy *uuid.UUID
	if v := b.CancelledBy(); v != nil {
		tmp := *v
		cancelledBy = &tmp
	}

	return booking.Reconstruct(
		b.ID(),
		b.Reference(),
		b.LedgerKey(),
		b.Units(),
		b.Status(),
		b.PaymentStatus(),
		txID,
		holdExpires,
		b.CancelReason(),
		cancelledBy,
		b.Price(),
		b.CreatedAt(),
		b.UpdatedAt(),
	)
}
