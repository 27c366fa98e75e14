package repository

import (
	"context"
	"errors"
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"
	"capacity-core/internal/infra"
	"capacity-core/internal/infra/db"

	"github.com/jackc/pgx/v5"

	"github.com/google/uuid"
)

const bookingColumns = `id, reference, resource_id, slot_date, timeslot,
	units, status, payment_status, payment_tx_id, hold_expires_at,
	cancel_reason, cancelled_by, price_cents, created_at, updated_at`

type BookingRepository struct {
	db db.DBTX
}

func NewBookingRepository(dbtx db.DBTX) *BookingRepository {
	return &BookingRepository{db: dbtx}
}

type bookingRow struct {
	ID            uuid.UUID
	Reference     string
	ResourceID    uuid.UUID
	SlotDate      time.Time
	Timeslot      string
	Units         int
	Status        string
	PaymentStatus string
	PaymentTxID   *string
	HoldExpiresAt *time.Time
	CancelReason  string
	CancelledBy   *uuid.UUID
	PriceCents    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	query := `INSERT INTO bookings (
			id, reference, resource_id, slot_date, timeslot,
			units, status, payment_status, payment_tx_id, hold_expires_at,
			cancel_reason, cancelled_by, price_cents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	key := b.LedgerKey()
	_, err := r.db.Exec(ctx, query,
		b.ID(), b.Reference(), key.ResourceID, key.Date, key.Timeslot,
		b.Units(), b.Status().String(), b.PaymentStatus().String(),
		b.PaymentTxID(), b.HoldExpiresAt(),
		b.CancelReason(), b.CancelledBy(), b.Price().Cents(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return infra.WrapRepoErr(infra.KindDuplicateKey, "booking reference already exists", err)
		}
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to create booking", err)
	}

	return nil
}

func (r *BookingRepository) Get(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *BookingRepository) GetByReference(ctx context.Context, ref string) (*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE reference = $1`
	return r.getOne(ctx, query, ref)
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, arg any) (*booking.Booking, error) {
	var row bookingRow
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&row.ID, &row.Reference, &row.ResourceID, &row.SlotDate, &row.Timeslot,
		&row.Units, &row.Status, &row.PaymentStatus, &row.PaymentTxID, &row.HoldExpiresAt,
		&row.CancelReason, &row.CancelledBy, &row.PriceCents, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "booking not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to load booking", err)
	}

	return rowToBooking(row)
}

func rowToBooking(row bookingRow) (*booking.Booking, error) {
	price, err := ledger.NewMoney(row.PriceCents)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "stored booking price invalid", err)
	}

	return booking.Reconstruct(
		row.ID,
		row.Reference,
		ledger.NewKey(row.ResourceID, row.SlotDate, row.Timeslot),
		row.Units,
		booking.Status(row.Status),
		booking.PaymentStatus(row.PaymentStatus),
		row.PaymentTxID,
		row.HoldExpiresAt,
		row.CancelReason,
		row.CancelledBy,
		price,
		row.CreatedAt,
		row.UpdatedAt,
	), nil
}

func (r *BookingRepository) Save(ctx context.Context, b *booking.Booking) error {
	query := `UPDATE bookings SET
			status = $2,
			payment_status = $3,
			payment_tx_id = $4,
			hold_expires_at = $5,
			cancel_reason = $6,
			cancelled_by = $7,
			updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		b.ID(), b.Status().String(), b.PaymentStatus().String(),
		b.PaymentTxID(), b.HoldExpiresAt(), b.CancelReason(), b.CancelledBy(),
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to save booking", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr(infra.KindNotFound, "booking not found", nil)
	}

	return nil
}

// ExpiredPendingForKey locks and returns this key's pending bookings whose
// hold lapsed. SKIP LOCKED keeps a concurrent sweeper pass from blocking a
// live Reserve doing lazy expiry.
func (r *BookingRepository) ExpiredPendingForKey(ctx context.Context, key ledger.Key, now time.Time) ([]*booking.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE resource_id = $1 AND slot_date = $2 AND timeslot = $3
		  AND status = 'pending' AND hold_expires_at < $4
		FOR UPDATE SKIP LOCKED`

	rows, err := r.db.Query(ctx, query, key.ResourceID, key.Date, key.Timeslot, now)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to list expired holds", err)
	}
	defer rows.Close()

	var result []*booking.Booking
	for rows.Next() {
		var row bookingRow
		if err := rows.Scan(
			&row.ID, &row.Reference, &row.ResourceID, &row.SlotDate, &row.Timeslot,
			&row.Units, &row.Status, &row.PaymentStatus, &row.PaymentTxID, &row.HoldExpiresAt,
			&row.CancelReason, &row.CancelledBy, &row.PriceCents, &row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan expired hold", err)
		}
		b, err := rowToBooking(row)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate expired holds", err)
	}

	return result, nil
}

// ExpiredPendingIDs is the sweeper's work list. Plain read: each release
// re-checks booking state under its own row lock.
func (r *BookingRepository) ExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM bookings
		WHERE status = 'pending' AND hold_expires_at < $1
		ORDER BY hold_expires_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to list expired pending bookings", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan booking id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate booking ids", err)
	}

	return ids, nil
}
