package booking

import (
	"errors"
	"time"

	"capacity-core/internal/domain/ledger"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrHoldExpired       = errors.New("booking hold has expired")
	ErrNegativeUnits     = errors.New("units must be positive")
)

// Booking is the lifecycle object for one reservation of capacity. Status
// transitions between pending, confirmed, cancelled and expired belong to
// the coordinator; completed and no_show are set by post-event
// reconciliation and have no ledger effect.
type Booking struct {
	id            uuid.UUID
	reference     string
	ledgerKey     ledger.Key
	units         int
	status        Status
	paymentStatus PaymentStatus
	paymentTxID   *string
	holdExpiresAt *time.Time
	cancelReason  string
	cancelledBy   *uuid.UUID
	price         ledger.Money
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a pending booking holding units until holdExpiresAt.
func New(reference string, key ledger.Key, units int, price ledger.Money, holdExpiresAt time.Time) (*Booking, error) {
	if units <= 0 {
		return nil, ErrNegativeUnits
	}

	expires := holdExpiresAt
	return &Booking{
		id:            uuid.New(),
		reference:     reference,
		ledgerKey:     key,
		units:         units,
		status:        StatusPending,
		paymentStatus: PaymentPending,
		holdExpiresAt: &expires,
		price:         price,
	}, nil
}

func Reconstruct(
	id uuid.UUID,
	reference string,
	key ledger.Key,
	units int,
	status Status,
	paymentStatus PaymentStatus,
	paymentTxID *string,
	holdExpiresAt *time.Time,
	cancelReason string,
	cancelledBy *uuid.UUID,
	price ledger.Money,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:            id,
		reference:     reference,
		ledgerKey:     key,
		units:         units,
		status:        status,
		paymentStatus: paymentStatus,
		paymentTxID:   paymentTxID,
		holdExpiresAt: holdExpiresAt,
		cancelReason:  cancelReason,
		cancelledBy:   cancelledBy,
		price:         price,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// HoldExpired reports whether a pending hold has lapsed. Non-pending
// bookings never report an expired hold.
func (b *Booking) HoldExpired(now time.Time) bool {
	return b.status == StatusPending && b.holdExpiresAt != nil && now.After(*b.holdExpiresAt)
}

// Confirm transitions pending -> confirmed on payment success. The hold
// must still be live: a confirm racing an expiry loses once the sweeper
// commits, and loses here too when the deadline is already past.
func (b *Booking) Confirm(now time.Time, paymentTxID string) error {
	if !b.status.CanTransitionTo(StatusConfirmed) {
		return ErrInvalidTransition
	}
	if b.HoldExpired(now) {
		return ErrHoldExpired
	}

	b.status = StatusConfirmed
	b.paymentStatus = PaymentPaid
	b.paymentTxID = &paymentTxID
	b.holdExpiresAt = nil
	return nil
}

// ConfirmedWith reports whether the booking is already confirmed with the
// given payment transaction id, the retry-safe webhook case.
func (b *Booking) ConfirmedWith(paymentTxID string) bool {
	return b.status == StatusConfirmed && b.paymentTxID != nil && *b.paymentTxID == paymentTxID
}

// Cancel transitions pending or confirmed -> cancelled.
func (b *Booking) Cancel(actorID uuid.UUID, reason string) error {
	if !b.status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidTransition
	}

	wasConfirmed := b.status == StatusConfirmed
	b.status = StatusCancelled
	b.cancelReason = reason
	actor := actorID
	b.cancelledBy = &actor
	b.holdExpiresAt = nil
	if wasConfirmed && b.paymentStatus == PaymentPaid {
		b.paymentStatus = PaymentRefunded
	}
	return nil
}

// Expire transitions pending -> expired; used only on the sweeper's
// release path.
func (b *Booking) Expire() error {
	if !b.status.CanTransitionTo(StatusExpired) {
		return ErrInvalidTransition
	}
	b.status = StatusExpired
	b.holdExpiresAt = nil
	return nil
}

// Complete marks a confirmed booking as attended. No ledger effect.
func (b *Booking) Complete() error {
	if !b.status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidTransition
	}
	b.status = StatusCompleted
	return nil
}

// MarkNoShow marks a confirmed booking as not attended. No ledger effect.
func (b *Booking) MarkNoShow() error {
	if !b.status.CanTransitionTo(StatusNoShow) {
		return ErrInvalidTransition
	}
	b.status = StatusNoShow
	return nil
}

func (b *Booking) ID() uuid.UUID                { return b.id }
func (b *Booking) Reference() string            { return b.reference }
func (b *Booking) LedgerKey() ledger.Key        { return b.ledgerKey }
func (b *Booking) Units() int                   { return b.units }
func (b *Booking) Status() Status               { return b.status }
func (b *Booking) PaymentStatus() PaymentStatus { return b.paymentStatus }
func (b *Booking) PaymentTxID() *string         { return b.paymentTxID }
func (b *Booking) HoldExpiresAt() *time.Time    { return b.holdExpiresAt }
func (b *Booking) CancelReason() string         { return b.cancelReason }
func (b *Booking) CancelledBy() *uuid.UUID      { return b.cancelledBy }
func (b *Booking) Price() ledger.Money          { return b.price }
func (b *Booking) CreatedAt() time.Time         { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time         { return b.updatedAt }
