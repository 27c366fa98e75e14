package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"
	"capacity-core/internal/infra"
	"capacity-core/internal/pkg/clock"
	"capacity-core/internal/pkg/errs"
	"capacity-core/internal/pkg/metrics"
	"capacity-core/internal/usecase/queries"
	"capacity-core/internal/usecase/shared"

	"github.com/google/uuid"
)

const DefaultHoldDuration = 15 * time.Minute

// Coordinator is the only component that mutates ledger counters. Every
// operation runs its capacity check and its capacity mutation inside the
// same UnitOfWork transaction, with the ledger row locked for the whole
// read-check-write sequence.
type Coordinator interface {
	Reserve(ctx context.Context, key ledger.Key, units int, holdDuration time.Duration) (*queries.BookingView, error)
	Confirm(ctx context.Context, bookingID uuid.UUID, paymentTxID string) (*queries.BookingView, error)
	Cancel(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*queries.BookingView, error)
	Release(ctx context.Context, bookingID uuid.UUID) error
	Resize(ctx context.Context, key ledger.Key, newTotal int) (*queries.LedgerView, error)
	SyncInventory(ctx context.Context, key ledger.Key, partnerTotal, partnerAvailable int) (*queries.LedgerView, error)
	MarkCompleted(ctx context.Context, bookingID uuid.UUID) (*queries.BookingView, error)
	MarkNoShow(ctx context.Context, bookingID uuid.UUID) (*queries.BookingView, error)

	CreateLedger(ctx context.Context, spec ledger.Spec) (*queries.LedgerView, error)
	Snapshot(ctx context.Context, key ledger.Key) (*queries.LedgerView, error)
	Probe(ctx context.Context, key ledger.Key, units int) (bool, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*queries.BookingView, error)
	GetBookingByReference(ctx context.Context, ref string) (*queries.BookingView, error)
}

type coordinatorImpl struct {
	uow       shared.UnitOfWork
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	refPrefix string
}

func NewCoordinator(
	uow shared.UnitOfWork,
	clk clock.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
	refPrefix string,
) Coordinator {
	if refPrefix == "" {
		refPrefix = "BK"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &coordinatorImpl{
		uow:       uow,
		clock:     clk,
		logger:    logger,
		metrics:   m,
		refPrefix: refPrefix,
	}
}

func (c *coordinatorImpl) Reserve(
	ctx context.Context,
	key ledger.Key,
	units int,
	holdDuration time.Duration,
) (*queries.BookingView, error) {
	if units <= 0 {
		return nil, errs.ErrInvalidUnits
	}
	if holdDuration <= 0 {
		holdDuration = DefaultHoldDuration
	}

	var view *queries.BookingView
	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		led, err := c.ledgerForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}

		now := c.clock.Now()
		if !led.HasAvailability(units, now) {
			// Lazy expiry: reclaim lapsed holds on this key before giving up.
			released, expireErr := c.expireHoldsForKey(ctx, tx, led, now)
			if expireErr != nil {
				return expireErr
			}
			if released > 0 {
				c.metrics.HoldsExpired(released)
			}
			if !led.HasAvailability(units, now) {
				return errs.ErrInsufficientCapacity
			}
		}

		seq, err := tx.Sequences().NextBookingSeq(ctx, now.Year())
		if err != nil {
			return errs.Wrap(err, "failed to allocate booking sequence")
		}
		ref := booking.FormatReference(c.refPrefix, now.Year(), seq)

		total, err := ledger.NewMoney(led.FinalPrice().Cents() * int64(units))
		if err != nil {
			return err
		}

		b, err := booking.New(ref, key, units, total, now.Add(holdDuration))
		if err != nil {
			return errs.Mark(err, errs.ErrInvalidUnits)
		}

		if err := led.Reserve(units); err != nil {
			return errs.Mark(err, errs.ErrInsufficientCapacity)
		}
		if err := tx.Ledgers().Save(ctx, led); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return err
		}

		view = queries.NewBookingView(b)
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrInsufficientCapacity) {
			c.metrics.ReserveResult("insufficient_capacity")
		} else {
			c.metrics.ReserveResult("error")
		}
		return nil, err
	}

	c.metrics.ReserveResult("reserved")
	c.logger.Info("capacity reserved",
		"reference", view.Reference,
		"resource_id", key.ResourceID,
		"units", units)

	return view, nil
}

func (c *coordinatorImpl) Confirm(
	ctx context.Context,
	bookingID uuid.UUID,
	paymentTxID string,
) (*queries.BookingView, error) {
	var view *queries.BookingView
	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		b, err := c.bookingForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		// Webhook retry: same transaction id on an already-confirmed booking
		// replays the existing result.
		if b.ConfirmedWith(paymentTxID) {
			view = queries.NewBookingView(b)
			return nil
		}
		if b.Status() == booking.StatusConfirmed {
			return errs.ErrPaymentConflict
		}

		led, err := c.ledgerForUpdate(ctx, tx, b.LedgerKey())
		if err != nil {
			return err
		}

		if err := b.Confirm(c.clock.Now(), paymentTxID); err != nil {
			return errs.Mark(err, errs.ErrInvalidTransition)
		}
		if err := led.CommitReserve(b.Units()); err != nil {
			return errs.Wrap(err, "ledger out of sync with booking")
		}

		if err := tx.Ledgers().Save(ctx, led); err != nil {
			return err
		}
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return err
		}

		view = queries.NewBookingView(b)
		c.metrics.Confirmed()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return view, nil
}

func (c *coordinatorImpl) Cancel(
	ctx context.Context,
	bookingID, actorID uuid.UUID,
	reason string,
) (*queries.BookingView, error) {
	var view *queries.BookingView
	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		b, err := c.bookingForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		// Retry-safe: a repeated cancel of an already-cancelled booking is a
		// no-op returning the booking as it stands.
		if b.Status() == booking.StatusCancelled {
			view = queries.NewBookingView(b)
			return nil
		}

		wasPending := b.Status() == booking.StatusPending

		led, err := c.ledgerForUpdate(ctx, tx, b.LedgerKey())
		if err != nil {
			return err
		}

		if err := b.Cancel(actorID, reason); err != nil {
			return errs.Mark(err, errs.ErrInvalidTransition)
		}

		if wasPending {
			err = led.ReleaseReserved(b.Units())
		} else {
			err = led.ReleaseBooked(b.Units())
		}
		if err != nil {
			return errs.Wrap(err, "ledger out of sync with booking")
		}

		if err := tx.Ledgers().Save(ctx, led); err != nil {
			return err
		}
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return err
		}

		view = queries.NewBookingView(b)
		c.metrics.Cancelled()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("booking cancelled",
		"reference", view.Reference,
		"actor_id", actorID,
		"reason", reason)

	return view, nil
}

// Release is the sweeper's path: identical ledger effect to a cancel of a
// pending booking, but the booking is tagged expired.
func (c *coordinatorImpl) Release(ctx context.Context, bookingID uuid.UUID) error {
	return c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		b, err := c.bookingForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if b.Status() != booking.StatusPending {
			return errs.ErrInvalidTransition
		}

		led, err := c.ledgerForUpdate(ctx, tx, b.LedgerKey())
		if err != nil {
			return err
		}

		if err := b.Expire(); err != nil {
			return errs.Mark(err, errs.ErrInvalidTransition)
		}
		if err := led.ReleaseReserved(b.Units()); err != nil {
			return errs.Wrap(err, "ledger out of sync with booking")
		}

		if err := tx.Ledgers().Save(ctx, led); err != nil {
			return err
		}
		return tx.Bookings().Save(ctx, b)
	})
}

func (c *coordinatorImpl) Resize(
	ctx context.Context,
	key ledger.Key,
	newTotal int,
) (*queries.LedgerView, error) {
	var view *queries.LedgerView
	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		led, err := c.ledgerForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}

		if err := led.Resize(newTotal); err != nil {
			if errors.Is(err, ledger.ErrCapacityBelowCommitted) {
				return errs.Mark(err, errs.ErrCapacityBelowCommitted)
			}
			return err
		}

		if err := tx.Ledgers().Save(ctx, led); err != nil {
			return err
		}

		view = queries.NewLedgerView(led)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return view, nil
}

// SyncInventory reconciles a partner system's numbers against local
// commitments. The partner total replaces totalCapacity only when its
// implied committed count matches what the ledger has actually sold.
func (c *coordinatorImpl) SyncInventory(
	ctx context.Context,
	key ledger.Key,
	partnerTotal, partnerAvailable int,
) (*queries.LedgerView, error) {
	var view *queries.LedgerView
	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		led, err := c.ledgerForUpdate(ctx, tx, key)
		if err != nil {
			return err
		}

		committed := led.BookedCapacity() + led.ReservedCapacity()
		if partnerTotal < committed || partnerTotal-partnerAvailable != committed {
			c.logger.Error("partner inventory sync rejected",
				"resource_id", key.ResourceID,
				"date", key.Date.Format("2006-01-02"),
				"partner_total", partnerTotal,
				"partner_available", partnerAvailable,
				"local_committed", committed)
			return errs.ErrSyncConflict
		}

		if err := led.Resize(partnerTotal); err != nil {
			return err
		}
		if err := tx.Ledgers().Save(ctx, led); err != nil {
			return err
		}

		view = queries.NewLedgerView(led)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return view, nil
}

func (c *coordinatorImpl) MarkCompleted(ctx context.Context, bookingID uuid.UUID) (*queries.BookingView, error) {
	return c.reconcile(ctx, bookingID, (*booking.Booking).Complete)
}

func (c *coordinatorImpl) MarkNoShow(ctx context.Context, bookingID uuid.UUID) (*queries.BookingView, error) {
	return c.reconcile(ctx, bookingID, (*booking.Booking).MarkNoShow)
}

// reconcile applies a capacity-neutral terminal transition; the ledger is
// left untouched.
func (c *coordinatorImpl) reconcile(
	ctx context.Context,
	bookingID uuid.UUID,
	transition func(*booking.Booking) error,
) (*queries.BookingView, error) {
	var view *queries.BookingView
	err := c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		b, err := c.bookingForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if err := transition(b); err != nil {
			return errs.Mark(err, errs.ErrInvalidTransition)
		}
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return err
		}

		view = queries.NewBookingView(b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return view, nil
}

func (c *coordinatorImpl) CreateLedger(ctx context.Context, spec ledger.Spec) (*queries.LedgerView, error) {
	led, err := ledger.New(spec)
	if err != nil {
		return nil, err
	}

	err = c.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		return tx.Ledgers().Create(ctx, led)
	})
	if err != nil {
		return nil, err
	}

	return queries.NewLedgerView(led), nil
}

func (c *coordinatorImpl) Snapshot(ctx context.Context, key ledger.Key) (*queries.LedgerView, error) {
	led, err := c.uow.Reads().LedgerByKey(ctx, key)
	if err != nil {
		return nil, c.mapLedgerErr(err)
	}
	return queries.NewLedgerView(led), nil
}

// Probe is advisory only: it does not reserve, and a subsequent Reserve
// can still fail if capacity was consumed in between.
func (c *coordinatorImpl) Probe(ctx context.Context, key ledger.Key, units int) (bool, error) {
	led, err := c.uow.Reads().LedgerByKey(ctx, key)
	if err != nil {
		return false, c.mapLedgerErr(err)
	}
	return led.HasAvailability(units, c.clock.Now()), nil
}

func (c *coordinatorImpl) GetBooking(ctx context.Context, bookingID uuid.UUID) (*queries.BookingView, error) {
	b, err := c.uow.Reads().BookingByID(ctx, bookingID)
	if err != nil {
		return nil, c.mapBookingErr(err)
	}
	return queries.NewBookingView(b), nil
}

func (c *coordinatorImpl) GetBookingByReference(ctx context.Context, ref string) (*queries.BookingView, error) {
	if _, err := booking.ParseReference(ref); err != nil {
		return nil, errs.Mark(err, errs.ErrBookingNotFound)
	}
	b, err := c.uow.Reads().BookingByReference(ctx, ref)
	if err != nil {
		return nil, c.mapBookingErr(err)
	}
	return queries.NewBookingView(b), nil
}

func (c *coordinatorImpl) expireHoldsForKey(
	ctx context.Context,
	tx shared.Tx,
	led *ledger.Ledger,
	now time.Time,
) (int, error) {
	lapsed, err := tx.Bookings().ExpiredPendingForKey(ctx, led.Key(), now)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, b := range lapsed {
		if err := b.Expire(); err != nil {
			continue // transitioned concurrently, nothing to reclaim
		}
		if err := led.ReleaseReserved(b.Units()); err != nil {
			return released, errs.Wrap(err, "ledger out of sync with booking")
		}
		if err := tx.Bookings().Save(ctx, b); err != nil {
			return released, err
		}
		released++
	}

	// The ledger is saved once by the caller; a second optimistic-version
	// save in the same transaction would always be stale.
	return released, nil
}

func (c *coordinatorImpl) ledgerForUpdate(ctx context.Context, tx shared.Tx, key ledger.Key) (*ledger.Ledger, error) {
	led, err := tx.Ledgers().GetForUpdate(ctx, key)
	if err != nil {
		return nil, c.mapLedgerErr(err)
	}
	return led, nil
}

func (c *coordinatorImpl) bookingForUpdate(ctx context.Context, tx shared.Tx, id uuid.UUID) (*booking.Booking, error) {
	b, err := tx.Bookings().GetForUpdate(ctx, id)
	if err != nil {
		return nil, c.mapBookingErr(err)
	}
	return b, nil
}

func (c *coordinatorImpl) mapLedgerErr(err error) error {
	if infra.IsKind(err, infra.KindNotFound) {
		return errs.Mark(err, errs.ErrLedgerNotFound)
	}
	return err
}

func (c *coordinatorImpl) mapBookingErr(err error) error {
	if infra.IsKind(err, infra.KindNotFound) {
		return errs.Mark(err, errs.ErrBookingNotFound)
	}
	return err
}
