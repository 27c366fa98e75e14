//go:build unit

package booking_test

import (
	"testing"
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	holdDeadline = time.Date(2026, 7, 1, 12, 15, 0, 0, time.UTC)
	beforeExpiry = time.Date(2026, 7, 1, 12, 10, 0, 0, time.UTC)
	afterExpiry  = time.Date(2026, 7, 1, 12, 16, 0, 0, time.UTC)
)

func newPendingBooking(t *testing.T) *booking.Booking {
	t.Helper()

	price, err := ledger.NewMoney(7500)
	require.NoError(t, err)

	key := ledger.NewKey(uuid.New(), time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), "18:00")
	b, err := booking.New("BK-2026-000001", key, 3, price, holdDeadline)
	require.NoError(t, err)

	return b
}

func TestBooking_New(t *testing.T) {
	b := newPendingBooking(t)

	assert.Equal(t, booking.StatusPending, b.Status())
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus())
	require.NotNil(t, b.HoldExpiresAt())
	assert.Equal(t, holdDeadline, *b.HoldExpiresAt())
	assert.NotEqual(t, uuid.Nil, b.ID())

	_, err := booking.New("BK-2026-000002", b.LedgerKey(), 0, b.Price(), holdDeadline)
	require.ErrorIs(t, err, booking.ErrNegativeUnits)
}

func TestBooking_Confirm(t *testing.T) {
	b := newPendingBooking(t)

	require.NoError(t, b.Confirm(beforeExpiry, "tx-100"))
	assert.Equal(t, booking.StatusConfirmed, b.Status())
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus())
	assert.Nil(t, b.HoldExpiresAt())
	require.NotNil(t, b.PaymentTxID())
	assert.Equal(t, "tx-100", *b.PaymentTxID())

	assert.True(t, b.ConfirmedWith("tx-100"))
	assert.False(t, b.ConfirmedWith("tx-200"))
}

func TestBooking_ConfirmAfterHoldExpiry(t *testing.T) {
	b := newPendingBooking(t)

	err := b.Confirm(afterExpiry, "tx-100")
	require.ErrorIs(t, err, booking.ErrHoldExpired)
	assert.Equal(t, booking.StatusPending, b.Status(), "failed confirm must not change status")
}

func TestBooking_CancelFromPending(t *testing.T) {
	b := newPendingBooking(t)
	actor := uuid.New()

	require.NoError(t, b.Cancel(actor, "changed plans"))
	assert.Equal(t, booking.StatusCancelled, b.Status())
	assert.Equal(t, booking.PaymentPending, b.PaymentStatus(), "unpaid booking is not refunded")
	assert.Equal(t, "changed plans", b.CancelReason())
	assert.Nil(t, b.HoldExpiresAt())
	require.NotNil(t, b.CancelledBy())
	assert.Equal(t, actor, *b.CancelledBy())
}

func TestBooking_CancelFromConfirmedRefunds(t *testing.T) {
	b := newPendingBooking(t)
	require.NoError(t, b.Confirm(beforeExpiry, "tx-100"))

	require.NoError(t, b.Cancel(uuid.New(), "weather"))
	assert.Equal(t, booking.StatusCancelled, b.Status())
	assert.Equal(t, booking.PaymentRefunded, b.PaymentStatus())
}

func TestBooking_Expire(t *testing.T) {
	b := newPendingBooking(t)

	require.NoError(t, b.Expire())
	assert.Equal(t, booking.StatusExpired, b.Status())
	assert.Nil(t, b.HoldExpiresAt())

	require.ErrorIs(t, b.Expire(), booking.ErrInvalidTransition)
}

func TestBooking_Reconciliation(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		b := newPendingBooking(t)
		require.NoError(t, b.Confirm(beforeExpiry, "tx-100"))
		require.NoError(t, b.Complete())
		assert.Equal(t, booking.StatusCompleted, b.Status())
	})

	t.Run("no show", func(t *testing.T) {
		b := newPendingBooking(t)
		require.NoError(t, b.Confirm(beforeExpiry, "tx-100"))
		require.NoError(t, b.MarkNoShow())
		assert.Equal(t, booking.StatusNoShow, b.Status())
	})

	t.Run("pending cannot complete", func(t *testing.T) {
		b := newPendingBooking(t)
		require.ErrorIs(t, b.Complete(), booking.ErrInvalidTransition)
	})
}

func TestStatus_TransitionTable(t *testing.T) {
	all := []booking.Status{
		booking.StatusPending, booking.StatusConfirmed, booking.StatusCancelled,
		booking.StatusExpired, booking.StatusCompleted, booking.StatusNoShow,
	}

	allowed := map[booking.Status]map[booking.Status]bool{
		booking.StatusPending: {
			booking.StatusConfirmed: true,
			booking.StatusCancelled: true,
			booking.StatusExpired:   true,
		},
		booking.StatusConfirmed: {
			booking.StatusCancelled: true,
			booking.StatusCompleted: true,
			booking.StatusNoShow:    true,
		},
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, booking.StatusPending.IsTerminal())
	assert.False(t, booking.StatusConfirmed.IsTerminal())
	assert.True(t, booking.StatusCancelled.IsTerminal())
	assert.True(t, booking.StatusExpired.IsTerminal())
	assert.True(t, booking.StatusCompleted.IsTerminal())
	assert.True(t, booking.StatusNoShow.IsTerminal())
}

func TestHoldExpired(t *testing.T) {
	b := newPendingBooking(t)
	assert.False(t, b.HoldExpired(beforeExpiry))
	assert.True(t, b.HoldExpired(afterExpiry))

	require.NoError(t, b.Confirm(beforeExpiry, "tx-100"))
	assert.False(t, b.HoldExpired(afterExpiry), "confirmed bookings have no hold")
}
