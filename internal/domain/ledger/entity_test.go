//go:build unit

package ledger_test

import (
	"testing"
	"time"

	"capacity-core/internal/domain/ledger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, total int) *ledger.Ledger {
	t.Helper()

	base, err := ledger.NewMoney(2500)
	require.NoError(t, err)
	mult, err := ledger.NewMultiplier(1.0)
	require.NoError(t, err)
	unitRange, err := ledger.NewUnitRange(1, 10)
	require.NoError(t, err)

	l, err := ledger.New(ledger.Spec{
		Key:             ledger.NewKey(uuid.New(), time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), "18:00"),
		SlotStart:       time.Date(2026, 7, 1, 18, 0, 0, 0, time.UTC),
		TotalCapacity:   total,
		BasePrice:       base,
		Multiplier:      mult,
		UnitsPerBooking: unitRange,
		Cutoff:          2 * time.Hour,
		Active:          true,
	})
	require.NoError(t, err)

	return l
}

func TestLedger_DerivedValues(t *testing.T) {
	l := newTestLedger(t, 5)

	assert.Equal(t, 5, l.AvailableCapacity())
	assert.False(t, l.IsSoldOut())
	assert.Equal(t, int64(2500), l.FinalPrice().Cents())

	require.NoError(t, l.Reserve(3))
	assert.Equal(t, 3, l.ReservedCapacity())
	assert.Equal(t, 2, l.AvailableCapacity())
	assert.False(t, l.IsSoldOut())

	require.NoError(t, l.Reserve(2))
	assert.Equal(t, 0, l.AvailableCapacity())
	assert.True(t, l.IsSoldOut())
}

func TestLedger_ReserveConfirmCancelRoundTrip(t *testing.T) {
	l := newTestLedger(t, 5)

	require.NoError(t, l.Reserve(3))
	assert.Equal(t, 0, l.BookedCapacity())
	assert.Equal(t, 3, l.ReservedCapacity())
	assert.Equal(t, 2, l.AvailableCapacity())

	require.NoError(t, l.CommitReserve(3))
	assert.Equal(t, 3, l.BookedCapacity())
	assert.Equal(t, 0, l.ReservedCapacity())
	assert.Equal(t, 2, l.AvailableCapacity())

	require.NoError(t, l.ReleaseBooked(3))
	assert.Equal(t, 0, l.BookedCapacity())
	assert.Equal(t, 0, l.ReservedCapacity())
	assert.Equal(t, 5, l.AvailableCapacity())
}

func TestLedger_CounterGuards(t *testing.T) {
	testCases := []struct {
		name    string
		prepare func(*ledger.Ledger)
		mutate  func(*ledger.Ledger) error
		errIs   error
	}{
		{
			name:   "reserve beyond total fails",
			mutate: func(l *ledger.Ledger) error { return l.Reserve(6) },
			errIs:  ledger.ErrCapacityExceeded,
		},
		{
			name: "reserve on nearly full ledger fails",
			prepare: func(l *ledger.Ledger) {
				_ = l.Reserve(4)
			},
			mutate: func(l *ledger.Ledger) error { return l.Reserve(2) },
			errIs:  ledger.ErrCapacityExceeded,
		},
		{
			name:   "commit without hold fails",
			mutate: func(l *ledger.Ledger) error { return l.CommitReserve(1) },
			errIs:  ledger.ErrReservedUnderflow,
		},
		{
			name:   "release reserved without hold fails",
			mutate: func(l *ledger.Ledger) error { return l.ReleaseReserved(1) },
			errIs:  ledger.ErrReservedUnderflow,
		},
		{
			name:   "release booked without booking fails",
			mutate: func(l *ledger.Ledger) error { return l.ReleaseBooked(1) },
			errIs:  ledger.ErrBookedUnderflow,
		},
		{
			name:   "zero units rejected",
			mutate: func(l *ledger.Ledger) error { return l.Reserve(0) },
			errIs:  ledger.ErrNegativeUnits,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t, 5)
			if tc.prepare != nil {
				tc.prepare(l)
			}

			err := tc.mutate(l)
			require.ErrorIs(t, err, tc.errIs)

			// failed mutations never leave a partially updated ledger
			assert.GreaterOrEqual(t, l.AvailableCapacity(), 0)
			assert.LessOrEqual(t, l.BookedCapacity()+l.ReservedCapacity(), l.TotalCapacity())
		})
	}
}

func TestLedger_Resize(t *testing.T) {
	l := newTestLedger(t, 5)
	require.NoError(t, l.Reserve(3))
	require.NoError(t, l.CommitReserve(3))

	err := l.Resize(2)
	require.ErrorIs(t, err, ledger.ErrCapacityBelowCommitted)
	assert.Equal(t, 5, l.TotalCapacity(), "failed resize must leave the ledger unchanged")

	require.NoError(t, l.Resize(10))
	assert.Equal(t, 10, l.TotalCapacity())
	assert.Equal(t, 7, l.AvailableCapacity())
}

func TestLedger_HasAvailability(t *testing.T) {
	wellBefore := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name    string
		prepare func(*ledger.Ledger)
		units   int
		now     time.Time
		want    bool
	}{
		{
			name:  "open slot with room",
			units: 3,
			now:   wellBefore,
			want:  true,
		},
		{
			name:  "units below minimum",
			units: 0,
			now:   wellBefore,
			want:  false,
		},
		{
			name:  "units above maximum",
			units: 11,
			now:   wellBefore,
			want:  false,
		},
		{
			name:  "more units than available",
			units: 6,
			now:   wellBefore,
			want:  false,
		},
		{
			name:  "cutoff reached",
			units: 1,
			now:   time.Date(2026, 7, 1, 16, 0, 0, 0, time.UTC),
			want:  false,
		},
		{
			name:  "just before cutoff",
			units: 1,
			now:   time.Date(2026, 7, 1, 15, 59, 59, 0, time.UTC),
			want:  true,
		},
		{
			name:    "inactive ledger",
			prepare: func(l *ledger.Ledger) { l.SetActive(false) },
			units:   1,
			now:     wellBefore,
			want:    false,
		},
		{
			name:    "sold out",
			prepare: func(l *ledger.Ledger) { _ = l.Reserve(5) },
			units:   1,
			now:     wellBefore,
			want:    false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t, 5)
			if tc.prepare != nil {
				tc.prepare(l)
			}

			assert.Equal(t, tc.want, l.HasAvailability(tc.units, tc.now))
		})
	}
}

func TestLedger_FinalPriceFollowsMultiplier(t *testing.T) {
	l := newTestLedger(t, 5)

	base, err := ledger.NewMoney(3333)
	require.NoError(t, err)
	mult, err := ledger.NewMultiplier(1.5)
	require.NoError(t, err)

	l.SetPricing(base, mult)
	// 3333 * 1.5 = 4999.5, rounds half away from zero
	assert.Equal(t, int64(5000), l.FinalPrice().Cents())
}
