//go:build e2e

package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"
	"capacity-core/internal/pkg/errs"
	"capacity-core/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLedger(t *testing.T, e *testEngine, total int) ledger.Key {
	t.Helper()

	base, err := ledger.NewMoney(2500)
	require.NoError(t, err)
	mult, err := ledger.NewMultiplier(1.2)
	require.NoError(t, err)
	unitRange, err := ledger.NewUnitRange(1, 50)
	require.NoError(t, err)

	key := ledger.NewKey(uuid.New(), time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC), "18:00")
	_, err = e.coordinator.CreateLedger(context.Background(), ledger.Spec{
		Key:             key,
		SlotStart:       time.Date(2026, 7, 2, 18, 0, 0, 0, time.UTC),
		TotalCapacity:   total,
		BasePrice:       base,
		Multiplier:      mult,
		UnitsPerBooking: unitRange,
		Cutoff:          time.Hour,
		Active:          true,
	})
	require.NoError(t, err)

	return key
}

func snapshot(t *testing.T, e *testEngine, key ledger.Key) *queries.LedgerView {
	t.Helper()

	snap, err := e.coordinator.Snapshot(context.Background(), key)
	require.NoError(t, err)
	return snap
}

func TestEngine_ReserveConfirmCancelAgainstPostgres(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	key := seedLedger(t, e, 5)

	b, err := e.coordinator.Reserve(ctx, key, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, "pending", b.Status)
	assert.Equal(t, int64(9000), b.PriceCents, "3 units at 2500 x 1.2")

	parts, err := booking.ParseReference(b.Reference)
	require.NoError(t, err)
	assert.Equal(t, 2026, parts.Year)

	snap := snapshot(t, e, key)
	assert.Equal(t, 3, snap.ReservedCapacity)
	assert.Equal(t, 2, snap.AvailableCapacity)

	confirmed, err := e.coordinator.Confirm(ctx, b.ID, "pay-tx-1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", confirmed.Status)

	snap = snapshot(t, e, key)
	assert.Equal(t, 3, snap.BookedCapacity)
	assert.Equal(t, 0, snap.ReservedCapacity)

	_, err = e.coordinator.Cancel(ctx, b.ID, uuid.New(), "customer request")
	require.NoError(t, err)

	snap = snapshot(t, e, key)
	assert.Equal(t, 0, snap.BookedCapacity)
	assert.Equal(t, 5, snap.AvailableCapacity)
}

func TestEngine_NoOverbookingUnderConcurrentLoad(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	const attempts = 30
	key := seedLedger(t, e, attempts-1)

	var wg sync.WaitGroup
	errCh := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.coordinator.Reserve(ctx, key, 1, 0)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	succeeded, rejected := 0, 0
	for err := range errCh {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, errs.ErrInsufficientCapacity)
			rejected++
		}
	}
	assert.Equal(t, attempts-1, succeeded)
	assert.Equal(t, 1, rejected)

	snap := snapshot(t, e, key)
	assert.Equal(t, attempts-1, snap.ReservedCapacity)
	assert.Equal(t, 0, snap.AvailableCapacity)
}

func TestEngine_ConcurrentReferencesAreDistinct(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	const n = 25
	key := seedLedger(t, e, n)

	var wg sync.WaitGroup
	refCh := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := e.coordinator.Reserve(ctx, key, 1, 0)
			assert.NoError(t, err)
			if err == nil {
				refCh <- b.Reference
			}
		}()
	}
	wg.Wait()
	close(refCh)

	seen := make(map[string]bool, n)
	for ref := range refCh {
		assert.False(t, seen[ref], "reference %s issued twice", ref)
		seen[ref] = true
	}
	assert.Len(t, seen, n)
}

func TestEngine_SweeperReclaimsExpiredHolds(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	key := seedLedger(t, e, 5)

	held, err := e.coordinator.Reserve(ctx, key, 3, 900*time.Second)
	require.NoError(t, err)
	confirmed, err := e.coordinator.Reserve(ctx, key, 1, 900*time.Second)
	require.NoError(t, err)
	_, err = e.coordinator.Confirm(ctx, confirmed.ID, "pay-tx-1")
	require.NoError(t, err)

	e.clock.Add(901 * time.Second)

	released, err := e.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	view, err := e.coordinator.GetBooking(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, "expired", view.Status)

	snap := snapshot(t, e, key)
	assert.Equal(t, 1, snap.BookedCapacity)
	assert.Equal(t, 0, snap.ReservedCapacity)
	assert.Equal(t, 4, snap.AvailableCapacity)
}

func TestEngine_ConfirmIdempotencyAgainstPostgres(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	key := seedLedger(t, e, 5)

	b, err := e.coordinator.Reserve(ctx, key, 2, 0)
	require.NoError(t, err)

	_, err = e.coordinator.Confirm(ctx, b.ID, "pay-tx-1")
	require.NoError(t, err)
	_, err = e.coordinator.Confirm(ctx, b.ID, "pay-tx-1")
	require.NoError(t, err)

	snap := snapshot(t, e, key)
	assert.Equal(t, 2, snap.BookedCapacity, "replayed confirm must not commit twice")

	_, err = e.coordinator.Confirm(ctx, b.ID, "pay-tx-2")
	require.ErrorIs(t, err, errs.ErrPaymentConflict)
}

func TestEngine_ResizeAndSyncConflicts(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()
	key := seedLedger(t, e, 5)

	b, err := e.coordinator.Reserve(ctx, key, 3, 0)
	require.NoError(t, err)
	_, err = e.coordinator.Confirm(ctx, b.ID, "pay-tx-1")
	require.NoError(t, err)

	_, err = e.coordinator.Resize(ctx, key, 2)
	require.ErrorIs(t, err, errs.ErrCapacityBelowCommitted)

	_, err = e.coordinator.SyncInventory(ctx, key, 2, 0)
	require.ErrorIs(t, err, errs.ErrSyncConflict)

	view, err := e.coordinator.SyncInventory(ctx, key, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, 10, view.TotalCapacity)
	assert.Equal(t, 7, view.AvailableCapacity)
}
