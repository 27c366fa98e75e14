package repository

import (
	"context"
	"errors"
	"time"

	"capacity-core/internal/domain/ledger"
	"capacity-core/internal/infra"
	"capacity-core/internal/infra/db"

	"github.com/jackc/pgx/v5"

	"github.com/google/uuid"
)

const ledgerColumns = `resource_id, slot_date, timeslot, slot_start,
	total_capacity, booked_capacity, reserved_capacity,
	base_price_cents, price_multiplier, min_units, max_units,
	cutoff_seconds, is_active, version, updated_at`

type LedgerRepository struct {
	db db.DBTX
}

func NewLedgerRepository(dbtx db.DBTX) *LedgerRepository {
	return &LedgerRepository{db: dbtx}
}

type ledgerRow struct {
	ResourceID       uuid.UUID
	SlotDate         time.Time
	Timeslot         string
	SlotStart        *time.Time
	TotalCapacity    int
	BookedCapacity   int
	ReservedCapacity int
	BasePriceCents   int64
	PriceMultiplier  float64
	MinUnits         int
	MaxUnits         int
	CutoffSeconds    int64
	IsActive         bool
	Version          int64
	UpdatedAt        time.Time
}

func (r *LedgerRepository) Get(ctx context.Context, key ledger.Key) (*ledger.Ledger, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM capacity_ledgers
		WHERE resource_id = $1 AND slot_date = $2 AND timeslot = $3`

	return r.get(ctx, query, key)
}

// GetForUpdate takes the row-level write lock for the duration of the
// enclosing transaction. Two operations on the same key serialize here;
// different keys do not block each other.
func (r *LedgerRepository) GetForUpdate(ctx context.Context, key ledger.Key) (*ledger.Ledger, error) {
	query := `SELECT ` + ledgerColumns + `
		FROM capacity_ledgers
		WHERE resource_id = $1 AND slot_date = $2 AND timeslot = $3
		FOR UPDATE`

	return r.get(ctx, query, key)
}

func (r *LedgerRepository) get(ctx context.Context, query string, key ledger.Key) (*ledger.Ledger, error) {
	var row ledgerRow
	err := r.db.QueryRow(ctx, query, key.ResourceID, key.Date, key.Timeslot).Scan(
		&row.ResourceID, &row.SlotDate, &row.Timeslot, &row.SlotStart,
		&row.TotalCapacity, &row.BookedCapacity, &row.ReservedCapacity,
		&row.BasePriceCents, &row.PriceMultiplier, &row.MinUnits, &row.MaxUnits,
		&row.CutoffSeconds, &row.IsActive, &row.Version, &row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "capacity ledger not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to load capacity ledger", err)
	}

	return rowToLedger(row)
}

func rowToLedger(row ledgerRow) (*ledger.Ledger, error) {
	base, err := ledger.NewMoney(row.BasePriceCents)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "stored base price invalid", err)
	}
	mult, err := ledger.NewMultiplier(row.PriceMultiplier)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "stored price multiplier invalid", err)
	}
	unitRange, err := ledger.NewUnitRange(row.MinUnits, row.MaxUnits)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "stored unit range invalid", err)
	}

	var slotStart time.Time
	if row.SlotStart != nil {
		slotStart = *row.SlotStart
	}

	spec := ledger.Spec{
		Key:             ledger.NewKey(row.ResourceID, row.SlotDate, row.Timeslot),
		SlotStart:       slotStart,
		TotalCapacity:   row.TotalCapacity,
		BasePrice:       base,
		Multiplier:      mult,
		UnitsPerBooking: unitRange,
		Cutoff:          time.Duration(row.CutoffSeconds) * time.Second,
		Active:          row.IsActive,
	}

	return ledger.Reconstruct(spec, row.BookedCapacity, row.ReservedCapacity, row.Version, row.UpdatedAt), nil
}

func (r *LedgerRepository) Create(ctx context.Context, l *ledger.Ledger) error {
	query := `INSERT INTO capacity_ledgers (
			resource_id, slot_date, timeslot, slot_start,
			total_capacity, booked_capacity, reserved_capacity,
			base_price_cents, price_multiplier, min_units, max_units,
			cutoff_seconds, is_active, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)`

	key := l.Key()
	var slotStart *time.Time
	if !l.SlotStart().IsZero() {
		t := l.SlotStart()
		slotStart = &t
	}

	_, err := r.db.Exec(ctx, query,
		key.ResourceID, key.Date, key.Timeslot, slotStart,
		l.TotalCapacity(), l.BookedCapacity(), l.ReservedCapacity(),
		l.BasePrice().Cents(), l.Multiplier().Value(),
		l.UnitsPerBooking().Min(), l.UnitsPerBooking().Max(),
		int64(l.Cutoff().Seconds()), l.IsActive(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return infra.WrapRepoErr(infra.KindDuplicateKey, "capacity ledger already exists", err)
		}
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to create capacity ledger", err)
	}

	return nil
}

// Save writes counters and pricing back under an optimistic version check.
// The caller already holds the row lock, so a stale version here means a
// programming error, not a lost race.
func (r *LedgerRepository) Save(ctx context.Context, l *ledger.Ledger) error {
	query := `UPDATE capacity_ledgers SET
			total_capacity = $4,
			booked_capacity = $5,
			reserved_capacity = $6,
			base_price_cents = $7,
			price_multiplier = $8,
			is_active = $9,
			version = version + 1,
			updated_at = now()
		WHERE resource_id = $1 AND slot_date = $2 AND timeslot = $3 AND version = $10`

	key := l.Key()
	tag, err := r.db.Exec(ctx, query,
		key.ResourceID, key.Date, key.Timeslot,
		l.TotalCapacity(), l.BookedCapacity(), l.ReservedCapacity(),
		l.BasePrice().Cents(), l.Multiplier().Value(), l.IsActive(),
		l.Version(),
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to save capacity ledger", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr(infra.KindStaleVersion, "capacity ledger version changed", nil)
	}

	return nil
}
