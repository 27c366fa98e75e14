package repository

import (
	"context"

	"capacity-core/internal/infra"
	"capacity-core/internal/infra/db"
)

type SequenceRepository struct {
	db db.DBTX
}

func NewSequenceRepository(dbtx db.DBTX) *SequenceRepository {
	return &SequenceRepository{db: dbtx}
}

// NextBookingSeq returns the next value of the per-year booking sequence
// via a single atomic upsert. Counting existing rows and adding one races
// under concurrency and hands out duplicate references; the counter row
// does not.
func (r *SequenceRepository) NextBookingSeq(ctx context.Context, year int) (int64, error) {
	query := `INSERT INTO booking_sequences (year, value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = booking_sequences.value + 1
		RETURNING value`

	var value int64
	if err := r.db.QueryRow(ctx, query, year).Scan(&value); err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to advance booking sequence", err)
	}

	return value, nil
}
