package ledger

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	MinPriceMultiplier = 0.5
	MaxPriceMultiplier = 3.0
)

var (
	ErrInvalidMultiplier = errors.New("price multiplier out of range")
	ErrNegativePrice     = errors.New("price cannot be negative")
	ErrInvalidUnitRange  = errors.New("invalid units-per-booking range")
)

// Key identifies one capacity pool: a resource on a date, optionally
// narrowed to a timeslot. Timeslot is empty for all-day inventory.
type Key struct {
	ResourceID uuid.UUID
	Date       time.Time
	Timeslot   string
}

func NewKey(resourceID uuid.UUID, date time.Time, timeslot string) Key {
	return Key{
		ResourceID: resourceID,
		Date:       normalizeDate(date),
		Timeslot:   timeslot,
	}
}

func (k Key) String() string {
	if k.Timeslot == "" {
		return fmt.Sprintf("%s/%s", k.ResourceID, k.Date.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s/%s/%s", k.ResourceID, k.Date.Format("2006-01-02"), k.Timeslot)
}

func normalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Money struct {
	cents int64
}

func NewMoney(cents int64) (Money, error) {
	if cents < 0 {
		return Money{}, ErrNegativePrice
	}
	return Money{cents: cents}, nil
}

func (m Money) Cents() int64 {
	return m.cents
}

// Multiply applies a pricing multiplier, rounding half away from zero to
// whole cents (two decimals of the major unit).
func (m Money) Multiply(factor float64) Money {
	return Money{cents: int64(math.Round(float64(m.cents) * factor))}
}

type Multiplier struct {
	value float64
}

func NewMultiplier(value float64) (Multiplier, error) {
	if value < MinPriceMultiplier || value > MaxPriceMultiplier {
		return Multiplier{}, ErrInvalidMultiplier
	}
	return Multiplier{value: value}, nil
}

func (m Multiplier) Value() float64 {
	return m.value
}

// UnitRange bounds the party size / ticket count of a single booking.
type UnitRange struct {
	min int
	max int
}

func NewUnitRange(min, max int) (UnitRange, error) {
	if min < 1 || max < min {
		return UnitRange{}, ErrInvalidUnitRange
	}
	return UnitRange{min: min, max: max}, nil
}

func (r UnitRange) Min() int { return r.min }
func (r UnitRange) Max() int { return r.max }

func (r UnitRange) Contains(units int) bool {
	return units >= r.min && units <= r.max
}
