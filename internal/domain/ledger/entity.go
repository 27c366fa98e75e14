package ledger

import (
	"errors"
	"time"
)

var (
	ErrNegativeCapacity       = errors.New("capacity cannot be negative")
	ErrNegativeUnits          = errors.New("units must be positive")
	ErrCapacityExceeded       = errors.New("committed units exceed total capacity")
	ErrReservedUnderflow      = errors.New("reserved capacity underflow")
	ErrBookedUnderflow        = errors.New("booked capacity underflow")
	ErrCapacityBelowCommitted = errors.New("total capacity below committed units")
)

// Ledger is the durable capacity record for one Key. Counters are mutated
// only through the methods below, each of which recomputes the derived
// values in the same step. The reservation coordinator is the sole caller
// of the mutating methods; direct counter writes from anywhere else are
// how overbooking bugs start.
type Ledger struct {
	key       Key
	slotStart time.Time

	totalCapacity    int
	bookedCapacity   int
	reservedCapacity int

	basePrice  Money
	multiplier Multiplier

	unitsPerBooking UnitRange
	cutoff          time.Duration
	active          bool

	// derived, recomputed on every mutation
	availableCapacity int
	soldOut           bool
	finalPrice        Money

	version   int64
	updatedAt time.Time
}

type Spec struct {
	Key             Key
	SlotStart       time.Time
	TotalCapacity   int
	BasePrice       Money
	Multiplier      Multiplier
	UnitsPerBooking UnitRange
	Cutoff          time.Duration
	Active          bool
}

func New(spec Spec) (*Ledger, error) {
	if spec.TotalCapacity < 0 {
		return nil, ErrNegativeCapacity
	}

	l := &Ledger{
		key:             spec.Key,
		slotStart:       spec.SlotStart,
		totalCapacity:   spec.TotalCapacity,
		basePrice:       spec.BasePrice,
		multiplier:      spec.Multiplier,
		unitsPerBooking: spec.UnitsPerBooking,
		cutoff:          spec.Cutoff,
		active:          spec.Active,
	}
	l.recompute()

	return l, nil
}

func Reconstruct(
	spec Spec,
	booked, reserved int,
	version int64,
	updatedAt time.Time,
) *Ledger {
	l := &Ledger{
		key:              spec.Key,
		slotStart:        spec.SlotStart,
		totalCapacity:    spec.TotalCapacity,
		bookedCapacity:   booked,
		reservedCapacity: reserved,
		basePrice:        spec.BasePrice,
		multiplier:       spec.Multiplier,
		unitsPerBooking:  spec.UnitsPerBooking,
		cutoff:           spec.Cutoff,
		active:           spec.Active,
		version:          version,
		updatedAt:        updatedAt,
	}
	l.recompute()

	return l
}

func (l *Ledger) recompute() {
	l.availableCapacity = l.totalCapacity - l.bookedCapacity - l.reservedCapacity
	if l.availableCapacity < 0 {
		l.availableCapacity = 0
	}
	l.soldOut = l.totalCapacity-l.bookedCapacity-l.reservedCapacity <= 0
	l.finalPrice = l.basePrice.Multiply(l.multiplier.Value())
}

// HasAvailability reports whether a booking of the given size could be
// reserved right now. Advisory outside a transaction: a later Reserve can
// still fail once the row is locked.
func (l *Ledger) HasAvailability(units int, now time.Time) bool {
	if !l.active || l.soldOut {
		return false
	}
	if !l.unitsPerBooking.Contains(units) {
		return false
	}
	if l.availableCapacity < units {
		return false
	}
	if !l.slotStart.IsZero() && !now.Before(l.slotStart.Add(-l.cutoff)) {
		return false
	}
	return true
}

// Reserve moves units from available into reserved. The caller must hold
// the row lock for this ledger.
func (l *Ledger) Reserve(units int) error {
	if units <= 0 {
		return ErrNegativeUnits
	}
	if l.bookedCapacity+l.reservedCapacity+units > l.totalCapacity {
		return ErrCapacityExceeded
	}
	l.reservedCapacity += units
	l.recompute()
	return nil
}

// CommitReserve converts a hold into booked capacity.
func (l *Ledger) CommitReserve(units int) error {
	if units <= 0 {
		return ErrNegativeUnits
	}
	if l.reservedCapacity < units {
		return ErrReservedUnderflow
	}
	l.reservedCapacity -= units
	l.bookedCapacity += units
	l.recompute()
	return nil
}

// ReleaseReserved returns held units to the pool (cancel or expiry of a
// pending booking).
func (l *Ledger) ReleaseReserved(units int) error {
	if units <= 0 {
		return ErrNegativeUnits
	}
	if l.reservedCapacity < units {
		return ErrReservedUnderflow
	}
	l.reservedCapacity -= units
	l.recompute()
	return nil
}

// ReleaseBooked returns booked units to the pool (cancel of a confirmed
// booking).
func (l *Ledger) ReleaseBooked(units int) error {
	if units <= 0 {
		return ErrNegativeUnits
	}
	if l.bookedCapacity < units {
		return ErrBookedUnderflow
	}
	l.bookedCapacity -= units
	l.recompute()
	return nil
}

// Resize changes total capacity. Fails when the new total would
// under-provision units already booked or held.
func (l *Ledger) Resize(newTotal int) error {
	if newTotal < 0 {
		return ErrNegativeCapacity
	}
	if newTotal < l.bookedCapacity+l.reservedCapacity {
		return ErrCapacityBelowCommitted
	}
	l.totalCapacity = newTotal
	l.recompute()
	return nil
}

func (l *Ledger) SetActive(active bool) {
	l.active = active
}

func (l *Ledger) SetPricing(base Money, mult Multiplier) {
	l.basePrice = base
	l.multiplier = mult
	l.recompute()
}

func (l *Ledger) Key() Key                  { return l.key }
func (l *Ledger) SlotStart() time.Time      { return l.slotStart }
func (l *Ledger) TotalCapacity() int        { return l.totalCapacity }
func (l *Ledger) BookedCapacity() int       { return l.bookedCapacity }
func (l *Ledger) ReservedCapacity() int     { return l.reservedCapacity }
func (l *Ledger) AvailableCapacity() int    { return l.availableCapacity }
func (l *Ledger) IsSoldOut() bool           { return l.soldOut }
func (l *Ledger) IsActive() bool            { return l.active }
func (l *Ledger) BasePrice() Money          { return l.basePrice }
func (l *Ledger) Multiplier() Multiplier    { return l.multiplier }
func (l *Ledger) FinalPrice() Money         { return l.finalPrice }
func (l *Ledger) UnitsPerBooking() UnitRange { return l.unitsPerBooking }
func (l *Ledger) Cutoff() time.Duration     { return l.cutoff }
func (l *Ledger) Version() int64            { return l.version }
func (l *Ledger) UpdatedAt() time.Time      { return l.updatedAt }
