package queries

import (
	"time"

	"capacity-core/internal/domain/booking"
	"capacity-core/internal/domain/ledger"

	"github.com/google/uuid"
)

// Read models (DTO for read side)
type LedgerView struct {
	ResourceID        uuid.UUID `json:"resource_id"`
	Date              string    `json:"date"`
	Timeslot          string    `json:"timeslot,omitempty"`
	TotalCapacity     int       `json:"total_capacity"`
	BookedCapacity    int       `json:"booked_capacity"`
	ReservedCapacity  int       `json:"reserved_capacity"`
	AvailableCapacity int       `json:"available_capacity"`
	FinalPriceCents   int64     `json:"final_price_cents"`
	IsSoldOut         bool      `json:"is_sold_out"`
	IsActive          bool      `json:"is_active"`
}

type BookingView struct {
	ID            uuid.UUID  `json:"id"`
	Reference     string     `json:"reference"`
	ResourceID    uuid.UUID  `json:"resource_id"`
	Date          string     `json:"date"`
	Timeslot      string     `json:"timeslot,omitempty"`
	Units         int        `json:"units"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	PriceCents    int64      `json:"price_cents"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func NewLedgerView(l *ledger.Ledger) *LedgerView {
	key := l.Key()
	return &LedgerView{
		ResourceID:        key.ResourceID,
		Date:              key.Date.Format("2006-01-02"),
		Timeslot:          key.Timeslot,
		TotalCapacity:     l.TotalCapacity(),
		BookedCapacity:    l.BookedCapacity(),
		ReservedCapacity:  l.ReservedCapacity(),
		AvailableCapacity: l.AvailableCapacity(),
		FinalPriceCents:   l.FinalPrice().Cents(),
		IsSoldOut:         l.IsSoldOut(),
		IsActive:          l.IsActive(),
	}
}

func NewBookingView(b *booking.Booking) *BookingView {
	key := b.LedgerKey()
	return &BookingView{
		ID:            b.ID(),
		Reference:     b.Reference(),
		ResourceID:    key.ResourceID,
		Date:          key.Date.Format("2006-01-02"),
		Timeslot:      key.Timeslot,
		Units:         b.Units(),
		Status:        b.Status().String(),
		PaymentStatus: b.PaymentStatus().String(),
		PriceCents:    b.Price().Cents(),
		HoldExpiresAt: b.HoldExpiresAt(),
		CancelReason:  b.CancelReason(),
		CreatedAt:     b.CreatedAt(),
		UpdatedAt:     b.UpdatedAt(),
	}
}
