package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCheckedIn BookingStatus = "CHECKED_IN"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusExpired   BookingStatus = "EXPIRED"
)

// Booking is owned by the booking handlers; the calendar only reads it and reacts to its lifecycle.
type Booking struct {
	ID         string        `json:"id"`
	UnitID     int64         `json:"unit_id"`
	CheckIn    time.Time     `json:"check_in"`
	CheckOut   time.Time     `json:"check_out"`
	Status     BookingStatus `json:"status"`
	GuestEmail string        `json:"guest_email"`
	ExpiresAt  time.Time     `json:"expires_at"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// IsActive reports whether the booking still occupies its days.
func (b Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled && b.Status != BookingStatusExpired
}

func (b Booking) Range() DateRange {
	return NewDateRange(b.CheckIn, b.CheckOut)
}
