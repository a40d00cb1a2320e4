package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayStatus is the availability state of one unit on one calendar day.
type DayStatus uint8

const (
	DayAvailable DayStatus = iota
	DayBooked
	DayBlocked
	DayMaintenance
	DayOwnerUse
)

var dayStatusNames = [...]string{
	DayAvailable:   "Available",
	DayBooked:      "Booked",
	DayBlocked:     "Blocked",
	DayMaintenance: "Maintenance",
	DayOwnerUse:    "OwnerUse",
}

func (s DayStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("DayStatus(%d)", uint8(s))
	}
	return dayStatusNames[s]
}

func (s DayStatus) Valid() bool {
	return int(s) < len(dayStatusNames)
}

// DefaultReason is the reason reported for a non-available day that has no stored reason.
func (s DayStatus) DefaultReason() string {
	switch s {
	case DayBooked:
		return "reserved by a guest"
	case DayBlocked:
		return "blocked"
	case DayMaintenance:
		return "under maintenance"
	case DayOwnerUse:
		return "reserved for owner use"
	default:
		return ""
	}
}

// Administrative reports whether the status can be placed by an owner or administrator block.
func (s DayStatus) Administrative() bool {
	return s == DayBlocked || s == DayMaintenance || s == DayOwnerUse
}

func ParseDayStatus(v string) (DayStatus, error) {
	for i, name := range dayStatusNames {
		if name == v {
			return DayStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown day status %q: %w", v, ErrInvalidStatus)
}

func (s DayStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid day status %d", uint8(s))
	}
	return json.Marshal(s.String())
}

func (s *DayStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseDayStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type ScheduleKey struct {
	UnitID int64
	Date   time.Time
}

func NewScheduleKey(unitID int64, date time.Time) ScheduleKey {
	return ScheduleKey{UnitID: unitID, Date: Normalize(date)}
}

// ScheduleRecord is the persisted per-day state of a unit. Version is the optimistic row token.
type ScheduleRecord struct {
	UnitID    int64     `json:"unit_id"`
	Date      time.Time `json:"date"`
	Status    DayStatus `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	BookingID *string   `json:"booking_id,omitempty"`
	Deleted   bool      `json:"-"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

func (r ScheduleRecord) Key() ScheduleKey {
	return NewScheduleKey(r.UnitID, r.Date)
}

// Blocking reports whether the record makes its day unavailable.
func (r ScheduleRecord) Blocking() bool {
	return !r.Deleted && r.Status != DayAvailable
}

// EffectiveReason returns the stored reason, or the status default when none is stored.
func (r ScheduleRecord) EffectiveReason() string {
	if r.Reason != nil && *r.Reason != "" {
		return *r.Reason
	}
	return r.Status.DefaultReason()
}

func (r ScheduleRecord) HeldBy(bookingID string) bool {
	return r.BookingID != nil && *r.BookingID == bookingID
}

// Release resets the record to Available and clears everything a block or booking attached to it.
func (r *ScheduleRecord) Release(actor string, now time.Time) {
	r.Status = DayAvailable
	r.Reason = nil
	r.Notes = nil
	r.BookingID = nil
	r.UpdatedBy = actor
	r.UpdatedAt = now
}
