package calendar

import (
	"context"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository"
)

// SnapshotBuilder computes the available ranges of a unit from the day grid and the active bookings.
// A day counts as available only when both sources agree.
type SnapshotBuilder struct {
	schedule repository.ScheduleRepository
	bookings BookingReader
	now      func() time.Time
}

func NewSnapshotBuilder(schedule repository.ScheduleRepository, bookings BookingReader) *SnapshotBuilder {
	return &SnapshotBuilder{schedule: schedule, bookings: bookings, now: time.Now}
}

func (b *SnapshotBuilder) Build(ctx context.Context, unitID int64, r domain.DateRange) (*domain.AvailabilitySnapshot, error) {
	days, err := b.schedule.AvailableDays(ctx, unitID, r)
	if err != nil {
		return nil, err
	}
	active, err := b.bookings.ListActiveOverlapping(ctx, unitID, r)
	if err != nil {
		return nil, err
	}

	free := make([]time.Time, 0, len(days))
	for _, d := range days {
		if !coveredByBooking(active, d) {
			free = append(free, d)
		}
	}

	generated := b.now().UTC()
	return &domain.AvailabilitySnapshot{
		UnitID:      unitID,
		From:        r.Start,
		To:          r.End,
		Ranges:      domain.CollapseDays(free),
		GeneratedAt: generated,
		Version:     generated.UnixNano(),
	}, nil
}

// Horizon builds the forward-looking snapshot starting today.
func (b *SnapshotBuilder) Horizon(ctx context.Context, unitID int64, months int) (*domain.AvailabilitySnapshot, error) {
	today := domain.Normalize(b.now())
	return b.Build(ctx, unitID, domain.DateRange{Start: today, End: today.AddDate(0, months, 0)})
}

func coveredByBooking(bookings []domain.Booking, day time.Time) bool {
	for _, bk := range bookings {
		if bk.Range().Contains(day) {
			return true
		}
	}
	return false
}
