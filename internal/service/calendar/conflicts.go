package calendar

import (
	"context"
	"sort"

	"github.com/Domenick1991/staybooking/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CheckConflicts reports every fact that keeps r from being fully available on the unit.
// The range is truncated to whole days but not validated.
func (s *CalendarService) CheckConflicts(ctx context.Context, unitID int64, r domain.DateRange, excludeBookingID *string) (*domain.ConflictCheck, error) {
	ctx, span := s.tracer.Start(ctx, "Calendar.CheckConflicts")
	defer span.End()
	span.SetAttributes(attribute.Int64("unit_id", unitID))

	r = domain.NewDateRange(r.Start, r.End)

	records, err := s.schedule.ListByUnitRange(ctx, unitID, r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	bookings, err := s.bookings.ListActiveOverlapping(ctx, unitID, r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	check := detect(unitID, r, records, bookings, excludeBookingID)
	span.SetAttributes(attribute.Int("conflicts", len(check.Conflicts)))
	return check, nil
}

func detect(unitID int64, r domain.DateRange, records []domain.ScheduleRecord, bookings []domain.Booking, excludeBookingID *string) *domain.ConflictCheck {
	excluded := func(id *string) bool {
		return excludeBookingID != nil && id != nil && *id == *excludeBookingID
	}

	bookingConflicts := make([]domain.Conflict, 0, len(bookings))
	reported := make(map[string]struct{}, len(bookings))
	for _, b := range bookings {
		if !b.IsActive() || !b.Range().Overlaps(r) {
			continue
		}
		id := b.ID
		if excluded(&id) {
			continue
		}
		reported[id] = struct{}{}
		bookingConflicts = append(bookingConflicts, domain.Conflict{
			Kind:      domain.ConflictBooking,
			UnitID:    unitID,
			Range:     b.Range(),
			Status:    domain.DayBooked,
			Reason:    domain.DayBooked.DefaultReason(),
			BookingID: &id,
		})
	}

	blocks := make([]domain.Conflict, 0)
	for _, rec := range records {
		if !rec.Blocking() || !r.Contains(rec.Date) || excluded(rec.BookingID) {
			continue
		}
		// the booking itself already stands for the days it holds
		if rec.Status == domain.DayBooked && rec.BookingID != nil {
			if _, ok := reported[*rec.BookingID]; ok {
				continue
			}
		}
		blocks = append(blocks, domain.Conflict{
			Kind:      domain.ConflictAvailabilityBlock,
			UnitID:    unitID,
			Range:     domain.DateRange{Start: rec.Date, End: rec.Date.AddDate(0, 0, 1)},
			Status:    rec.Status,
			Reason:    rec.EffectiveReason(),
			BookingID: rec.BookingID,
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Range.Start.Before(blocks[j].Range.Start) })
	sort.SliceStable(bookingConflicts, func(i, j int) bool {
		a, b := bookingConflicts[i], bookingConflicts[j]
		if !a.Range.Start.Equal(b.Range.Start) {
			return a.Range.Start.Before(b.Range.Start)
		}
		return *a.BookingID < *b.BookingID
	})

	conflicts := append(blocks, bookingConflicts...)
	return &domain.ConflictCheck{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}
}
