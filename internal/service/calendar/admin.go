package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type BlockInput struct {
	UnitID int64
	Range  domain.DateRange
	Status domain.DayStatus
	Reason string
	Notes  string
	Actor  string
}

type UnblockInput struct {
	UnitID int64
	Range  domain.DateRange
	Actor  string
}

// BlockDays places an administrative status on every day of the range. Days held by a booking are
// never overwritten: the whole request is refused with the offending conflicts instead.
func (s *CalendarService) BlockDays(ctx context.Context, input BlockInput) ([]domain.ScheduleRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Calendar.BlockDays")
	defer span.End()
	span.SetAttributes(attribute.Int64("unit_id", input.UnitID), attribute.String("status", input.Status.String()))

	input.Range = domain.NewDateRange(input.Range.Start, input.Range.End)
	if err := input.Range.Validate(); err != nil {
		return nil, err
	}
	if !input.Status.Administrative() {
		return nil, fmt.Errorf("block with status %s: %w", input.Status, domain.ErrInvalidStatus)
	}

	unlock, err := s.locker.Lock(ctx, input.UnitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.schedule.ListByUnitRange(ctx, input.UnitID, input.Range)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	bookings, err := s.bookings.ListActiveOverlapping(ctx, input.UnitID, input.Range)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if check := bookedConflicts(detect(input.UnitID, input.Range, existing, bookings, nil)); check.HasConflicts {
		return nil, &domain.ConflictError{Check: check, Cause: domain.ErrDaysBooked}
	}

	byDay := make(map[int64]domain.ScheduleRecord, len(existing))
	for _, rec := range existing {
		byDay[rec.Date.Unix()] = rec
	}

	now := s.now()
	records := make([]domain.ScheduleRecord, 0, input.Range.Days())
	input.Range.EachDay(func(day time.Time) {
		rec, ok := byDay[day.Unix()]
		if !ok {
			rec = domain.ScheduleRecord{UnitID: input.UnitID, Date: day}
		}
		rec.Status = input.Status
		rec.Reason = optional(input.Reason)
		rec.Notes = optional(input.Notes)
		rec.BookingID = nil
		rec.UpdatedBy = input.Actor
		rec.UpdatedAt = now
		records = append(records, rec)
	})

	if err := s.schedule.Upsert(ctx, records, "days_blocked"); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"unit_id": input.UnitID,
		"status":  input.Status.String(),
		"days":    len(records),
		"actor":   input.Actor,
	}).Info("days blocked")

	s.changed(ctx, input.UnitID)
	return records, nil
}

// UnblockDays lifts administrative statuses in the range. Booked days are left as they are.
func (s *CalendarService) UnblockDays(ctx context.Context, input UnblockInput) ([]domain.ScheduleRecord, error) {
	ctx, span := s.tracer.Start(ctx, "Calendar.UnblockDays")
	defer span.End()
	span.SetAttributes(attribute.Int64("unit_id", input.UnitID))

	input.Range = domain.NewDateRange(input.Range.Start, input.Range.End)
	if err := input.Range.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, input.UnitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.schedule.ListByUnitRange(ctx, input.UnitID, input.Range)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now()
	released := make([]domain.ScheduleRecord, 0)
	for _, rec := range existing {
		if !rec.Status.Administrative() {
			continue
		}
		rec.Release(input.Actor, now)
		released = append(released, rec)
	}
	if len(released) == 0 {
		return released, nil
	}

	if err := s.schedule.BulkUpdate(ctx, released, "days_unblocked"); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"unit_id": input.UnitID,
		"days":    len(released),
		"actor":   input.Actor,
	}).Info("days unblocked")

	s.changed(ctx, input.UnitID)
	return released, nil
}

// bookedConflicts keeps the conflicts a block may not overwrite.
func bookedConflicts(check *domain.ConflictCheck) *domain.ConflictCheck {
	kept := make([]domain.Conflict, 0, len(check.Conflicts))
	for _, c := range check.Conflicts {
		if c.Kind == domain.ConflictBooking || c.Status == domain.DayBooked {
			kept = append(kept, c)
		}
	}
	return &domain.ConflictCheck{HasConflicts: len(kept) > 0, Conflicts: kept}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
