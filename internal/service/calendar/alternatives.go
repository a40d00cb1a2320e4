package calendar

import (
	"context"
	"sort"

	"github.com/Domenick1991/staybooking/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FindAlternativePeriods slides a window of the preferred length one day at a time across
// [preferred.Start-maxDaysBefore, preferred.End+maxDaysAfter) and returns every conflict-free
// candidate, nearest to the preferred start first.
func (s *CalendarService) FindAlternativePeriods(ctx context.Context, unitID int64, preferred domain.DateRange, maxDaysBefore, maxDaysAfter int) ([]domain.AlternativePeriod, error) {
	ctx, span := s.tracer.Start(ctx, "Calendar.FindAlternativePeriods")
	defer span.End()
	span.SetAttributes(attribute.Int64("unit_id", unitID), attribute.Int("before", maxDaysBefore), attribute.Int("after", maxDaysAfter))

	preferred = domain.NewDateRange(preferred.Start, preferred.End)
	if err := preferred.Validate(); err != nil {
		return nil, err
	}
	if maxDaysBefore < 0 || maxDaysAfter < 0 {
		return nil, domain.ErrInvalidWindow
	}

	window := domain.DateRange{
		Start: preferred.Start.AddDate(0, 0, -maxDaysBefore),
		End:   preferred.End.AddDate(0, 0, maxDaysAfter),
	}
	records, err := s.schedule.ListByUnitRange(ctx, unitID, window)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	bookings, err := s.bookings.ListActiveOverlapping(ctx, unitID, window)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	blocked := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if rec.Blocking() {
			blocked[rec.Date.Unix()] = struct{}{}
		}
	}

	duration := preferred.Days()
	candidates := make([]domain.AlternativePeriod, 0)
	for start := window.Start; !start.AddDate(0, 0, duration).After(window.End); start = start.AddDate(0, 0, 1) {
		cand := domain.DateRange{Start: start, End: start.AddDate(0, 0, duration)}
		if !free(cand, blocked, bookings) {
			continue
		}
		distance := domain.DaysBetween(preferred.Start, start)
		candidates = append(candidates, domain.AlternativePeriod{
			Start:                 cand.Start,
			End:                   cand.End,
			DistanceFromPreferred: abs(distance),
			IsBefore:              distance < 0,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceFromPreferred < candidates[j].DistanceFromPreferred
	})
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return candidates, nil
}

func free(r domain.DateRange, blocked map[int64]struct{}, bookings []domain.Booking) bool {
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		if _, ok := blocked[d.Unix()]; ok {
			return false
		}
	}
	for _, b := range bookings {
		if b.IsActive() && b.Range().Overlaps(r) {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
