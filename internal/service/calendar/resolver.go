package calendar

import (
	"context"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ResolveConflicts proposes a way around each conflict in r. Nothing is written:
// the caller applies a proposal by issuing a new request.
func (s *CalendarService) ResolveConflicts(ctx context.Context, unitID int64, r domain.DateRange, strategy domain.ResolutionStrategy, currentBookingID *string) (*domain.ResolutionResult, error) {
	ctx, span := s.tracer.Start(ctx, "Calendar.ResolveConflicts")
	defer span.End()
	span.SetAttributes(attribute.Int64("unit_id", unitID), attribute.String("strategy", string(strategy)))

	if _, err := domain.ParseResolutionStrategy(string(strategy)); err != nil {
		return nil, err
	}

	check, err := s.CheckConflicts(ctx, unitID, r, currentBookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &domain.ResolutionResult{
		Resolved:   make([]domain.Resolution, 0),
		Unresolved: make([]domain.Conflict, 0),
	}
	if !check.HasConflicts {
		result.Success = true
		return result, nil
	}

	// all conflicts share the same window, so the finder runs at most once
	var alternatives []domain.AlternativePeriod
	if strategy == domain.StrategyFindAlternative {
		alternatives, err = s.FindAlternativePeriods(ctx, unitID, r, s.maxBefore, s.maxAfter)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	for _, c := range check.Conflicts {
		log := s.log.WithFields(logrus.Fields{"unit_id": unitID, "strategy": strategy, "kind": c.Kind})
		if c.BookingID != nil {
			log = log.WithField("booking_id", *c.BookingID)
		}

		switch strategy {
		case domain.StrategyCancelConflicting:
			log.Warn("cancel of conflicting booking requested; authorization is outside the calendar, left unresolved")
			result.Unresolved = append(result.Unresolved, c)

		case domain.StrategySplitPeriod:
			if proposed, ok := splitAround(r, c.Range); ok {
				result.Resolved = append(result.Resolved, domain.Resolution{
					Conflict:      c,
					Strategy:      strategy,
					ProposedRange: &proposed,
				})
				continue
			}
			result.Unresolved = append(result.Unresolved, c)

		case domain.StrategyFindAlternative:
			if len(alternatives) == 0 {
				result.Unresolved = append(result.Unresolved, c)
				continue
			}
			result.Resolved = append(result.Resolved, domain.Resolution{
				Conflict:     c,
				Strategy:     strategy,
				Alternatives: alternatives,
				Note:         "choose one of the alternatives and submit it as a new request",
			})

		case domain.StrategyOverride:
			eligible := c.Status == domain.DayMaintenance || c.Status == domain.DayOwnerUse
			log.WithField("eligible", eligible).Warn("override requested; authorization is outside the calendar, left unresolved")
			result.Unresolved = append(result.Unresolved, c)
		}
	}

	result.Success = len(result.Unresolved) == 0
	return result, nil
}

// splitAround trims the request to the side of the conflict that stays free.
// It only applies when the conflict starts or ends strictly inside the request.
func splitAround(req, conflict domain.DateRange) (domain.DateRange, bool) {
	startsInside := conflict.Start.After(req.Start) && conflict.Start.Before(req.End)
	endsInside := conflict.End.After(req.Start) && conflict.End.Before(req.End)

	switch {
	case startsInside:
		return domain.DateRange{Start: req.Start, End: conflict.Start}, true
	case endsInside:
		return domain.DateRange{Start: conflict.End, End: req.End}, true
	default:
		return domain.DateRange{}, false
	}
}
