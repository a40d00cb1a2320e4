package domain

import (
	"fmt"
	"time"
)

type ConflictKind string

const (
	ConflictAvailabilityBlock ConflictKind = "AvailabilityBlock"
	ConflictBooking           ConflictKind = "BookingConflict"
)

type Conflict struct {
	Kind      ConflictKind `json:"kind"`
	UnitID    int64        `json:"unit_id"`
	Range     DateRange    `json:"range"`
	Status    DayStatus    `json:"status"`
	Reason    string       `json:"reason"`
	BookingID *string      `json:"booking_id,omitempty"`
}

func (c Conflict) References(bookingID string) bool {
	return c.BookingID != nil && *c.BookingID == bookingID
}

type ConflictCheck struct {
	HasConflicts bool       `json:"has_conflicts"`
	Conflicts    []Conflict `json:"conflicts"`
}

type ResolutionStrategy string

const (
	StrategyCancelConflicting ResolutionStrategy = "CancelConflicting"
	StrategySplitPeriod       ResolutionStrategy = "SplitPeriod"
	StrategyFindAlternative   ResolutionStrategy = "FindAlternative"
	StrategyOverride          ResolutionStrategy = "Override"
)

func ParseResolutionStrategy(v string) (ResolutionStrategy, error) {
	switch s := ResolutionStrategy(v); s {
	case StrategyCancelConflicting, StrategySplitPeriod, StrategyFindAlternative, StrategyOverride:
		return s, nil
	}
	return "", fmt.Errorf("unknown resolution strategy %q: %w", v, ErrInvalidInput)
}

type Resolution struct {
	Conflict      Conflict            `json:"conflict"`
	Strategy      ResolutionStrategy  `json:"strategy"`
	ProposedRange *DateRange          `json:"proposed_range,omitempty"`
	Alternatives  []AlternativePeriod `json:"alternatives,omitempty"`
	Note          string              `json:"note,omitempty"`
}

type ResolutionResult struct {
	Success    bool         `json:"success"`
	Resolved   []Resolution `json:"resolved"`
	Unresolved []Conflict   `json:"unresolved"`
}

type AlternativePeriod struct {
	Start                 time.Time `json:"start"`
	End                   time.Time `json:"end"`
	DistanceFromPreferred int       `json:"distance_from_preferred"`
	IsBefore              bool      `json:"is_before"`
}

func (p AlternativePeriod) Range() DateRange {
	return DateRange{Start: p.Start, End: p.End}
}
