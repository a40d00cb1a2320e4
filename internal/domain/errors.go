package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRange      = errors.New("start date must be before end date")
	ErrInvalidWindow     = errors.New("search window bounds must not be negative")
	ErrVersionConflict   = errors.New("schedule record was modified concurrently")
	ErrDayUnavailable    = errors.New("schedule day is no longer available")
	ErrDaysBooked        = errors.New("range contains booked days")
	ErrUnitLocked        = errors.New("unit calendar is locked by another request")
	ErrBookingNotPending = errors.New("booking is not pending")
	ErrInvalidStatus     = errors.New("status is not allowed here")
	ErrInvalidInput      = errors.New("invalid input")
)

// ConflictError is returned at the orchestrator boundary when a write is refused because of conflicts.
type ConflictError struct {
	Check *ConflictCheck
	Cause error
}

func (e *ConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %d conflict(s)", e.Cause, len(e.Check.Conflicts))
	}
	return fmt.Sprintf("requested range has %d conflict(s)", len(e.Check.Conflicts))
}

func (e *ConflictError) Unwrap() error {
	return e.Cause
}
