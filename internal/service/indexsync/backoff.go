package indexsync

import "time"

// BackoffPolicy decides how many pushes are tried and how long to wait after a failed one.
type BackoffPolicy interface {
	MaxAttempts() int
	// Delay is the wait after failed attempt n, counted from 1.
	Delay(attempt int) time.Duration
}

// LinearBackoff waits attempt*Step after each failure.
type LinearBackoff struct {
	Step     time.Duration
	Attempts int
}

func (b LinearBackoff) MaxAttempts() int {
	if b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

func (b LinearBackoff) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * b.Step
}
