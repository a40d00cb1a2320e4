package domain

import "time"

// AvailabilitySnapshot is the forward-looking availability document published to the search index.
type AvailabilitySnapshot struct {
	UnitID      int64       `json:"unit_id"`
	From        time.Time   `json:"from"`
	To          time.Time   `json:"to"`
	Ranges      []DateRange `json:"ranges"`
	GeneratedAt time.Time   `json:"generated_at"`
	Version     int64       `json:"version"`
}

// AvailableDays counts the days covered by Ranges.
func (s AvailabilitySnapshot) AvailableDays() int {
	total := 0
	for _, r := range s.Ranges {
		total += r.Days()
	}
	return total
}

// CollapseDays folds sorted, distinct days into maximal runs of consecutive days.
func CollapseDays(days []time.Time) []DateRange {
	ranges := make([]DateRange, 0)
	for _, d := range days {
		d = Normalize(d)
		if n := len(ranges); n > 0 && ranges[n-1].End.Equal(d) {
			ranges[n-1].End = d.AddDate(0, 0, 1)
			continue
		}
		ranges = append(ranges, DateRange{Start: d, End: d.AddDate(0, 0, 1)})
	}
	return ranges
}

type OutboxEntry struct {
	ID          string     `json:"id"`
	UnitID      int64      `json:"unit_id"`
	Reason      string     `json:"reason"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
