// Package memory keeps the calendar in process: an addressable map of day records keyed by
// (unit, date) with the same version checks as the Postgres repositories.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	days     map[domain.ScheduleKey]domain.ScheduleRecord
	bookings map[string]domain.Booking
	outbox   []domain.OutboxEntry
	claims   map[string]time.Time
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		days:     make(map[domain.ScheduleKey]domain.ScheduleRecord),
		bookings: make(map[string]domain.Booking),
		claims:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for audit timestamps and outbox leases.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// PutBooking stores a booking row without touching the calendar, the way a diverged grid looks.
func (s *Store) PutBooking(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// PutRecord stores a record verbatim, bumping its version as a write would.
func (s *Store) PutRecord(rec domain.ScheduleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Date = domain.Normalize(rec.Date)
	rec.Version++
	s.days[rec.Key()] = rec
}

// Record returns the live record of a day.
func (s *Store) Record(unitID int64, day time.Time) (domain.ScheduleRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.days[domain.NewScheduleKey(unitID, day)]
	return rec, ok
}

// Outbox returns a copy of every outbox entry.
func (s *Store) Outbox() []domain.OutboxEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.OutboxEntry(nil), s.outbox...)
}

func (s *Store) ListByUnitRange(_ context.Context, unitID int64, r domain.DateRange) ([]domain.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ScheduleRecord, 0)
	r.EachDay(func(day time.Time) {
		if rec, ok := s.days[domain.NewScheduleKey(unitID, day)]; ok && !rec.Deleted {
			records = append(records, rec)
		}
	})
	return records, nil
}

func (s *Store) ListByBooking(_ context.Context, bookingID string) ([]domain.ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.ScheduleRecord, 0)
	for _, rec := range s.days {
		if !rec.Deleted && rec.HeldBy(bookingID) {
			records = append(records, rec)
		}
	}
	sortRecords(records)
	return records, nil
}

func (s *Store) AvailableDays(_ context.Context, unitID int64, r domain.DateRange) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make([]time.Time, 0)
	r.EachDay(func(day time.Time) {
		if rec, ok := s.days[domain.NewScheduleKey(unitID, day)]; ok && rec.Blocking() {
			return
		}
		days = append(days, day)
	})
	return days, nil
}

func (s *Store) BulkUpdate(_ context.Context, records []domain.ScheduleRecord, outboxReason string) error {
	return s.write(records, outboxReason, false)
}

func (s *Store) Upsert(_ context.Context, records []domain.ScheduleRecord, outboxReason string) error {
	return s.write(records, outboxReason, true)
}

func (s *Store) write(records []domain.ScheduleRecord, outboxReason string, allowInsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate everything first so a failed batch leaves the map untouched
	for _, rec := range records {
		if !rec.Status.Valid() {
			return domain.ErrInvalidStatus
		}
		current, exists := s.days[rec.Key()]
		live := exists && !current.Deleted
		switch {
		case rec.Version == 0 && allowInsert:
			if live {
				return versionConflict(rec)
			}
		case !live || current.Version != rec.Version:
			return versionConflict(rec)
		}
	}

	now := s.now()
	units := make(map[int64]struct{})
	for _, rec := range records {
		rec.Date = domain.Normalize(rec.Date)
		if current, ok := s.days[rec.Key()]; ok && !current.Deleted {
			rec.CreatedAt = current.CreatedAt
		} else {
			rec.CreatedAt = now
		}
		rec.Version++
		rec.UpdatedAt = now
		s.days[rec.Key()] = rec
		units[rec.UnitID] = struct{}{}
	}
	if outboxReason != "" {
		for unitID := range units {
			s.enqueueLocked(unitID, outboxReason)
		}
	}
	return nil
}

func (s *Store) ListUnits(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	for key := range s.days {
		seen[key.UnitID] = struct{}{}
	}
	for _, b := range s.bookings {
		seen[b.UnitID] = struct{}{}
	}
	units := make([]int64, 0, len(seen))
	for id := range seen {
		units = append(units, id)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units, nil
}

func (s *Store) ListActiveOverlapping(_ context.Context, unitID int64, r domain.DateRange) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bookings := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.UnitID == unitID && b.IsActive() && b.Range().Overlaps(r) {
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].CheckIn.Equal(bookings[j].CheckIn) {
			return bookings[i].CheckIn.Before(bookings[j].CheckIn)
		}
		return bookings[i].ID < bookings[j].ID
	})
	return bookings, nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (s *Store) CreateWithSchedule(_ context.Context, booking *domain.Booking, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	r := booking.Range()
	var unavailable error
	r.EachDay(func(day time.Time) {
		if rec, ok := s.days[domain.NewScheduleKey(booking.UnitID, day)]; ok && rec.Blocking() && unavailable == nil {
			unavailable = fmt.Errorf("unit %d day %s: %w", booking.UnitID, day.Format(time.DateOnly), domain.ErrDayUnavailable)
		}
	})
	if unavailable != nil {
		return unavailable
	}

	now := s.now()
	booking.CreatedAt, booking.UpdatedAt = now, now
	s.bookings[booking.ID] = *booking

	id := booking.ID
	r.EachDay(func(day time.Time) {
		key := domain.NewScheduleKey(booking.UnitID, day)
		rec, ok := s.days[key]
		if !ok || rec.Deleted {
			rec = domain.ScheduleRecord{UnitID: booking.UnitID, Date: day, CreatedAt: now}
		}
		rec.Status = domain.DayBooked
		rec.BookingID = &id
		rec.Reason, rec.Notes = nil, nil
		rec.Version++
		rec.UpdatedAt = now
		rec.UpdatedBy = actor
		s.days[key] = rec
	})
	s.enqueueLocked(booking.UnitID, "booking_created")
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status domain.BookingStatus) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = s.now()
	s.bookings[id] = b
	return &b, nil
}

func (s *Store) CancelWithSchedule(_ context.Context, id string, status domain.BookingStatus, actor string) (*domain.Booking, []domain.ScheduleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if !b.IsActive() {
		return &b, nil, nil
	}

	now := s.now()
	b.Status = status
	b.UpdatedAt = now
	s.bookings[id] = b

	released := make([]domain.ScheduleRecord, 0)
	for key, rec := range s.days {
		if rec.Deleted || !rec.HeldBy(id) {
			continue
		}
		rec.Release(actor, now)
		rec.Version++
		s.days[key] = rec
		released = append(released, rec)
	}
	sortRecords(released)
	s.enqueueLocked(b.UnitID, "booking_"+strings.ToLower(string(status)))
	return &b, released, nil
}

func (s *Store) ListExpiredPending(_ context.Context, deadline time.Time) ([]domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expired := make([]domain.Booking, 0)
	for _, b := range s.bookings {
		if b.Status == domain.BookingStatusPending && !b.ExpiresAt.After(deadline) {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	return expired, nil
}

func (s *Store) Enqueue(_ context.Context, unitID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(unitID, reason)
	return nil
}

func (s *Store) ClaimPending(_ context.Context, limit int, lease time.Duration) ([]domain.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	claimed := make([]domain.OutboxEntry, 0)
	for i := range s.outbox {
		if len(claimed) >= limit {
			break
		}
		e := &s.outbox[i]
		if e.ProcessedAt != nil {
			continue
		}
		if until, ok := s.claims[e.ID]; ok && until.After(now) {
			continue
		}
		e.Attempts++
		s.claims[e.ID] = now.Add(lease)
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (s *Store) PendingIDs(_ context.Context, unitID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for _, e := range s.outbox {
		if e.UnitID == unitID && e.ProcessedAt == nil {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

func (s *Store) MarkProcessed(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settle := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		settle[id] = struct{}{}
	}
	now := s.now()
	for i := range s.outbox {
		e := &s.outbox[i]
		if _, ok := settle[e.ID]; ok && e.ProcessedAt == nil {
			e.ProcessedAt = &now
			delete(s.claims, e.ID)
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID == id {
			if cause != nil {
				s.outbox[i].LastError = cause.Error()
			}
			delete(s.claims, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) enqueueLocked(unitID int64, reason string) {
	s.outbox = append(s.outbox, domain.OutboxEntry{
		ID:        uuid.NewString(),
		UnitID:    unitID,
		Reason:    reason,
		CreatedAt: s.now(),
	})
}

func versionConflict(rec domain.ScheduleRecord) error {
	return fmt.Errorf("unit %d day %s: %w", rec.UnitID, rec.Date.Format(time.DateOnly), domain.ErrVersionConflict)
}

func sortRecords(records []domain.ScheduleRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].UnitID != records[j].UnitID {
			return records[i].UnitID < records[j].UnitID
		}
		return records[i].Date.Before(records[j].Date)
	})
}

var (
	_ repository.ScheduleRepository = (*Store)(nil)
	_ repository.BookingRepository  = (*Store)(nil)
	_ repository.OutboxRepository   = (*Store)(nil)
)
