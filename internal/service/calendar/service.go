package calendar

import (
	"context"
	"time"

	"github.com/Domenick1991/staybooking/internal/cache"
	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type CalendarUseCase interface {
	CheckConflicts(ctx context.Context, unitID int64, r domain.DateRange, excludeBookingID *string) (*domain.ConflictCheck, error)
	ResolveConflicts(ctx context.Context, unitID int64, r domain.DateRange, strategy domain.ResolutionStrategy, currentBookingID *string) (*domain.ResolutionResult, error)
	FindAlternativePeriods(ctx context.Context, unitID int64, preferred domain.DateRange, maxDaysBefore, maxDaysAfter int) ([]domain.AlternativePeriod, error)
	BlockDays(ctx context.Context, input BlockInput) ([]domain.ScheduleRecord, error)
	UnblockDays(ctx context.Context, input UnblockInput) ([]domain.ScheduleRecord, error)
	GetAvailability(ctx context.Context, unitID int64, r domain.DateRange) (*domain.AvailabilitySnapshot, error)
}

// BookingReader is the part of the booking store the calendar reads.
type BookingReader interface {
	ListActiveOverlapping(ctx context.Context, unitID int64, r domain.DateRange) ([]domain.Booking, error)
}

// ChangeNotifier is told about every committed calendar change.
type ChangeNotifier interface {
	OnAvailabilityChanged(ctx context.Context, unitID int64)
}

type SnapshotCache interface {
	Get(ctx context.Context, unitID int64, r domain.DateRange) (*domain.AvailabilitySnapshot, bool)
	Set(ctx context.Context, snap *domain.AvailabilitySnapshot)
	Invalidate(ctx context.Context, unitID int64) error
}

type CalendarService struct {
	schedule  repository.ScheduleRepository
	bookings  BookingReader
	snapshots *SnapshotBuilder
	locker    cache.UnitLocker
	notifier  ChangeNotifier
	cache     SnapshotCache
	tracer    trace.Tracer
	log       logrus.FieldLogger
	maxBefore int
	maxAfter  int
	now       func() time.Time
}

type CalendarServiceOption func(*CalendarService)

func WithLocker(l cache.UnitLocker) CalendarServiceOption {
	return func(s *CalendarService) {
		s.locker = l
	}
}

func WithNotifier(n ChangeNotifier) CalendarServiceOption {
	return func(s *CalendarService) {
		s.notifier = n
	}
}

func WithSnapshotCache(c SnapshotCache) CalendarServiceOption {
	return func(s *CalendarService) {
		s.cache = c
	}
}

func WithTracer(t trace.Tracer) CalendarServiceOption {
	return func(s *CalendarService) {
		s.tracer = t
	}
}

func WithLogger(l logrus.FieldLogger) CalendarServiceOption {
	return func(s *CalendarService) {
		s.log = l
	}
}

// WithAlternativeWindow sets the search window FindAlternative resolutions use.
func WithAlternativeWindow(before, after int) CalendarServiceOption {
	return func(s *CalendarService) {
		s.maxBefore, s.maxAfter = before, after
	}
}

func WithClock(now func() time.Time) CalendarServiceOption {
	return func(s *CalendarService) {
		s.now = now
	}
}

func NewCalendarService(schedule repository.ScheduleRepository, bookings BookingReader, opts ...CalendarServiceOption) *CalendarService {
	s := &CalendarService{
		schedule:  schedule,
		bookings:  bookings,
		snapshots: NewSnapshotBuilder(schedule, bookings),
		locker:    cache.NewLocalLocker(),
		tracer:    otel.Tracer("calendar"),
		log:       logrus.StandardLogger(),
		maxBefore: 14,
		maxAfter:  14,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshots.now = s.now
	return s
}

// SetNotifier attaches the change notifier once it has been built.
func (s *CalendarService) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

// Snapshots returns the builder the service computes availability with.
func (s *CalendarService) Snapshots() *SnapshotBuilder {
	return s.snapshots
}

func (s *CalendarService) GetAvailability(ctx context.Context, unitID int64, r domain.DateRange) (*domain.AvailabilitySnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "Calendar.GetAvailability")
	defer span.End()

	r = domain.NewDateRange(r.Start, r.End)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx, unitID, r); ok {
			return snap, nil
		}
	}

	snap, err := s.snapshots.Build(ctx, unitID, r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, snap)
	}
	return snap, nil
}

// OnAvailabilityChanged lets writers outside the calendar, such as the booking lifecycle, report a
// committed change so cached availability is dropped before the index is told.
func (s *CalendarService) OnAvailabilityChanged(ctx context.Context, unitID int64) {
	s.changed(ctx, unitID)
}

// changed runs after a committed write: local cache entries go first, then the index is told.
func (s *CalendarService) changed(ctx context.Context, unitID int64) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, unitID); err != nil {
			s.log.WithError(err).WithField("unit_id", unitID).Warn("invalidate availability cache")
		}
	}
	if s.notifier != nil {
		s.notifier.OnAvailabilityChanged(ctx, unitID)
	}
}

var _ CalendarUseCase = (*CalendarService)(nil)
