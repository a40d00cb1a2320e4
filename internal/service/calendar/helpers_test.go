package calendar

import (
	"context"
	"io"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func d(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rng(start, end string) domain.DateRange {
	return domain.NewDateRange(d(start), d(end))
}

func ptr(s string) *string {
	return &s
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(store *memory.Store, opts ...CalendarServiceOption) *CalendarService {
	opts = append([]CalendarServiceOption{
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return d("2024-05-01").Add(10 * time.Hour) }),
	}, opts...)
	return NewCalendarService(store, store, opts...)
}

// book puts a booking and its Booked days into the store, the state a committed booking leaves behind.
func book(store *memory.Store, id string, unitID int64, start, end string) {
	b := domain.Booking{ID: id, UnitID: unitID, CheckIn: d(start), CheckOut: d(end), Status: domain.BookingStatusConfirmed}
	store.PutBooking(b)
	b.Range().EachDay(func(day time.Time) {
		store.PutRecord(domain.ScheduleRecord{UnitID: unitID, Date: day, Status: domain.DayBooked, BookingID: ptr(id)})
	})
}

func mark(store *memory.Store, unitID int64, day string, status domain.DayStatus, reason *string) {
	store.PutRecord(domain.ScheduleRecord{UnitID: unitID, Date: d(day), Status: status, Reason: reason})
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) OnAvailabilityChanged(ctx context.Context, unitID int64) {
	m.Called(ctx, unitID)
}

type MockSnapshotCache struct {
	mock.Mock
}

func (m *MockSnapshotCache) Get(ctx context.Context, unitID int64, r domain.DateRange) (*domain.AvailabilitySnapshot, bool) {
	args := m.Called(ctx, unitID, r)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.AvailabilitySnapshot), args.Bool(1)
}

func (m *MockSnapshotCache) Set(ctx context.Context, snap *domain.AvailabilitySnapshot) {
	m.Called(ctx, snap)
}

func (m *MockSnapshotCache) Invalidate(ctx context.Context, unitID int64) error {
	args := m.Called(ctx, unitID)
	return args.Error(0)
}
