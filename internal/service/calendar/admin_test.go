package calendar

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBlockDays_WritesRecordsAndNotifies(t *testing.T) {
	store := memory.NewStore()
	mark(store, 5, "2024-06-11", domain.DayBlocked, ptr("old"))
	notifier := &MockNotifier{}
	notifier.On("OnAvailabilityChanged", mock.Anything, int64(5)).Return().Once()
	s := newTestService(store, WithNotifier(notifier))

	records, err := s.BlockDays(context.Background(), BlockInput{
		UnitID: 5,
		Range:  rng("2024-06-10", "2024-06-13"),
		Status: domain.DayMaintenance,
		Reason: "boiler",
		Actor:  "owner-1",
	})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	for _, day := range []string{"2024-06-10", "2024-06-11", "2024-06-12"} {
		rec, ok := store.Record(5, d(day))
		require.True(t, ok)
		assert.Equal(t, domain.DayMaintenance, rec.Status)
		assert.Equal(t, "boiler", rec.EffectiveReason())
		assert.Equal(t, "owner-1", rec.UpdatedBy)
	}
	existing, _ := store.Record(5, d("2024-06-11"))
	assert.Equal(t, int64(2), existing.Version)

	outbox := store.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, "days_blocked", outbox[0].Reason)
	notifier.AssertExpectations(t)
}

func TestBlockDays_RefusesBookedDays(t *testing.T) {
	store := memory.NewStore()
	book(store, "B1", 5, "2024-06-11", "2024-06-12")
	notifier := &MockNotifier{}
	s := newTestService(store, WithNotifier(notifier))

	_, err := s.BlockDays(context.Background(), BlockInput{
		UnitID: 5,
		Range:  rng("2024-06-10", "2024-06-13"),
		Status: domain.DayBlocked,
	})
	assert.ErrorIs(t, err, domain.ErrDaysBooked)

	var ce *domain.ConflictError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Check.Conflicts, 1)
	assert.True(t, ce.Check.Conflicts[0].References("B1"))

	_, ok := store.Record(5, d("2024-06-10"))
	assert.False(t, ok)
	assert.Empty(t, store.Outbox())
	notifier.AssertNotCalled(t, "OnAvailabilityChanged", mock.Anything, mock.Anything)
}

func TestBlockDays_Validation(t *testing.T) {
	s := newTestService(memory.NewStore())

	_, err := s.BlockDays(context.Background(), BlockInput{UnitID: 1, Range: rng("2024-06-10", "2024-06-10"), Status: domain.DayBlocked})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = s.BlockDays(context.Background(), BlockInput{UnitID: 1, Range: rng("2024-06-10", "2024-06-11"), Status: domain.DayBooked})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestUnblockDays_LeavesBookedDays(t *testing.T) {
	store := memory.NewStore()
	book(store, "B1", 5, "2024-06-11", "2024-06-12")
	mark(store, 5, "2024-06-10", domain.DayOwnerUse, ptr("holiday"))
	mark(store, 5, "2024-06-12", domain.DayBlocked, nil)
	notifier := &MockNotifier{}
	notifier.On("OnAvailabilityChanged", mock.Anything, int64(5)).Return().Once()
	s := newTestService(store, WithNotifier(notifier))

	released, err := s.UnblockDays(context.Background(), UnblockInput{UnitID: 5, Range: rng("2024-06-01", "2024-06-30"), Actor: "admin"})
	require.NoError(t, err)
	assert.Len(t, released, 2)

	freed, _ := store.Record(5, d("2024-06-10"))
	assert.Equal(t, domain.DayAvailable, freed.Status)
	assert.Nil(t, freed.Reason)

	booked, _ := store.Record(5, d("2024-06-11"))
	assert.Equal(t, domain.DayBooked, booked.Status)
	assert.True(t, booked.HeldBy("B1"))

	assert.Equal(t, "days_unblocked", store.Outbox()[0].Reason)
	notifier.AssertExpectations(t)
}

func TestUnblockDays_NothingToDo(t *testing.T) {
	notifier := &MockNotifier{}
	s := newTestService(memory.NewStore(), WithNotifier(notifier))

	released, err := s.UnblockDays(context.Background(), UnblockInput{UnitID: 5, Range: rng("2024-06-01", "2024-06-30")})
	require.NoError(t, err)
	assert.Empty(t, released)
	notifier.AssertNotCalled(t, "OnAvailabilityChanged", mock.Anything, mock.Anything)
}

func TestGetAvailability(t *testing.T) {
	store := memory.NewStore()
	book(store, "B1", 5, "2024-06-03", "2024-06-05")
	mark(store, 5, "2024-06-07", domain.DayMaintenance, nil)
	// a pending booking whose days were never written still hides them
	store.PutBooking(domain.Booking{ID: "B2", UnitID: 5, CheckIn: d("2024-06-09"), CheckOut: d("2024-06-10"), Status: domain.BookingStatusPending})

	snapshots := &MockSnapshotCache{}
	r := rng("2024-06-01", "2024-06-11")
	snapshots.On("Get", mock.Anything, int64(5), r).Return(nil, false).Once()
	snapshots.On("Set", mock.Anything, mock.AnythingOfType("*domain.AvailabilitySnapshot")).Return().Once()
	s := newTestService(store, WithSnapshotCache(snapshots))

	snap, err := s.GetAvailability(context.Background(), 5, r)
	require.NoError(t, err)
	assert.Equal(t, []domain.DateRange{
		rng("2024-06-01", "2024-06-03"),
		rng("2024-06-05", "2024-06-07"),
		rng("2024-06-08", "2024-06-09"),
		rng("2024-06-10", "2024-06-11"),
	}, snap.Ranges)
	assert.Equal(t, 6, snap.AvailableDays())
	snapshots.AssertExpectations(t)
}

func TestGetAvailability_CacheHit(t *testing.T) {
	cached := &domain.AvailabilitySnapshot{UnitID: 5}
	snapshots := &MockSnapshotCache{}
	r := rng("2024-06-01", "2024-06-11")
	snapshots.On("Get", mock.Anything, int64(5), r).Return(cached, true).Once()
	s := newTestService(memory.NewStore(), WithSnapshotCache(snapshots))

	snap, err := s.GetAvailability(context.Background(), 5, r)
	require.NoError(t, err)
	assert.Same(t, cached, snap)
	snapshots.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestBlockDays_InvalidatesCache(t *testing.T) {
	snapshots := &MockSnapshotCache{}
	snapshots.On("Invalidate", mock.Anything, int64(5)).Return(nil).Once()
	s := newTestService(memory.NewStore(), WithSnapshotCache(snapshots))

	_, err := s.BlockDays(context.Background(), BlockInput{UnitID: 5, Range: rng("2024-06-10", "2024-06-11"), Status: domain.DayBlocked})
	require.NoError(t, err)
	snapshots.AssertExpectations(t)
}

func TestOnAvailabilityChanged_InvalidatesThenNotifies(t *testing.T) {
	snapshots := &MockSnapshotCache{}
	snapshots.On("Invalidate", mock.Anything, int64(9)).Return(nil).Once()
	notifier := &MockNotifier{}
	notifier.On("OnAvailabilityChanged", mock.Anything, int64(9)).Once()
	s := newTestService(memory.NewStore(), WithSnapshotCache(snapshots))
	s.SetNotifier(notifier)

	s.OnAvailabilityChanged(context.Background(), 9)

	snapshots.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestSnapshotBuilder_Horizon(t *testing.T) {
	store := memory.NewStore()
	s := newTestService(store)

	snap, err := s.Snapshots().Horizon(context.Background(), 8, 6)
	require.NoError(t, err)
	assert.Equal(t, d("2024-05-01"), snap.From)
	assert.Equal(t, d("2024-11-01"), snap.To)
	require.Len(t, snap.Ranges, 1)
	assert.Equal(t, domain.DaysBetween(snap.From, snap.To), snap.AvailableDays())
}
