package indexsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository/memory"
	"github.com/Domenick1991/staybooking/internal/service/calendar"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) PushAvailability(ctx context.Context, snap *domain.AvailabilitySnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) Invalidate(ctx context.Context, unitID int64) error {
	args := m.Called(ctx, unitID)
	return args.Error(0)
}

var today = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	indexer *MockIndexer
	hook    *test.Hook
	sleeps  []time.Duration
	coord   *Coordinator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	clock := func() time.Time { return today }
	store := memory.NewStore().WithClock(clock)
	snapshots := calendar.NewCalendarService(store, store, calendar.WithClock(clock), calendar.WithLogger(log)).Snapshots()

	f := &fixture{store: store, indexer: &MockIndexer{}, hook: hook}
	base := []Option{
		WithLogger(log),
		WithUnitLister(store),
		withSleep(func(_ context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		}),
	}
	f.coord = NewCoordinator(snapshots, f.indexer, store, append(base, opts...)...)
	return f
}

func criticalEntries(hook *test.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Data["consistency_critical"] == true {
			out = append(out, e)
		}
	}
	return out
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff{Step: time.Second, Attempts: 3}
	assert.Equal(t, 3, b.MaxAttempts())
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 1, LinearBackoff{}.MaxAttempts())
}

func TestSync_PushesHorizonAndSettlesOutbox(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Enqueue(context.Background(), 4, "days_blocked"))
	f.store.PutRecord(domain.ScheduleRecord{UnitID: 4, Date: today.AddDate(0, 0, 2), Status: domain.DayBlocked})

	f.indexer.On("PushAvailability", mock.Anything, mock.MatchedBy(func(s *domain.AvailabilitySnapshot) bool {
		return s.UnitID == 4 &&
			s.From.Equal(domain.Normalize(today)) &&
			s.To.Equal(domain.Normalize(today).AddDate(0, 6, 0)) &&
			len(s.Ranges) == 2
	})).Return(nil).Once()

	require.NoError(t, f.coord.Sync(context.Background(), 4))

	f.indexer.AssertExpectations(t)
	assert.Empty(t, f.sleeps)
	assert.NotNil(t, f.store.Outbox()[0].ProcessedAt)
	assert.Empty(t, criticalEntries(f.hook))
}

func TestSync_LeavesEntriesWrittenDuringPushPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Enqueue(ctx, 4, "days_blocked"))

	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		// a change committed after the snapshot was read
		require.NoError(t, f.store.Enqueue(ctx, 4, "booking_created"))
	}).Return(nil).Once()

	require.NoError(t, f.coord.Sync(ctx, 4))

	entries := f.store.Outbox()
	require.Len(t, entries, 2)
	assert.NotNil(t, entries[0].ProcessedAt)
	assert.Nil(t, entries[1].ProcessedAt)

	pending, err := f.store.PendingIDs(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{entries[1].ID}, pending)
}

func TestSync_RetriesWithLinearBackoff(t *testing.T) {
	f := newFixture(t)
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Return(errors.New("solr down")).Twice()
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, f.coord.Sync(context.Background(), 4))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)
	f.indexer.AssertNumberOfCalls(t, "PushAvailability", 3)
}

func TestSync_ExhaustionIsConsistencyCritical(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Enqueue(context.Background(), 4, "booking_created"))
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Return(errors.New("solr down"))

	err := f.coord.Sync(context.Background(), 4)
	assert.ErrorIs(t, err, ErrIndexStale)
	f.indexer.AssertNumberOfCalls(t, "PushAvailability", 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)

	critical := criticalEntries(f.hook)
	require.Len(t, critical, 1)
	assert.Equal(t, logrus.ErrorLevel, critical[0].Level)
	assert.Equal(t, int64(4), critical[0].Data["unit_id"])
	assert.Equal(t, 3, critical[0].Data["attempts"])

	// the obligation survives for the relay
	assert.Nil(t, f.store.Outbox()[0].ProcessedAt)
}

func TestSync_OpenBreakerCountsAsFailedAttempt(t *testing.T) {
	log, _ := test.NewNullLogger()
	f := newFixture(t, WithBreaker(CircuitBreaker("test", 1, time.Hour, log)))
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Return(errors.New("timeout"))

	err := f.coord.Sync(context.Background(), 4)
	assert.ErrorIs(t, err, ErrIndexStale)
	// only the first attempt reaches the index, the rest are refused by the open breaker
	f.indexer.AssertNumberOfCalls(t, "PushAvailability", 1)
}

func TestSync_InvalidatesCache(t *testing.T) {
	inv := &MockInvalidator{}
	inv.On("Invalidate", mock.Anything, int64(4)).Return(nil).Once()
	f := newFixture(t, WithCache(inv))
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.coord.Sync(context.Background(), 4))
	inv.AssertExpectations(t)
}

func TestOnAvailabilityChanged_CoalescesAndDropsWhenFull(t *testing.T) {
	f := newFixture(t, WithWorkers(1, 2))

	f.coord.OnAvailabilityChanged(context.Background(), 1)
	f.coord.OnAvailabilityChanged(context.Background(), 1)
	f.coord.OnAvailabilityChanged(context.Background(), 2)
	f.coord.OnAvailabilityChanged(context.Background(), 3)

	assert.Len(t, f.coord.queue, 2)
	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["unit_id"] == int64(3) {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestWorkers_DrainQueue(t *testing.T) {
	f := newFixture(t, WithWorkers(2, 8))
	var (
		mu   sync.Mutex
		seen = map[int64]bool{}
		done = make(chan struct{}, 3)
	)
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		seen[args.Get(1).(*domain.AvailabilitySnapshot).UnitID] = true
		mu.Unlock()
		done <- struct{}{}
	}).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	f.coord.Start(ctx)
	for _, id := range []int64{1, 2, 3} {
		f.coord.OnAvailabilityChanged(ctx, id)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("queue was not drained")
		}
	}
	cancel()
	f.coord.Wait()

	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, seen)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Enqueue(ctx, 1, "booking_created"))
	require.NoError(t, f.store.Enqueue(ctx, 1, "booking_cancelled"))
	require.NoError(t, f.store.Enqueue(ctx, 2, "days_blocked"))

	f.indexer.On("PushAvailability", mock.Anything, mock.MatchedBy(func(s *domain.AvailabilitySnapshot) bool { return s.UnitID == 1 })).Return(nil).Once()
	f.indexer.On("PushAvailability", mock.Anything, mock.MatchedBy(func(s *domain.AvailabilitySnapshot) bool { return s.UnitID == 2 })).Return(errors.New("down"))

	synced, err := f.coord.Reconcile(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	for _, e := range f.store.Outbox() {
		switch e.UnitID {
		case 1:
			assert.NotNil(t, e.ProcessedAt)
		case 2:
			assert.Nil(t, e.ProcessedAt)
			assert.Contains(t, e.LastError, "search index is stale")
		}
	}
}

func TestRebuild_AllUnits(t *testing.T) {
	f := newFixture(t)
	f.store.PutRecord(domain.ScheduleRecord{UnitID: 7, Date: today, Status: domain.DayBlocked})
	f.store.PutRecord(domain.ScheduleRecord{UnitID: 9, Date: today, Status: domain.DayOwnerUse})
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.coord.Rebuild(context.Background(), nil))
	f.indexer.AssertNumberOfCalls(t, "PushAvailability", 2)
}

func TestRebuild_ReportsFailures(t *testing.T) {
	f := newFixture(t)
	f.indexer.On("PushAvailability", mock.Anything, mock.Anything).Return(errors.New("down"))

	err := f.coord.Rebuild(context.Background(), []int64{1, 2})
	assert.ErrorIs(t, err, ErrIndexStale)
	assert.Len(t, criticalEntries(f.hook), 2)
}
