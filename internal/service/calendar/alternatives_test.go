package calendar

import (
	"context"
	"testing"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAlternativePeriods_FreeUnitReturnsPreferredFirst(t *testing.T) {
	s := newTestService(memory.NewStore())

	alts, err := s.FindAlternativePeriods(context.Background(), 2, rng("2024-07-10", "2024-07-12"), 5, 5)
	require.NoError(t, err)

	// 5 windows before, the preferred one, 5 after
	require.Len(t, alts, 11)
	assert.Equal(t, d("2024-07-10"), alts[0].Start)
	assert.Equal(t, d("2024-07-12"), alts[0].End)
	assert.Equal(t, 0, alts[0].DistanceFromPreferred)

	// ties keep scan order, so the earlier window comes first
	assert.Equal(t, d("2024-07-09"), alts[1].Start)
	assert.True(t, alts[1].IsBefore)
	assert.Equal(t, d("2024-07-11"), alts[2].Start)
	assert.False(t, alts[2].IsBefore)

	for i := 1; i < len(alts); i++ {
		assert.LessOrEqual(t, alts[i-1].DistanceFromPreferred, alts[i].DistanceFromPreferred)
	}
	assert.Equal(t, d("2024-07-05"), alts[9].Start)
	assert.Equal(t, d("2024-07-17"), alts[10].End)
}

func TestFindAlternativePeriods_CandidatesAreConflictFree(t *testing.T) {
	store := memory.NewStore()
	book(store, "B1", 1, "2024-07-08", "2024-07-11")
	book(store, "B2", 1, "2024-07-15", "2024-07-16")
	mark(store, 1, "2024-07-13", domain.DayMaintenance, nil)
	mark(store, 1, "2024-07-04", domain.DayOwnerUse, nil)
	store.PutBooking(domain.Booking{ID: "B3", UnitID: 1, CheckIn: d("2024-07-18"), CheckOut: d("2024-07-19"), Status: domain.BookingStatusPending})
	s := newTestService(store)

	preferred := rng("2024-07-10", "2024-07-13")
	alts, err := s.FindAlternativePeriods(context.Background(), 1, preferred, 7, 7)
	require.NoError(t, err)
	require.NotEmpty(t, alts)

	for _, alt := range alts {
		assert.Equal(t, preferred.Days(), alt.Range().Days())
		check, err := s.CheckConflicts(context.Background(), 1, alt.Range(), nil)
		require.NoError(t, err)
		assert.False(t, check.HasConflicts, "candidate %v", alt.Range())
	}
}

func TestFindAlternativePeriods_NothingFree(t *testing.T) {
	store := memory.NewStore()
	book(store, "B1", 1, "2024-07-01", "2024-08-01")
	s := newTestService(store)

	alts, err := s.FindAlternativePeriods(context.Background(), 1, rng("2024-07-10", "2024-07-12"), 3, 3)
	require.NoError(t, err)
	assert.Empty(t, alts)
}

func TestFindAlternativePeriods_ZeroWindow(t *testing.T) {
	s := newTestService(memory.NewStore())

	alts, err := s.FindAlternativePeriods(context.Background(), 1, rng("2024-07-10", "2024-07-12"), 0, 0)
	require.NoError(t, err)
	require.Len(t, alts, 1)
	assert.Equal(t, 0, alts[0].DistanceFromPreferred)
}

func TestFindAlternativePeriods_InvalidInput(t *testing.T) {
	s := newTestService(memory.NewStore())

	_, err := s.FindAlternativePeriods(context.Background(), 1, rng("2024-07-10", "2024-07-12"), -1, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	_, err = s.FindAlternativePeriods(context.Background(), 1, rng("2024-07-12", "2024-07-12"), 1, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}
