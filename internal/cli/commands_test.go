package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Domenick1991/staybooking/api"
	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository/memory"
	"github.com/Domenick1991/staybooking/internal/service/calendar"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRebuilder struct {
	mock.Mock
}

func (m *MockRebuilder) Rebuild(ctx context.Context, unitIDs []int64) error {
	return m.Called(ctx, unitIDs).Error(0)
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newBackend(t *testing.T) (*Backend, *MockRebuilder) {
	t.Helper()
	store := memory.NewStore()
	store.PutRecord(domain.ScheduleRecord{UnitID: 3, Date: day("2024-06-11"), Status: domain.DayMaintenance})
	logger, _ := test.NewNullLogger()
	rebuilder := &MockRebuilder{}
	closed := false
	t.Cleanup(func() { assert.True(t, closed, "backend was not closed") })
	return &Backend{
		Calendar:  calendar.NewCalendarService(store, store, calendar.WithLogger(logger)),
		Index:     rebuilder,
		JWTSecret: []byte("secret"),
		Close:     func() error { closed = true; return nil },
	}, rebuilder
}

func run(t *testing.T, b *Backend, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(func(context.Context) (*Backend, error) { return b, nil })
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckCmd(t *testing.T) {
	b, _ := newBackend(t)

	out, err := run(t, b, "check", "--unit", "3", "--start", "2024-06-10", "--end", "2024-06-13")

	require.NoError(t, err)
	var check domain.ConflictCheck
	require.NoError(t, json.Unmarshal([]byte(out), &check))
	assert.True(t, check.HasConflicts)
	require.Len(t, check.Conflicts, 1)
	assert.Equal(t, domain.DayMaintenance, check.Conflicts[0].Status)
}

func TestCheckCmd_BadDate(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Backend, error) {
		t.Fatal("backend must not be loaded for invalid flags")
		return nil, nil
	})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"check", "--unit", "3", "--start", "06/10/2024", "--end", "2024-06-13"})

	err := root.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start")
}

func TestAlternativesCmd(t *testing.T) {
	b, _ := newBackend(t)

	out, err := run(t, b, "alternatives", "--unit", "3", "--start", "2024-06-10", "--end", "2024-06-12", "--before", "0", "--after", "3")

	require.NoError(t, err)
	var periods []domain.AlternativePeriod
	require.NoError(t, json.Unmarshal([]byte(out), &periods))
	require.NotEmpty(t, periods)
	assert.Equal(t, day("2024-06-12"), periods[0].Start.UTC())
	for _, p := range periods {
		assert.False(t, p.Range().Contains(day("2024-06-11")))
	}
}

func TestReindexCmd(t *testing.T) {
	b, rebuilder := newBackend(t)
	rebuilder.On("Rebuild", mock.Anything, []int64{3, 5}).Return(nil).Once()

	out, err := run(t, b, "reindex", "3", "5")

	require.NoError(t, err)
	assert.Contains(t, out, "reindex finished")
	rebuilder.AssertExpectations(t)
}

func TestReindexCmd_AllUnitsAndFailure(t *testing.T) {
	b, rebuilder := newBackend(t)
	rebuilder.On("Rebuild", mock.Anything, []int64{}).Return(errors.New("solr down")).Once()

	_, err := run(t, b, "reindex")

	assert.EqualError(t, err, "solr down")
	rebuilder.AssertExpectations(t)
}

func TestReindexCmd_InvalidUnit(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Backend, error) {
		t.Fatal("backend must not be loaded for invalid arguments")
		return nil, nil
	})
	root.SetArgs([]string{"reindex", "abc"})

	assert.Error(t, root.Execute())
}

func TestTokenCmd(t *testing.T) {
	b, _ := newBackend(t)

	out, err := run(t, b, "token", "--subject", "owner-9", "--role", "owner")

	require.NoError(t, err)
	claims := &api.Claims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "owner-9", claims.Subject)
	assert.Equal(t, api.RoleOwner, claims.Role)
}

func TestTokenCmd_RejectsUnknownRole(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Backend, error) {
		t.Fatal("backend must not be loaded for an unknown role")
		return nil, nil
	})
	root.SetArgs([]string{"token", "--subject", "x", "--role", "guest"})

	assert.Error(t, root.Execute())
}

func TestMemoryFlag_UsesInProcessBackend(t *testing.T) {
	store := memory.NewStore()
	store.PutRecord(domain.ScheduleRecord{UnitID: 5, Date: day("2024-06-11"), Status: domain.DayOwnerUse})
	logger, hook := test.NewNullLogger()

	root := NewRootCmd(func(context.Context) (*Backend, error) {
		t.Fatal("configured backend must not be loaded with --memory")
		return nil, nil
	}, WithMemoryBackend(func(context.Context) (*Backend, error) {
		return NewMemoryBackend(store, []byte("secret"), logger), nil
	}))
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"--memory", "check", "--unit", "5", "--start", "2024-06-10", "--end", "2024-06-13"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var check domain.ConflictCheck
	require.NoError(t, json.Unmarshal(out.Bytes(), &check))
	assert.True(t, check.HasConflicts)
	require.Len(t, check.Conflicts, 1)
	assert.Equal(t, domain.DayOwnerUse, check.Conflicts[0].Status)

	out.Reset()
	root.SetArgs([]string{"--memory", "reindex", "5"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "reindex finished")

	var pushed bool
	for _, e := range hook.AllEntries() {
		if e.Message == "dry run, snapshot not pushed" && e.Data["unit_id"] == int64(5) {
			pushed = true
		}
	}
	assert.True(t, pushed)
}

func TestMemoryFlag_NotConfigured(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Backend, error) {
		t.Fatal("configured backend must not be loaded with --memory")
		return nil, nil
	})
	root.SetArgs([]string{"--memory", "reindex"})

	assert.ErrorContains(t, root.Execute(), "--memory is not supported")
}
