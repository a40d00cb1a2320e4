package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/staybooking/config"
	"github.com/Domenick1991/staybooking/internal/kafka"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type MockDialer struct {
	mock.Mock
}

func (m *MockDialer) DialAndSend(msgs ...*gomail.Message) error {
	return m.Called(msgs).Error(0)
}

func event(eventType string) kafka.BookingEvent {
	return kafka.BookingEvent{
		Type:       eventType,
		BookingID:  "b1",
		UnitID:     7,
		CheckIn:    time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC),
		GuestEmail: "guest@example.com",
		ExpiresAt:  time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC),
	}
}

func TestSender_Send(t *testing.T) {
	dialer := &MockDialer{}
	logger, _ := test.NewNullLogger()
	sender := NewSenderWithDialer(dialer, "bookings@example.com", logger)

	dialer.On("DialAndSend", mock.MatchedBy(func(msgs []*gomail.Message) bool {
		return len(msgs) == 1 &&
			msgs[0].GetHeader("To")[0] == "guest@example.com" &&
			msgs[0].GetHeader("Subject")[0] == "Your stay is confirmed"
	})).Return(nil).Once()

	require.NoError(t, sender.Send(context.Background(), event("booking_confirmed")))
	dialer.AssertExpectations(t)
}

func TestSender_SendError(t *testing.T) {
	dialer := &MockDialer{}
	logger, _ := test.NewNullLogger()
	sender := NewSenderWithDialer(dialer, "bookings@example.com", logger)
	dialer.On("DialAndSend", mock.Anything).Return(errors.New("smtp refused")).Once()

	err := sender.Send(context.Background(), event("booking_cancelled"))

	assert.ErrorContains(t, err, "smtp refused")
	assert.ErrorContains(t, err, "booking_cancelled")
}

func TestSender_SkipsUnknownEventsAndMissingSMTP(t *testing.T) {
	dialer := &MockDialer{}
	logger, hook := test.NewNullLogger()

	sender := NewSenderWithDialer(dialer, "bookings@example.com", logger)
	assert.NoError(t, sender.Send(context.Background(), event("unit_reindexed")))
	dialer.AssertNotCalled(t, "DialAndSend", mock.Anything)

	logOnly := NewSender(config.SMTPConfig{}, logger)
	assert.NoError(t, logOnly.Send(context.Background(), event("booking_created")))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "smtp not configured, guest notification skipped", hook.LastEntry().Message)
}

func TestRender(t *testing.T) {
	subject, body, ok := render(event("booking_created"))

	require.True(t, ok)
	assert.Equal(t, "Your stay is on hold", subject)
	assert.Contains(t, body, "unit 7 from 2024-06-10 to 2024-06-13")
	assert.Contains(t, body, "b1")
}
